package request

import (
	"fmt"
	"strconv"
	"strings"

	"antalyabus/pkg/types"
)

// TrackingMarker is the third token that switches a query into tracking mode.
const TrackingMarker = "t"

// InvalidIntervalError is returned when the fourth token is not a positive
// whole number of minutes.
type InvalidIntervalError struct {
	Value string
	Err   error
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("Tracking interval must be a positive number of minutes, got %q.", e.Value)
}

func (e *InvalidIntervalError) Unwrap() error {
	return e.Err
}

// Parse turns a chat message of the form
//
//	<stopId> [<routeSuffix>] [t] [<intervalMinutes>]
//
// into a Query. Extra tokens are ignored. The interval token is validated even
// when tracking is off, but only applied when it is on.
func Parse(text string) (types.Query, error) {
	tokens := strings.Fields(text)
	q := types.NewQuery("")

	if len(tokens) >= 1 {
		q.StopID = tokens[0]
	}
	if len(tokens) >= 2 {
		q.RouteSuffix = tokens[1]
	}
	if len(tokens) >= 3 && tokens[2] == TrackingMarker {
		q.Tracking = true
	}
	if len(tokens) >= 4 {
		interval, err := parseInterval(tokens[3])
		if err != nil {
			return types.Query{}, err
		}
		if q.Tracking {
			q.IntervalMinutes = interval
		}
	}

	return q, nil
}

func parseInterval(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidIntervalError{Value: s, Err: err}
	}
	if n <= 0 {
		return 0, &InvalidIntervalError{Value: s}
	}
	return n, nil
}
