package types

import "time"

// DefaultIntervalMinutes is the tracking interval used when the user gives none.
const DefaultIntervalMinutes = 3

// Query is a parsed user request. It is built once per incoming message and
// passed by value afterwards.
type Query struct {
	StopID          string `json:"stop_id"`
	RouteSuffix     string `json:"route_suffix,omitempty"`
	Tracking        bool   `json:"tracking"`
	IntervalMinutes int    `json:"interval_minutes"`
}

// NewQuery returns a query for the stop with the defaults applied.
func NewQuery(stopID string) Query {
	return Query{
		StopID:          stopID,
		IntervalMinutes: DefaultIntervalMinutes,
	}
}

// Interval returns the tracking interval as a duration.
func (q Query) Interval() time.Duration {
	return time.Duration(q.IntervalMinutes) * time.Minute
}

// BusSnapshot is one upstream-reported state of a bus.
type BusSnapshot struct {
	Plate       string  `json:"plate"`
	RouteCode   string  `json:"display_route_code"`
	StopsAway   int     `json:"stops_away"`
	MinutesAway int     `json:"minutes_away"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// ClosestBuses is the decoded response of the closest-buses endpoint.
type ClosestBuses struct {
	StopID    string        `json:"stop_id"`
	StopName  string        `json:"stop_name"`
	Buses     []BusSnapshot `json:"buses"`
	FetchedAt time.Time     `json:"fetched_at"`
}
