package selector

import "fmt"

// UpstreamUnavailableError means the closest-buses call failed or returned nothing.
type UpstreamUnavailableError struct {
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return "Error occurred, try a bit later."
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// UnknownStopError means upstream has no name for the requested stop.
type UnknownStopError struct {
	StopID string
}

func (e *UnknownStopError) Error() string {
	return fmt.Sprintf("There is no bus stop with number %s in the system, check entered number.", e.StopID)
}

// NoBusesError means the stop exists but no bus survived filtering.
type NoBusesError struct {
	StopID string
}

func (e *NoBusesError) Error() string {
	return fmt.Sprintf("Currently there is no buses for bus stop %s, try a bit later.", e.StopID)
}
