package events

import (
	"context"
	"errors"
	"time"
)

// Type names a tracking session transition.
type Type string

const (
	TypeStarted   Type = "started"
	TypeUpdate    Type = "update"
	TypeArrived   Type = "arrived"
	TypeExpired   Type = "expired"
	TypeCancelled Type = "cancelled"
)

// Event describes one step of a tracking session.
type Event struct {
	Type        Type      `json:"type"`
	SessionID   string    `json:"session_id"`
	ChatID      int64     `json:"chat_id"`
	StopID      string    `json:"stop_id"`
	RouteCode   string    `json:"route_code,omitempty"`
	Plate       string    `json:"plate,omitempty"`
	MinutesAway int       `json:"minutes_away"`
	Poll        int       `json:"poll"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink receives tracking events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// NewMulti drops nil sinks.
func NewMulti(sinks ...Sink) Multi {
	var m Multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
