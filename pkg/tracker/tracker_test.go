package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"antalyabus/pkg/events"
	"antalyabus/pkg/selector"
	"antalyabus/pkg/types"
)

type response struct {
	resp *types.ClosestBuses
	err  error
}

// scriptedSource returns its responses in order and repeats the last one.
type scriptedSource struct {
	mu        sync.Mutex
	responses []response
	calls     int
}

func (s *scriptedSource) FetchClosestBuses(_ context.Context, stopID string) (*types.ClosestBuses, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return r.resp, r.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stop(buses ...types.BusSnapshot) response {
	return response{resp: &types.ClosestBuses{StopID: "10010", StopName: "Muratpasa", Buses: buses}}
}

func failure(err error) response {
	return response{err: err}
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSender) Send(_ context.Context, _ int64, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recordingSender) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func bus(plate string, minutes int) types.BusSnapshot {
	return types.BusSnapshot{
		Plate:       plate,
		RouteCode:   "VS18",
		MinutesAway: minutes,
		Latitude:    36.8969,
		Longitude:   30.7133,
	}
}

func trackingQuery(interval int) types.Query {
	return types.Query{StopID: "10010", RouteSuffix: "18", Tracking: true, IntervalMinutes: interval}
}

type harness struct {
	source  *scriptedSource
	sender  *recordingSender
	sink    *recordingSink
	sleeper *recordingSleeper
	loop    *Loop
}

func newHarness(maxPolls int, responses ...response) *harness {
	h := &harness{
		source:  &scriptedSource{responses: responses},
		sender:  &recordingSender{},
		sink:    &recordingSink{},
		sleeper: &recordingSleeper{},
	}
	h.loop = NewLoop(selector.New(selector.Terminal), h.source, h.sender, h.sink, Config{
		MaxPolls: maxPolls,
		Sleep:    h.sleeper.Sleep,
	})
	return h
}
