package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"antalyabus/pkg/events"
	"antalyabus/pkg/metrics"
	"antalyabus/pkg/otel"
	"antalyabus/pkg/selector"
	"antalyabus/pkg/types"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxPolls bounds a session at roughly three hours with the default
// three minute interval.
const DefaultMaxPolls = 60

// Sender delivers a chat message. Implementations log failures themselves.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string)
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Outcome is how a tracking session ended.
type Outcome string

const (
	OutcomeArrived   Outcome = "arrived"
	OutcomeExpired   Outcome = "expired"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

type state int

const (
	stateWaiting state = iota
	stateDone
)

// Session is one user's request to follow one bus.
type Session struct {
	ID       string
	ChatID   int64
	Query    types.Query
	Observed types.BusSnapshot
}

func ArrivalMessage(route string) string {
	return fmt.Sprintf("Bus %s is about to arrive!", route)
}

func UpdateMessage(route string, minutes int) string {
	return fmt.Sprintf("Bus %s will arrive in %d min.", route, minutes)
}

func ExpiryMessage(route string, polls int) string {
	return fmt.Sprintf("Stopped tracking bus %s: it has not arrived after %d checks.", route, polls)
}

type Config struct {
	// MaxPolls is the number of re-polls before a session gives up. Zero
	// means no limit.
	MaxPolls int
	Sleep    Sleeper
	Logger   *slog.Logger
}

// Loop follows a single bus until it is about to reach the stop.
type Loop struct {
	selector *selector.Selector
	source   selector.Source
	sender   Sender
	sink     events.Sink
	maxPolls int
	sleep    Sleeper
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewLoop(sel *selector.Selector, src selector.Source, sender Sender, sink events.Sink, cfg Config) *Loop {
	if sink == nil {
		sink = events.Discard{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxPolls < 0 {
		cfg.MaxPolls = 0
	}

	return &Loop{
		selector: sel,
		source:   src,
		sender:   sender,
		sink:     sink,
		maxPolls: cfg.MaxPolls,
		sleep:    cfg.Sleep,
		logger:   cfg.Logger,
		tracer:   otelapi.Tracer("tracker"),
	}
}

// Run drives the session to completion. Exactly one terminal message is sent
// for the arrived and expired outcomes; a cancelled session sends nothing
// further. Run never returns an error: a failed re-poll counts as arrival.
func (l *Loop) Run(ctx context.Context, s Session) Outcome {
	logger := l.logger.With("session_id", s.ID, "chat_id", s.ChatID, "stop_id", s.Query.StopID, "plate", s.Observed.Plate)

	plate := s.Observed.Plate
	observed := s.Observed
	limit := s.Query.IntervalMinutes
	polls := 0

	l.publish(ctx, s, events.TypeStarted, observed, polls)
	logger.Info("Tracking started", "route", observed.RouteCode, "minutes_away", observed.MinutesAway, "interval_minutes", limit)

	st := stateWaiting
	if observed.MinutesAway <= limit {
		st = stateDone
	}

	for st == stateWaiting {
		l.sender.Send(ctx, s.ChatID, UpdateMessage(observed.RouteCode, observed.MinutesAway))
		l.publish(ctx, s, events.TypeUpdate, observed, polls)

		if err := l.sleep(ctx, s.Query.Interval()); err != nil {
			return l.cancelled(ctx, logger, s, observed, polls)
		}

		polls++
		next, found := l.poll(ctx, s.Query, plate, polls)
		if ctx.Err() != nil {
			return l.cancelled(ctx, logger, s, observed, polls)
		}

		switch {
		case !found:
			st = stateDone
		case next.MinutesAway <= limit:
			observed = next
			st = stateDone
		default:
			observed = next
			if l.maxPolls > 0 && polls >= l.maxPolls {
				l.sender.Send(ctx, s.ChatID, ExpiryMessage(observed.RouteCode, polls))
				l.publish(ctx, s, events.TypeExpired, observed, polls)
				logger.Info("Tracking expired", "polls", polls, "minutes_away", observed.MinutesAway)
				return OutcomeExpired
			}
		}
	}

	l.sender.Send(ctx, s.ChatID, ArrivalMessage(observed.RouteCode))
	l.publish(ctx, s, events.TypeArrived, observed, polls)
	logger.Info("Tracking finished", "polls", polls)
	return OutcomeArrived
}

// poll re-runs the selection and looks for the tracked plate. Any selection
// failure reports the bus as not found.
func (l *Loop) poll(ctx context.Context, q types.Query, plate string, n int) (types.BusSnapshot, bool) {
	ctx, span := l.tracer.Start(ctx, "tracker.poll",
		trace.WithAttributes(
			attribute.String("stop_id", q.StopID),
			attribute.String("plate", plate),
			attribute.Int("poll", n),
		),
	)
	defer span.End()

	metrics.RecordPoll(ctx)

	buses, err := l.selector.Find(ctx, l.source, q)
	if err != nil {
		var upstream *selector.UpstreamUnavailableError
		otel.RecordError(span, err, otel.ErrorTypeUpstream, errors.As(err, &upstream))
		l.logger.Debug("Re-poll failed, treating bus as arrived", "stop_id", q.StopID, "plate", plate, "error", err)
		return types.BusSnapshot{}, false
	}

	for _, bus := range buses {
		if bus.Plate == plate {
			span.SetAttributes(
				attribute.Bool("found", true),
				attribute.Int("minutes_away", bus.MinutesAway),
			)
			otel.SetSpanOk(span)
			return bus, true
		}
	}

	span.SetAttributes(attribute.Bool("found", false))
	otel.SetSpanOk(span)
	return types.BusSnapshot{}, false
}

func (l *Loop) cancelled(ctx context.Context, logger *slog.Logger, s Session, observed types.BusSnapshot, polls int) Outcome {
	l.publish(context.WithoutCancel(ctx), s, events.TypeCancelled, observed, polls)
	logger.Info("Tracking cancelled", "polls", polls)
	return OutcomeCancelled
}

func (l *Loop) publish(ctx context.Context, s Session, typ events.Type, bus types.BusSnapshot, poll int) {
	event := events.Event{
		Type:        typ,
		SessionID:   s.ID,
		ChatID:      s.ChatID,
		StopID:      s.Query.StopID,
		RouteCode:   bus.RouteCode,
		Plate:       bus.Plate,
		MinutesAway: bus.MinutesAway,
		Poll:        poll,
		Timestamp:   time.Now(),
	}
	if err := l.sink.Publish(ctx, event); err != nil {
		l.logger.Warn("Failed to publish tracking event", "session_id", s.ID, "event", typ, "error", err)
	}
}
