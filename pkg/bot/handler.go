package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"antalyabus/pkg/metrics"
	"antalyabus/pkg/otel"
	"antalyabus/pkg/request"
	"antalyabus/pkg/selector"
	"antalyabus/pkg/tracker"
	"antalyabus/pkg/types"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandStop  = "stop"
)

// Message is an incoming chat text.
type Message struct {
	ChatID    int64
	FirstName string
	Text      string
}

// Tracker starts and stops tracking sessions.
type Tracker interface {
	Start(ctx context.Context, chatID int64, q types.Query, observed types.BusSnapshot) string
	StopChat(chatID int64) int
}

// Handler answers chat messages. Every message gets exactly one reply,
// except tracking requests whose replies come from the tracking session.
type Handler struct {
	selector *selector.Selector
	source   selector.Source
	sender   tracker.Sender
	tracker  Tracker
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewHandler(sel *selector.Selector, src selector.Source, sender tracker.Sender, t Tracker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		selector: sel,
		source:   src,
		sender:   sender,
		tracker:  t,
		logger:   logger,
		tracer:   otelapi.Tracer("bot"),
	}
}

// Handle processes one message. The context must outlive any tracking
// session started from it.
func (h *Handler) Handle(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)

	if cmd, ok := command(text); ok {
		metrics.RecordRequest(ctx, "command_"+cmd)
		h.handleCommand(ctx, msg, cmd)
		return
	}

	ctx, span := h.tracer.Start(ctx, "bot.handle",
		trace.WithAttributes(attribute.Int64("chat_id", msg.ChatID)),
	)
	defer span.End()

	q, err := request.Parse(text)
	if err != nil {
		metrics.RecordRequest(ctx, "invalid")
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		h.sender.Send(ctx, msg.ChatID, err.Error())
		return
	}

	kind := "list"
	if q.Tracking {
		kind = "track"
	}
	metrics.RecordRequest(ctx, kind)
	span.SetAttributes(
		attribute.String("stop_id", q.StopID),
		attribute.String("route_suffix", q.RouteSuffix),
		attribute.Bool("tracking", q.Tracking),
	)

	buses, err := h.selector.Find(ctx, h.source, q)
	if err != nil {
		var upstream *selector.UpstreamUnavailableError
		if errors.As(err, &upstream) {
			h.logger.Warn("Upstream unavailable", "chat_id", msg.ChatID, "stop_id", q.StopID, "error", upstream.Err)
		}
		h.sender.Send(ctx, msg.ChatID, err.Error())
		return
	}

	if !q.Tracking {
		h.sender.Send(ctx, msg.ChatID, upcomingBuses(buses))
		otel.SetSpanOk(span)
		return
	}

	id := h.tracker.Start(ctx, msg.ChatID, q, buses[0])
	span.SetAttributes(
		attribute.String("session_id", id),
		attribute.String("plate", buses[0].Plate),
	)
	h.logger.Debug("Tracking session started", "chat_id", msg.ChatID, "session_id", id, "stop_id", q.StopID)
	otel.SetSpanOk(span)
}

func (h *Handler) handleCommand(ctx context.Context, msg Message, cmd string) {
	switch cmd {
	case CommandStart:
		h.sender.Send(ctx, msg.ChatID, greeting(msg.FirstName))
	case CommandHelp:
		h.sender.Send(ctx, msg.ChatID, helpText)
	case CommandStop:
		n := h.tracker.StopChat(msg.ChatID)
		h.logger.Info("Tracking stopped by user", "chat_id", msg.ChatID, "sessions", n)
		h.sender.Send(ctx, msg.ChatID, stoppedMessage(n))
	}
}

// command reports whether text is one of the bot's commands. A "@botname"
// suffix, as sent in group chats, is ignored.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.TrimPrefix(text, "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	switch name {
	case CommandStart, CommandHelp, CommandStop:
		return name, true
	}
	return "", false
}
