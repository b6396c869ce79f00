package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"antalyabus/pkg/metrics"
	"antalyabus/pkg/types"

	"github.com/google/uuid"
)

// Runner runs one session to completion.
type Runner interface {
	Run(ctx context.Context, s Session) Outcome
}

type running struct {
	chatID int64
	cancel context.CancelFunc
}

// Manager owns the goroutines of all tracking sessions.
type Manager struct {
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]running // session ID -> session
	wg      sync.WaitGroup
}

func NewManager(runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner:  runner,
		logger:  logger,
		running: make(map[string]running),
	}
}

// Start runs a session for the bus in its own goroutine and returns the
// session ID. The session lives until it finishes or parent is cancelled.
func (m *Manager) Start(parent context.Context, chatID int64, q types.Query, observed types.BusSnapshot) string {
	s := Session{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		Query:    q,
		Observed: observed,
	}

	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.running[s.ID] = running{chatID: chatID, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.SessionStarted(ctx)

	go func() {
		defer m.wg.Done()
		outcome := OutcomeCancelled
		defer func() {
			if r := recover(); r != nil {
				outcome = OutcomeFailed
				m.logger.Error("Tracking session panicked",
					"session_id", s.ID, "chat_id", chatID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
			m.finish(s.ID)
			metrics.SessionFinished(context.WithoutCancel(ctx), string(outcome))
		}()

		outcome = m.runner.Run(ctx, s)
	}()

	return s.ID
}

func (m *Manager) finish(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.running[id]; ok {
		r.cancel()
		delete(m.running, id)
	}
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// StopChat cancels every session of the chat and reports how many there were.
func (m *Manager) StopChat(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped := 0
	for id, r := range m.running {
		if r.chatID != chatID {
			continue
		}
		r.cancel()
		delete(m.running, id)
		stopped++
	}
	return stopped
}

// Shutdown cancels all sessions and waits for their goroutines until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for id, r := range m.running {
		r.cancel()
		delete(m.running, id)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tracking sessions: %w", ctx.Err())
	}
}
