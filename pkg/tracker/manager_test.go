package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antalyabus/pkg/selector"
	"antalyabus/pkg/types"
)

// blockingSleeper parks every session until its context is cancelled.
type blockingSleeper struct {
	entered chan struct{}
}

func (b *blockingSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	b.entered <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func newBlockingManager(t *testing.T) (*Manager, *recordingSender, *blockingSleeper) {
	t.Helper()
	sender := &recordingSender{}
	sleeper := &blockingSleeper{entered: make(chan struct{}, 8)}
	loop := NewLoop(selector.New(selector.Terminal), &scriptedSource{}, sender, nil, Config{Sleep: sleeper.Sleep})
	return NewManager(loop, nil), sender, sleeper
}

func waitEntered(t *testing.T, s *blockingSleeper, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("session %d never started sleeping", i+1)
		}
	}
}

func TestManager_StopChatCancelsOnlyThatChat(t *testing.T) {
	m, sender, sleeper := newBlockingManager(t)
	ctx := context.Background()

	id1 := m.Start(ctx, 1, trackingQuery(3), bus("A", 10))
	id2 := m.Start(ctx, 1, trackingQuery(3), bus("B", 12))
	m.Start(ctx, 2, trackingQuery(3), bus("C", 15))
	waitEntered(t, sleeper, 3)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 3, m.Active())

	assert.Equal(t, 2, m.StopChat(1))
	assert.Equal(t, 0, m.StopChat(1))
	assert.Equal(t, 1, m.Active())

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))
	assert.Equal(t, 0, m.Active())

	// One intermediate message per session and nothing after cancellation.
	assert.Len(t, sender.Messages(), 3)
}

func TestManager_SessionRemovedWhenFinished(t *testing.T) {
	sender := &recordingSender{}
	loop := NewLoop(selector.New(selector.Terminal), &scriptedSource{}, sender, nil, Config{})
	m := NewManager(loop, nil)

	m.Start(context.Background(), 7, trackingQuery(3), bus("A", 1))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"Bus VS18 is about to arrive!"}, sender.Messages())
	assert.Equal(t, 0, m.Active())
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, Session) Outcome {
	panic("boom")
}

func TestManager_RecoversPanics(t *testing.T) {
	m := NewManager(panicRunner{}, nil)

	m.Start(context.Background(), 1, types.NewQuery("10010"), bus("A", 10))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.Active())
}

type capturingRunner struct {
	mu       sync.Mutex
	sessions []Session
}

func (c *capturingRunner) Run(_ context.Context, s Session) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, s)
	return OutcomeArrived
}

func TestManager_StartBuildsSession(t *testing.T) {
	runner := &capturingRunner{}
	m := NewManager(runner, nil)
	q := trackingQuery(5)

	id := m.Start(context.Background(), 99, q, bus("A", 10))
	require.NoError(t, m.Shutdown(context.Background()))

	require.Len(t, runner.sessions, 1)
	s := runner.sessions[0]
	assert.Equal(t, id, s.ID)
	assert.Equal(t, int64(99), s.ChatID)
	assert.Equal(t, q, s.Query)
	assert.Equal(t, "A", s.Observed.Plate)
}

func TestManager_ShutdownTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	m := NewManager(runnerFunc(func(context.Context, Session) Outcome {
		<-block
		return OutcomeArrived
	}), nil)

	m.Start(context.Background(), 1, types.NewQuery("10010"), bus("A", 10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}

type runnerFunc func(ctx context.Context, s Session) Outcome

func (f runnerFunc) Run(ctx context.Context, s Session) Outcome { return f(ctx, s) }
