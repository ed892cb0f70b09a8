package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socrates-soc/socrates/pkg/models"
)

type capturingHandler struct {
	mu       sync.Mutex
	payloads []models.RawAlert
	err      error
}

func (h *capturingHandler) handle(_ context.Context, payload models.RawAlert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	return h.err
}

func (h *capturingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func TestRunnerProcessesQueueEntries(t *testing.T) {
	_, client := newTestClient(t)
	buf := NewBuffer(client, "test:runner", 0)
	ctx := context.Background()

	require.NoError(t, buf.Push(ctx, map[string]any{"id": "a"}))
	require.NoError(t, buf.Push(ctx, map[string]any{"id": "b"}))

	handler := &capturingHandler{}
	runner := NewRunner(RunnerOptions{
		Name:       "test-stage",
		Input:      buf,
		PopTimeout: 50 * time.Millisecond,
		Handle:     handler.handle,
	})

	runner.Start(ctx)
	require.Eventually(t, func() bool { return handler.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	runner.Stop()

	assert.Equal(t, "a", handler.payloads[0]["id"])
	assert.Equal(t, "b", handler.payloads[1]["id"])
}

func TestRunnerContinuesAfterHandlerError(t *testing.T) {
	_, client := newTestClient(t)
	buf := NewBuffer(client, "test:runner:err", 0)
	ctx := context.Background()

	require.NoError(t, buf.Push(ctx, map[string]any{"id": "bad"}))
	require.NoError(t, buf.Push(ctx, map[string]any{"id": "good"}))

	handler := &capturingHandler{err: errors.New("boom")}
	runner := NewRunner(RunnerOptions{
		Name:       "test-stage",
		Input:      buf,
		PopTimeout: 50 * time.Millisecond,
		Handle:     handler.handle,
	})

	runner.Start(ctx)
	require.Eventually(t, func() bool { return handler.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	runner.Stop()
}

func TestRunnerSkipsMalformedEntries(t *testing.T) {
	_, client := newTestClient(t)
	buf := NewBuffer(client, "test:runner:bad", 0)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "test:runner:bad", "{not json").Err())
	require.NoError(t, buf.Push(ctx, map[string]any{"id": "ok"}))

	handler := &capturingHandler{}
	runner := NewRunner(RunnerOptions{
		Name:       "test-stage",
		Input:      buf,
		PopTimeout: 50 * time.Millisecond,
		Handle:     handler.handle,
	})

	runner.Start(ctx)
	require.Eventually(t, func() bool { return handler.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	runner.Stop()

	assert.Equal(t, "ok", handler.payloads[0]["id"])
}

func TestRunnerTickRunsWhileIdle(t *testing.T) {
	_, client := newTestClient(t)
	buf := NewBuffer(client, "test:runner:tick", 0)

	var mu sync.Mutex
	ticks := 0
	runner := NewRunner(RunnerOptions{
		Name:       "test-stage",
		Input:      buf,
		PopTimeout: 20 * time.Millisecond,
		Handle:     func(context.Context, models.RawAlert) error { return nil },
		Tick: func(context.Context) {
			mu.Lock()
			ticks++
			mu.Unlock()
		},
	})

	runner.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, 2*time.Second, 10*time.Millisecond)
	runner.Stop()
}

func TestRunnerRunStopsOnContextCancel(t *testing.T) {
	_, client := newTestClient(t)
	buf := NewBuffer(client, "test:runner:ctx", 0)

	runner := NewRunner(RunnerOptions{
		Name:       "test-stage",
		Input:      buf,
		PopTimeout: 20 * time.Millisecond,
		Handle:     func(context.Context, models.RawAlert) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}
