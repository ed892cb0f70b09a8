package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/socrates-soc/socrates/pkg/models"
)

// Handler processes one queue payload. A returned error means the payload
// is dropped; the runner logs it and keeps consuming.
type Handler func(ctx context.Context, payload models.RawAlert) error

// RunnerOptions configures a stage runner.
type RunnerOptions struct {
	Name       string
	Input      *Buffer
	PopTimeout time.Duration
	Handle     Handler
	// Tick, when set, runs after every pop attempt whether or not a
	// payload arrived. Stages use it for time-driven work such as window
	// flushing; Pop's timeout bounds how long a tick can be delayed.
	Tick func(ctx context.Context)
}

// Runner is the polling loop every stage is built on: pop one input,
// process, repeat. Per-payload failures never stop the loop.
type Runner struct {
	name       string
	input      *Buffer
	popTimeout time.Duration
	handle     Handler
	tick       func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a stage runner.
func NewRunner(opts RunnerOptions) *Runner {
	popTimeout := opts.PopTimeout
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &Runner{
		name:       opts.Name,
		input:      opts.Input,
		popTimeout: popTimeout,
		handle:     opts.Handle,
		tick:       opts.Tick,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the runner to stop and waits for the loop to finish.
// It is safe to call Stop multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Run blocks until ctx is cancelled, then stops the loop. It is the
// supervision entry point; Start/Stop remain available for tests.
func (r *Runner) Run(ctx context.Context) error {
	r.Start(ctx)
	<-ctx.Done()
	r.Stop()
	return ctx.Err()
}

// run is the main stage loop.
func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	log := slog.With("stage", r.name, "queue", r.input.Key())
	log.Info("Stage started")

	for {
		select {
		case <-r.stopCh:
			log.Info("Stage shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, stage shutting down")
			return
		default:
			r.step(ctx, log)
		}
	}
}

// step performs one pop attempt plus the optional tick.
func (r *Runner) step(ctx context.Context, log *slog.Logger) {
	payload, err := r.input.Pop(ctx, r.popTimeout)
	switch {
	case errors.Is(err, ErrMalformedPayload):
		log.Warn("Dropping malformed payload", "error", err)
	case err != nil:
		// BLPop fails when the context is torn down mid-block; the loop
		// exit is handled by the select above.
		if ctx.Err() == nil {
			log.Error("Queue pop failed", "error", err)
			r.sleep(time.Second)
		}
	case payload != nil:
		if herr := r.handle(ctx, payload); herr != nil {
			log.Error("Handler failed, dropping payload", "error", herr)
		}
	}

	if r.tick != nil {
		r.tick(ctx)
	}
}

// sleep waits for the given duration or until stop is signalled.
func (r *Runner) sleep(d time.Duration) {
	select {
	case <-r.stopCh:
	case <-time.After(d):
	}
}
