package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/socrates-soc/socrates/pkg/models"
)

// Consumer drains a queue and logs every payload it pops. It is a
// debugging and test utility, not a pipeline stage: consumption is
// destructive, so point it only at queues nothing else reads.
type Consumer struct {
	input  *Buffer
	runner *Runner
	count  atomic.Int64
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(input *Buffer, popTimeout time.Duration) *Consumer {
	c := &Consumer{input: input}
	c.runner = NewRunner(RunnerOptions{
		Name:       "consumer",
		Input:      input,
		PopTimeout: popTimeout,
		Handle:     c.handle,
	})
	return c
}

func (c *Consumer) handle(_ context.Context, payload models.RawAlert) error {
	n := c.count.Add(1)
	slog.Info("Consumed payload",
		"queue", c.input.Key(),
		"n", n,
		"module", payload.FirstString("-", "module"),
		"rule_name", payload.FirstString("-", "rule_name"),
		"sip", payload.FirstString("-", "sip", "source.ip"))
	return nil
}

// Count reports how many payloads have been consumed so far.
func (c *Consumer) Count() int64 {
	return c.count.Load()
}

// Start begins consuming in a goroutine.
func (c *Consumer) Start(ctx context.Context) {
	c.runner.Start(ctx)
}

// Stop stops the loop and waits for it to finish.
func (c *Consumer) Stop() {
	c.runner.Stop()
}

// Run blocks until ctx is cancelled, then stops the loop.
func (c *Consumer) Run(ctx context.Context) error {
	return c.runner.Run(ctx)
}
