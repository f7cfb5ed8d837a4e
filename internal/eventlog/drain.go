package eventlog

import (
	"context"
	"time"
)

// DrainOptions tunes Drain.
type DrainOptions struct {
	// BatchSize is the number of records fetched per round. Defaults to 100.
	BatchSize int
	// Delay is the pause between rounds.
	Delay time.Duration
	// OnBatch, if set, is called after each round with the round size and
	// the running total.
	OnBatch func(batch, total int)
}

// DeliveryHandler processes one delivery. Returning an error stops Drain
// before the delivery is acknowledged.
type DeliveryHandler func(ctx context.Context, d Delivery) error

// Drain reads everything currently available to c: it fetches BatchSize
// records without waiting, hands each to handle and acknowledges it, and
// stops after the first round that returns fewer than BatchSize records.
// It returns the number of records handled and acknowledged.
func Drain(ctx context.Context, c *Consumer, opts DrainOptions, handle DeliveryHandler) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	total := 0
	for {
		ds, err := c.Fetch(ctx, opts.BatchSize, NoWait())
		if err != nil {
			return total, err
		}
		for _, d := range ds {
			if err := handle(ctx, d); err != nil {
				return total, err
			}
			if err := c.Ack(ctx, d); err != nil {
				return total, err
			}
			total++
		}
		if opts.OnBatch != nil {
			opts.OnBatch(len(ds), total)
		}
		if len(ds) < opts.BatchSize {
			return total, nil
		}
		if err := sleepCtx(ctx, opts.Delay); err != nil {
			return total, err
		}
	}
}

// Backoff returns the pause before retry number attempt (0-based) after a
// failed fetch: 100ms doubling up to 5s.
func Backoff(attempt int) time.Duration {
	const (
		base     = 100 * time.Millisecond
		maxDelay = 5 * time.Second
	)
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 6 {
		return maxDelay
	}
	d := base << uint(attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
