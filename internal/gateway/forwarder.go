package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corvidaelabs/oddbot/internal/broadcast"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// DefaultForwarderConsumer is the durable consumer the forwarder reads with.
const DefaultForwarderConsumer = "oblivion_websocket_main_consumer"

// ForwarderOptions configures a Forwarder.
type ForwarderOptions struct {
	Stream      *eventlog.Stream
	Broadcaster *broadcast.Broadcaster[squeak.Stored]
	Subject     string
	// Consumer is the durable consumer name. Every forwarder attached to the
	// same name shares one cursor.
	Consumer     string
	BatchSize    int
	PollInterval time.Duration
	MaxDeliver   int
	AckWait      time.Duration
	// Backoff returns the pause after the attempt-th consecutive fetch
	// failure. Defaults to eventlog.Backoff.
	Backoff func(attempt int) time.Duration
	Logger  log.Logger
	Metrics Metrics
}

// Forwarder moves squeaks from the durable log to the live broadcaster.
type Forwarder struct {
	opts    ForwarderOptions
	logger  log.Logger
	metrics Metrics
}

// NewForwarder returns a Forwarder with defaults applied: the default consumer
// name, batches of 20 and a 100ms poll interval.
func NewForwarder(opts ForwarderOptions) *Forwarder {
	if opts.Subject == "" {
		opts.Subject = squeak.Subject("")
	}
	if opts.Consumer == "" {
		opts.Consumer = DefaultForwarderConsumer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Backoff == nil {
		opts.Backoff = eventlog.Backoff
	}
	f := &Forwarder{opts: opts, logger: opts.Logger, metrics: opts.Metrics}
	if f.logger == nil {
		f.logger = log.NewNopLogger()
	}
	f.logger = f.logger.WithComponent("forwarder").With(log.Str("consumer", opts.Consumer))
	if f.metrics == nil {
		f.metrics = noopMetrics{}
	}
	return f
}

// Run forwards until ctx is done, returning nil in that case. It returns an
// error if the consumer cannot be created or the stream or store goes away.
func (f *Forwarder) Run(ctx context.Context) error {
	c, err := f.opts.Stream.CreateConsumer(ctx, eventlog.ConsumerConfig{
		Durable:       f.opts.Consumer,
		FilterSubject: f.opts.Subject,
		DeliverPolicy: eventlog.DeliverNew,
		MaxDeliver:    f.opts.MaxDeliver,
		AckWait:       f.opts.AckWait,
	})
	if err != nil {
		return fmt.Errorf("forwarder: %w", err)
	}
	defer c.Close()
	f.logger.Info("forwarding squeaks", log.Str("subject", f.opts.Subject), log.Int("batch", f.opts.BatchSize))

	attempt := 0
	for {
		ds, err := c.Fetch(ctx, f.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, eventlog.ErrStoreClosed) || errors.Is(err, eventlog.ErrStreamNotFound) {
				return fmt.Errorf("forwarder: %w", err)
			}
			f.metrics.ObserveFetchError()
			delay := f.opts.Backoff(attempt)
			attempt++
			f.logger.Warn("fetch failed", log.Err(err), log.Int("attempt", attempt), log.Dur("retry_in", delay))
			if sleep(ctx, delay) != nil {
				return nil
			}
			continue
		}
		attempt = 0
		for _, d := range ds {
			f.forward(ctx, c, d)
		}
		if sleep(ctx, f.opts.PollInterval) != nil {
			return nil
		}
	}
}

// forward broadcasts one delivery and acknowledges it whether or not anyone
// is listening. Undecodable records stay unacknowledged so they are retried
// until max deliver.
func (f *Forwarder) forward(ctx context.Context, c *eventlog.Consumer, d eventlog.Delivery) {
	s, err := squeak.Decode(d.Payload)
	if err != nil {
		f.metrics.ObserveDecodeFailure("forward")
		f.logger.Error("failed to decode squeak", log.Uint64("seq", d.Seq), log.Int("deliveries", d.Deliveries), log.Err(err))
		return
	}
	n := f.opts.Broadcaster.Send(squeak.Stored{Seq: d.Seq, Squeak: s})
	f.metrics.ObserveForwarded(n)
	if n == 0 {
		f.logger.Debug("no live receivers", log.Str("squeak", s.ID.String()))
	}
	if err := c.Ack(ctx, d); err != nil {
		f.logger.Warn("ack failed", log.Uint64("seq", d.Seq), log.Err(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
