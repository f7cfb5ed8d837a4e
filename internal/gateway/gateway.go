package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/corvidaelabs/oddbot/internal/broadcast"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// Metrics receives gateway and forwarder observations.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	ObserveReplayed(n int)
	ObserveFrameSent()
	ObserveForwarded(receivers int)
	ObserveFetchError()
	ObserveDecodeFailure(path string)
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()              {}
func (noopMetrics) SessionClosed()              {}
func (noopMetrics) ObserveReplayed(int)         {}
func (noopMetrics) ObserveFrameSent()           {}
func (noopMetrics) ObserveForwarded(int)        {}
func (noopMetrics) ObserveFetchError()          {}
func (noopMetrics) ObserveDecodeFailure(string) {}

// ReplayOptions tunes the history replay a session performs before going live.
type ReplayOptions struct {
	BatchSize int
	// MaxAge limits replay to squeaks published within this window. Zero
	// replays the whole stream.
	MaxAge     time.Duration
	BatchDelay time.Duration
}

// DefaultReplayOptions returns 100 records per batch, 24h of history and a
// 50ms pause between batches.
func DefaultReplayOptions() ReplayOptions {
	return ReplayOptions{BatchSize: 100, MaxAge: 24 * time.Hour, BatchDelay: 50 * time.Millisecond}
}

// Options configures a Gateway.
type Options struct {
	Stream      *eventlog.Stream
	Broadcaster *broadcast.Broadcaster[squeak.Stored]
	// Subject is the squeak subject replay consumers filter on.
	Subject      string
	Replay       ReplayOptions
	WriteTimeout time.Duration
	Logger       log.Logger
	Metrics      Metrics
	Now          func() time.Time
}

// Gateway runs client sessions: optional replay of stored squeaks followed by
// live squeaks from the broadcaster.
type Gateway struct {
	stream       *eventlog.Stream
	bc           *broadcast.Broadcaster[squeak.Stored]
	subject      string
	replay       ReplayOptions
	writeTimeout time.Duration
	logger       log.Logger
	metrics      Metrics
	now          func() time.Time
}

// New returns a Gateway. Zero-valued options fall back to defaults.
func New(opts Options) *Gateway {
	g := &Gateway{
		stream:       opts.Stream,
		bc:           opts.Broadcaster,
		subject:      opts.Subject,
		replay:       opts.Replay,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
	if g.subject == "" {
		g.subject = squeak.Subject("")
	}
	if g.replay.BatchSize <= 0 {
		g.replay.BatchSize = DefaultReplayOptions().BatchSize
	}
	if g.writeTimeout == 0 {
		g.writeTimeout = 10 * time.Second
	}
	if g.logger == nil {
		g.logger = log.NewNopLogger()
	}
	g.logger = g.logger.WithComponent("gateway")
	if g.metrics == nil {
		g.metrics = noopMetrics{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// SessionOptions are the per-connection choices made by the client.
type SessionOptions struct {
	Replay bool
	Filter *Filter
}

// Serve runs one session on conn until the client leaves, a write fails or
// ctx is done, then closes conn. A normal client close returns nil.
func (g *Gateway) Serve(ctx context.Context, conn Conn, so SessionOptions) error {
	sid := uuid.NewString()
	logger := g.logger.With(log.Str("session", sid))
	if so.Filter != nil {
		logger = logger.With(log.Str("filter", so.Filter.String()))
	}
	g.metrics.SessionOpened()
	defer g.metrics.SessionClosed()

	// Subscribe before replaying so nothing published meanwhile is missed.
	rx := g.bc.Subscribe()
	defer rx.Close()

	reason := "bye"
	defer func() { _ = conn.Close(reason) }()

	logger.Debug("session started", log.Bool("replay", so.Replay))

	var last uint64
	if so.Replay {
		var err error
		last, err = g.replayHistory(ctx, conn, so.Filter, logger)
		if err != nil {
			reason = "replay failed"
			if isNormalClose(err) {
				return nil
			}
			logger.Warn("replay aborted", log.Err(err))
			return err
		}
	}

	// Both directions only return with an error, so whichever ends first
	// cancels the other.
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.outbound(gctx, conn, rx, last, so.Filter, logger) })
	eg.Go(func() error { return g.inbound(gctx, conn, logger) })
	err := eg.Wait()
	if dropped := rx.Dropped(); dropped > 0 {
		logger.Info("session lost live squeaks", log.Uint64("dropped", dropped))
	}
	if isNormalClose(err) || errors.Is(err, broadcast.ErrClosed) {
		logger.Debug("session ended")
		return nil
	}
	reason = "error"
	logger.Debug("session ended", log.Err(err))
	return err
}

// replayHistory sends stored squeaks in publish order through a private
// ephemeral consumer and returns the last stream sequence it delivered.
func (g *Gateway) replayHistory(ctx context.Context, conn Conn, filter *Filter, logger log.Logger) (uint64, error) {
	cfg := eventlog.ConsumerConfig{FilterSubject: g.subject, DeliverPolicy: eventlog.DeliverAll}
	if g.replay.MaxAge > 0 {
		cfg.DeliverPolicy = eventlog.DeliverByStartTime
		cfg.OptStartTime = g.now().Add(-g.replay.MaxAge)
	}
	c, err := g.stream.CreateConsumer(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	var last uint64
	sent := 0
	total, err := eventlog.Drain(ctx, c, eventlog.DrainOptions{
		BatchSize: g.replay.BatchSize,
		Delay:     g.replay.BatchDelay,
	}, func(ctx context.Context, d eventlog.Delivery) error {
		if d.Seq > last {
			last = d.Seq
		}
		s, err := squeak.Decode(d.Payload)
		if err != nil {
			g.metrics.ObserveDecodeFailure("replay")
			logger.Warn("skipping undecodable record", log.Uint64("seq", d.Seq), log.Err(err))
			return nil
		}
		if !filter.Match(s) {
			return nil
		}
		if err := g.send(ctx, conn, s, logger); err != nil {
			if errors.Is(err, squeak.ErrSerialization) {
				return nil
			}
			return fmt.Errorf("write: %w", err)
		}
		sent++
		return nil
	})
	g.metrics.ObserveReplayed(sent)
	if err != nil {
		return last, err
	}
	logger.Debug("replay complete", log.Int("records", total), log.Int("sent", sent))
	return last, nil
}

// outbound relays live squeaks. Anything at or below last was already
// covered by replay.
func (g *Gateway) outbound(ctx context.Context, conn Conn, rx *broadcast.Receiver[squeak.Stored], last uint64, filter *Filter, logger log.Logger) error {
	for {
		st, err := rx.Recv(ctx)
		var lagged *broadcast.LaggedError
		if errors.As(err, &lagged) {
			logger.Warn("subscriber lagged", log.Uint64("skipped", lagged.Skipped))
			continue
		}
		if err != nil {
			return err
		}
		if st.Seq <= last {
			continue
		}
		if !filter.Match(st.Squeak) {
			continue
		}
		if err := g.send(ctx, conn, st.Squeak, logger); err != nil {
			if errors.Is(err, squeak.ErrSerialization) {
				continue
			}
			return fmt.Errorf("write: %w", err)
		}
	}
}

func (g *Gateway) inbound(ctx context.Context, conn Conn, logger log.Logger) error {
	for {
		typ, p, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		logger.Debug("client frame ignored", log.Str("type", typ.String()), log.Int("bytes", len(p)))
	}
}

func (g *Gateway) send(ctx context.Context, conn Conn, s squeak.Squeak, logger log.Logger) error {
	b, err := squeak.Encode(s)
	if err != nil {
		logger.Error("failed to serialize squeak", log.Str("author", s.Author.Name), log.Err(err))
		return err
	}
	if err := writeTimeout(ctx, g.writeTimeout, conn, b); err != nil {
		return err
	}
	g.metrics.ObserveFrameSent()
	return nil
}
