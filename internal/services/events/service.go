package eventsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/runtime"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// DefaultClearBatch and DefaultClearDelay pace ClearStream.
const (
	DefaultClearBatch = 100
	DefaultClearDelay = 100 * time.Millisecond
)

// Service exposes squeak publishing and stream administration on top of the
// runtime's event log. It is shared by the HTTP server and the CLI.
type Service struct {
	rt         *runtime.Runtime
	logger     log.Logger
	clearDelay time.Duration
}

// New returns a Service using the provided logger.
func New(rt *runtime.Runtime, logger log.Logger) *Service {
	if logger == nil {
		logger = rt.Logger()
	}
	return &Service{rt: rt, logger: logger.WithComponent("events"), clearDelay: DefaultClearDelay}
}

// PublishSqueak builds a squeak and appends it to the configured stream.
func (s *Service) PublishSqueak(ctx context.Context, user, content string) (squeak.Squeak, error) {
	sq, err := squeak.NewBuilder().User(user).Content(content).Build()
	if err != nil {
		return squeak.Squeak{}, err
	}
	st, err := s.rt.EventStream(ctx)
	if err != nil {
		return squeak.Squeak{}, err
	}
	ack, err := st.Publish(ctx, squeak.Message(s.rt.Prefix(), sq))
	if err != nil {
		return squeak.Squeak{}, err
	}
	s.logger.Debug("squeak published", log.Str("id", sq.ID.String()), log.Str("author", sq.Author.Name), log.Uint64("seq", ack.Seq))
	return sq, nil
}

// RecentSqueaks returns up to limit of the newest squeaks in publish order.
// Records that do not decode are skipped.
func (s *Service) RecentSqueaks(ctx context.Context, limit int) ([]squeak.Squeak, error) {
	st, err := s.rt.EventStream(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := st.Recent(ctx, limit, s.rt.Subject())
	if err != nil {
		return nil, err
	}
	out := make([]squeak.Squeak, 0, len(recs))
	for _, rec := range recs {
		sq, err := squeak.Decode(rec.Payload)
		if err != nil {
			s.logger.Warn("skipping undecodable record", log.Uint64("seq", rec.Seq), log.Err(err))
			continue
		}
		out = append(out, sq)
	}
	return out, nil
}

// CreateStream creates a stream and returns its info.
func (s *Service) CreateStream(ctx context.Context, cfg eventlog.StreamConfig) (eventlog.StreamInfo, error) {
	st, err := s.rt.Store().CreateStream(ctx, cfg)
	if err != nil {
		return eventlog.StreamInfo{}, err
	}
	s.logger.Info("stream created", log.Str("stream", cfg.Name), log.Any("subjects", cfg.Subjects))
	return st.Info(ctx)
}

// DeleteStream destroys a stream with its records and consumers.
func (s *Service) DeleteStream(ctx context.Context, name string) error {
	if err := s.rt.Store().DeleteStream(ctx, name); err != nil {
		return err
	}
	s.logger.Info("stream deleted", log.Str("stream", name))
	return nil
}

// StreamInfo reports the extent of one stream.
func (s *Service) StreamInfo(ctx context.Context, name string) (eventlog.StreamInfo, error) {
	st, err := s.rt.Store().Connect(ctx, name)
	if err != nil {
		return eventlog.StreamInfo{}, err
	}
	return st.Info(ctx)
}

// ListStreams returns info for every stream, ordered by name.
func (s *Service) ListStreams(ctx context.Context) ([]eventlog.StreamInfo, error) {
	cfgs, err := s.rt.Store().ListStreams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]eventlog.StreamInfo, 0, len(cfgs))
	for _, cfg := range cfgs {
		info, err := s.StreamInfo(ctx, cfg.Name)
		if errors.Is(err, eventlog.ErrStreamNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// ClearStream reads every record under the configured prefix through a
// throwaway consumer, acknowledging each one, and reports progress after
// every batch. Records stay in the stream; only the consumer's view is
// consumed.
func (s *Service) ClearStream(ctx context.Context, name string, batchSize int, onBatch func(batch, total int)) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultClearBatch
	}
	st, err := s.rt.Store().Connect(ctx, name)
	if err != nil {
		return 0, err
	}
	c, err := st.CreateConsumer(ctx, eventlog.ConsumerConfig{
		FilterSubject: s.rt.Prefix() + ".>",
		DeliverPolicy: eventlog.DeliverAll,
	})
	if err != nil {
		return 0, err
	}
	defer c.Close()

	total, err := eventlog.Drain(ctx, c, eventlog.DrainOptions{
		BatchSize: batchSize,
		Delay:     s.clearDelay,
		OnBatch:   onBatch,
	}, func(context.Context, eventlog.Delivery) error { return nil })
	if err != nil {
		return total, fmt.Errorf("clear %s: %w", name, err)
	}
	s.logger.Info("stream cleared", log.Str("stream", name), log.Int("total", total))
	return total, nil
}
