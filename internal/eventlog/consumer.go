package eventlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidaelabs/oddbot/pkg/log"
)

// DeliverPolicy selects where a new consumer starts.
type DeliverPolicy int

const (
	// DeliverAll starts at the oldest retained record.
	DeliverAll DeliverPolicy = iota
	// DeliverNew starts after the newest record at creation time.
	DeliverNew
	// DeliverByStartTime starts at the first record published at or after
	// ConsumerConfig.OptStartTime.
	DeliverByStartTime
)

func (p DeliverPolicy) String() string {
	switch p {
	case DeliverNew:
		return "new"
	case DeliverByStartTime:
		return "by_start_time"
	default:
		return "all"
	}
}

// ParseDeliverPolicy maps "all", "new" or "by_start_time" to a policy.
func ParseDeliverPolicy(s string) (DeliverPolicy, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return DeliverAll, nil
	case "new":
		return DeliverNew, nil
	case "by_start_time":
		return DeliverByStartTime, nil
	}
	return DeliverAll, fmt.Errorf("eventlog: unknown deliver policy %q", s)
}

const (
	DefaultMaxDeliver = 3
	DefaultAckWait    = 30 * time.Second
	DefaultFetchWait  = time.Second
)

// ConsumerConfig describes a pull consumer. An empty Durable name creates an
// ephemeral consumer whose state lives only as long as its handle.
type ConsumerConfig struct {
	Durable       string
	FilterSubject string
	DeliverPolicy DeliverPolicy
	OptStartTime  time.Time
	// MaxDeliver bounds total deliveries of a record, first one included.
	MaxDeliver int
	// AckWait is how long a delivery may stay unacknowledged before it is
	// redelivered.
	AckWait time.Duration
	// FetchWait is the default time Fetch blocks when nothing is available.
	FetchWait time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.FetchWait <= 0 {
		c.FetchWait = DefaultFetchWait
	}
}

// consumerState is the cursor and pending list of one consumer. Durable state
// is shared by every handle attached under the same name.
type consumerState struct {
	name    string
	durable bool
	cfg     ConsumerConfig
	created time.Time

	mu          sync.Mutex
	delivered   uint64
	ackFloor    uint64
	pending     map[uint64]*pendingEntry
	redelivered uint64
	terminated  uint64
	closed      bool
}

// Consumer is a handle to a pull consumer.
type Consumer struct {
	stream *Stream
	cs     *consumerState
	logger log.Logger
}

// Delivery is one record handed to a consumer.
type Delivery struct {
	Record
	Stream   string
	Consumer string
	// Deliveries counts how many times this record has been delivered,
	// this delivery included.
	Deliveries int
}

// CreateConsumer creates an ephemeral consumer, or creates or reattaches to a
// durable one. Reattaching keeps the stored cursor and ignores DeliverPolicy.
func (s *Stream) CreateConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Durable != "" {
		if err := ValidateName(cfg.Durable); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, err)
		}
	}
	if cfg.FilterSubject != "" {
		if err := ValidateSubjectPattern(cfg.FilterSubject); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, err)
		}
	}
	cfg.applyDefaults()
	if s.store.isClosed() {
		return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, ErrStoreClosed)
	}
	lastSeq, _, deleted := s.st.snapshot()
	if deleted {
		return nil, fmt.Errorf("%w: %w: %s", ErrConsumerCreate, ErrStreamNotFound, s.Name())
	}

	var start uint64
	switch cfg.DeliverPolicy {
	case DeliverNew:
		start = lastSeq
	case DeliverByStartTime:
		first, err := s.firstSeqAtOrAfter(cfg.OptStartTime.UnixMilli(), lastSeq)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, err)
		}
		start = first - 1
	}

	now := s.store.now()
	if cfg.Durable == "" {
		cs := &consumerState{
			name:      "eph-" + uuid.NewString(),
			cfg:       cfg,
			created:   now,
			delivered: start,
			ackFloor:  start,
			pending:   make(map[uint64]*pendingEntry),
		}
		return s.newConsumer(cs), nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.st.deleted {
		return nil, fmt.Errorf("%w: %w: %s", ErrConsumerCreate, ErrStreamNotFound, s.Name())
	}
	if cs, ok := s.st.durables[cfg.Durable]; ok {
		if cs.cfg.FilterSubject != cfg.FilterSubject {
			return nil, fmt.Errorf("%w: %w: have %q, want %q", ErrConsumerCreate, ErrFilterMismatch, cs.cfg.FilterSubject, cfg.FilterSubject)
		}
		return s.newConsumer(cs), nil
	}

	pc, pending, found, err := loadDurable(s.store.db, s.Name(), cfg.Durable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, err)
	}
	cs := &consumerState{name: cfg.Durable, durable: true, cfg: cfg}
	if found {
		if pc.Filter != cfg.FilterSubject {
			return nil, fmt.Errorf("%w: %w: have %q, want %q", ErrConsumerCreate, ErrFilterMismatch, pc.Filter, cfg.FilterSubject)
		}
		if p, err := ParseDeliverPolicy(pc.Policy); err == nil {
			cs.cfg.DeliverPolicy = p
		}
		cs.created = time.UnixMilli(pc.CreatedMs)
		cs.delivered, cs.ackFloor = pc.Delivered, pc.AckFloor
		cs.redelivered, cs.terminated = pc.Redelivered, pc.Terminated
		cs.pending = pending
	} else {
		cs.created = now
		cs.delivered, cs.ackFloor = start, start
		cs.pending = make(map[uint64]*pendingEntry)
		cs.mu.Lock()
		err := cs.persistLocked(ctx, s, nil, nil)
		cs.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConsumerCreate, err)
		}
	}
	s.st.durables[cfg.Durable] = cs
	c := s.newConsumer(cs)
	c.logger.Debug("durable consumer attached", log.Bool("resumed", found), log.Uint64("delivered", cs.delivered))
	return c, nil
}

func (s *Stream) newConsumer(cs *consumerState) *Consumer {
	return &Consumer{
		stream: s,
		cs:     cs,
		logger: s.store.logger.With(log.Str("stream", s.Name()), log.Str("consumer", cs.name)),
	}
}

// DeleteConsumer removes a durable consumer and its stored state.
func (s *Stream) DeleteConsumer(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.st.mu.Lock()
	cs, ok := s.st.durables[name]
	delete(s.st.durables, name)
	s.st.mu.Unlock()
	if ok {
		cs.mu.Lock()
		cs.closed = true
		cs.mu.Unlock()
	} else if _, _, found, err := loadDurable(s.store.db, s.Name(), name); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: %s", ErrConsumerNotFound, name)
	}
	return s.store.db.DeletePrefix(ctx, KeyConsumerAll(s.Name(), name))
}

// Name returns the consumer name. Ephemeral consumers get a generated one.
func (c *Consumer) Name() string { return c.cs.name }

// Durable reports whether the consumer state is persisted.
func (c *Consumer) Durable() bool { return c.cs.durable }

// FetchOption tunes a single Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	noWait bool
	wait   time.Duration
}

// NoWait makes Fetch return immediately when nothing is available.
func NoWait() FetchOption { return func(o *fetchOptions) { o.noWait = true } }

// MaxWait overrides how long Fetch blocks when nothing is available.
func MaxWait(d time.Duration) FetchOption {
	return func(o *fetchOptions) {
		if d <= 0 {
			o.noWait = true
			return
		}
		o.wait = d
	}
}

// Fetch returns up to batch deliveries in stream order: expired deliveries are
// redelivered first, then records after the cursor that match the filter.
// When nothing is available it blocks until a record is appended, a pending
// delivery expires, the wait elapses or ctx is done. An empty result with a
// nil error means the wait elapsed.
func (c *Consumer) Fetch(ctx context.Context, batch int, opts ...FetchOption) ([]Delivery, error) {
	if batch <= 0 {
		batch = 1
	}
	fo := fetchOptions{wait: c.cs.cfg.FetchWait}
	for _, o := range opts {
		o(&fo)
	}
	deadline := time.Now().Add(fo.wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		ds, notify, nextDue, err := c.collect(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		if len(ds) > 0 || fo.noWait {
			return ds, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if nextDue > 0 && nextDue < remaining {
			remaining = nextDue
		}
		waitNotify(ctx, notify, remaining)
	}
}

// collect gathers deliveries without blocking. notify is the append channel
// observed before scanning, and nextDue the time until the earliest pending
// delivery expires (0 if none).
func (c *Consumer) collect(ctx context.Context, batch int) (ds []Delivery, notify <-chan struct{}, nextDue time.Duration, err error) {
	store := c.stream.store
	if store.isClosed() {
		return nil, nil, 0, ErrStoreClosed
	}
	lastSeq, notify, deleted := c.stream.st.snapshot()
	if deleted {
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrStreamNotFound, c.stream.Name())
	}

	cs := c.cs
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return nil, nil, 0, fmt.Errorf("%w: %s", ErrConsumerNotFound, cs.name)
	}

	now := store.now()
	nowMs := now.UnixMilli()
	expires := now.Add(cs.cfg.AckWait).UnixMilli()
	var set, del []uint64
	fresh, redelivered, terminated := 0, 0, 0

	for _, seq := range cs.sortedPendingLocked() {
		if len(ds) >= batch {
			break
		}
		p := cs.pending[seq]
		if p.ExpiresMs > nowMs {
			continue
		}
		if p.Deliveries >= cs.cfg.MaxDeliver {
			delete(cs.pending, seq)
			del = append(del, seq)
			terminated++
			continue
		}
		rec, found, err := c.stream.readOne(seq)
		if err != nil {
			return nil, nil, 0, err
		}
		if !found {
			// Trimmed by retention while pending.
			delete(cs.pending, seq)
			del = append(del, seq)
			continue
		}
		p.Deliveries++
		p.LastMs, p.ExpiresMs = nowMs, expires
		set = append(set, seq)
		ds = append(ds, c.delivery(rec, p.Deliveries))
		redelivered++
	}

	if len(ds) < batch && cs.delivered < lastSeq {
		res, err := c.stream.scanFrom(cs.delivered+1, lastSeq, cs.cfg.FilterSubject, batch-len(ds))
		if err != nil {
			return nil, nil, 0, err
		}
		for _, rec := range res.records {
			cs.pending[rec.Seq] = &pendingEntry{Deliveries: 1, LastMs: nowMs, ExpiresMs: expires}
			set = append(set, rec.Seq)
			ds = append(ds, c.delivery(rec, 1))
			fresh++
		}
		if res.last > cs.delivered {
			cs.delivered = res.last
		}
	}

	prevFloor := cs.ackFloor
	cs.recomputeFloorLocked()
	cs.redelivered += uint64(redelivered)
	cs.terminated += uint64(terminated)
	if len(set) > 0 || len(del) > 0 || cs.ackFloor != prevFloor {
		if err := cs.persistLocked(ctx, c.stream, set, del); err != nil {
			return nil, nil, 0, err
		}
	}

	if fresh+redelivered > 0 {
		store.metrics.ObserveDelivered(c.stream.Name(), c.metricsName(), fresh, redelivered)
	}
	if terminated > 0 {
		store.metrics.ObserveTerminated(c.stream.Name(), c.metricsName(), terminated)
		c.logger.Warn("deliveries exhausted, records dropped", log.Int("count", terminated), log.Int("max_deliver", cs.cfg.MaxDeliver))
	}
	if e := cs.earliestExpiryLocked(); e > 0 {
		nextDue = time.Duration(e-nowMs) * time.Millisecond
		if nextDue <= 0 {
			nextDue = time.Millisecond
		}
	}
	return ds, notify, nextDue, nil
}

func (c *Consumer) delivery(rec Record, n int) Delivery {
	return Delivery{Record: rec, Stream: c.stream.Name(), Consumer: c.cs.name, Deliveries: n}
}

// metricsName keeps generated ephemeral names out of metric labels.
func (c *Consumer) metricsName() string {
	if !c.cs.durable {
		return "ephemeral"
	}
	return c.cs.name
}

// Ack acknowledges a delivery. Acknowledging an unknown or already
// acknowledged record is a no-op.
func (c *Consumer) Ack(ctx context.Context, d Delivery) error {
	return c.AckSeq(ctx, d.Seq)
}

// AckSeq acknowledges by stream sequence. Acking through a deleted or
// closed consumer fails with ErrConsumerNotFound.
func (c *Consumer) AckSeq(ctx context.Context, seq uint64) error {
	if c.stream.store.isClosed() {
		return fmt.Errorf("%w: %w", ErrAck, ErrStoreClosed)
	}
	if _, _, deleted := c.stream.st.snapshot(); deleted {
		return fmt.Errorf("%w: %w: %s", ErrAck, ErrStreamNotFound, c.stream.Name())
	}
	cs := c.cs
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return fmt.Errorf("%w: %w: %s", ErrAck, ErrConsumerNotFound, cs.name)
	}
	p, ok := cs.pending[seq]
	if !ok {
		return nil
	}
	delete(cs.pending, seq)
	prevFloor := cs.ackFloor
	cs.recomputeFloorLocked()
	if err := cs.persistLocked(ctx, c.stream, nil, []uint64{seq}); err != nil {
		cs.pending[seq] = p
		cs.ackFloor = prevFloor
		return fmt.Errorf("%w: %w", ErrAck, err)
	}
	c.stream.store.metrics.ObserveAck(c.stream.Name(), c.metricsName())
	return nil
}

// ConsumerInfo is a point-in-time view of a consumer.
type ConsumerInfo struct {
	Stream        string `json:"stream"`
	Name          string `json:"name"`
	Durable       bool   `json:"durable"`
	FilterSubject string `json:"filter_subject"`
	DeliverPolicy string `json:"deliver_policy"`
	// Delivered is the highest stream sequence scanned by the consumer.
	Delivered uint64 `json:"delivered"`
	// AckFloor is the sequence at or below which everything is acknowledged.
	AckFloor      uint64 `json:"ack_floor"`
	NumAckPending int    `json:"num_ack_pending"`
	// NumPending counts stream records not yet scanned.
	NumPending  uint64 `json:"num_pending"`
	Redelivered uint64 `json:"redelivered"`
	Terminated  uint64 `json:"terminated"`
}

func (c *Consumer) Info() ConsumerInfo {
	lastSeq, _, _ := c.stream.st.snapshot()
	cs := c.cs
	cs.mu.Lock()
	defer cs.mu.Unlock()
	info := ConsumerInfo{
		Stream:        c.stream.Name(),
		Name:          cs.name,
		Durable:       cs.durable,
		FilterSubject: cs.cfg.FilterSubject,
		DeliverPolicy: cs.cfg.DeliverPolicy.String(),
		Delivered:     cs.delivered,
		AckFloor:      cs.ackFloor,
		NumAckPending: len(cs.pending),
		Redelivered:   cs.redelivered,
		Terminated:    cs.terminated,
	}
	if lastSeq > cs.delivered {
		info.NumPending = lastSeq - cs.delivered
	}
	return info
}

// Close releases the handle. Ephemeral state is discarded; durable state
// stays attached to the stream for the next handle.
func (c *Consumer) Close() error {
	if c.cs.durable {
		return nil
	}
	c.cs.mu.Lock()
	c.cs.closed = true
	c.cs.pending = nil
	c.cs.mu.Unlock()
	return nil
}
