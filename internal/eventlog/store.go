package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// DefaultMaxAge is the retention applied to every stream at creation.
const DefaultMaxAge = 30 * 24 * time.Hour

// Metrics observes log activity. All methods must be safe for concurrent use.
type Metrics interface {
	ObservePublish(stream string, bytes int)
	ObserveDelivered(stream, consumer string, fresh, redelivered int)
	ObserveAck(stream, consumer string)
	ObserveTerminated(stream, consumer string, n int)
	ObserveTrim(stream string, n int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePublish(string, int)                {}
func (noopMetrics) ObserveDelivered(string, string, int, int) {}
func (noopMetrics) ObserveAck(string, string)                 {}
func (noopMetrics) ObserveTerminated(string, string, int)     {}
func (noopMetrics) ObserveTrim(string, int)                   {}

// StoreOptions configures a Store.
type StoreOptions struct {
	Logger  log.Logger
	Metrics Metrics
	// Now is the clock used for record timestamps, ack deadlines and trims.
	Now func() time.Time
	// TrimInterval rate-limits the retention trim run after publishes.
	// Zero means one minute; negative disables trimming on publish.
	TrimInterval time.Duration
}

// StreamConfig describes a stream.
type StreamConfig struct {
	Name        string        `json:"name"`
	Subjects    []string      `json:"subjects"`
	Description string        `json:"description,omitempty"`
	MaxAge      time.Duration `json:"max_age"`
}

type streamMeta struct {
	Config    StreamConfig `json:"config"`
	CreatedMs int64        `json:"created_ms"`
}

// Store is the log substrate: it owns the Pebble handle and the registry of
// stream state shared by every handle in the process.
type Store struct {
	db      *pebblestore.DB
	logger  log.Logger
	metrics Metrics
	now     func() time.Time
	trimIv  time.Duration

	mu      sync.Mutex
	closed  bool
	streams map[string]*streamState
}

// OpenStore binds a Store to an opened database.
func OpenStore(db *pebblestore.DB, opts StoreOptions) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database", ErrConnection)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s := &Store{
		db:      db,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		trimIv:  opts.TrimInterval,
		streams: make(map[string]*streamState),
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	s.logger = s.logger.WithComponent("eventlog")
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.trimIv == 0 {
		s.trimIv = time.Minute
	}
	return s, nil
}

// Close wakes every blocked fetch and rejects further operations. The
// underlying database is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, st := range s.streams {
		st.mu.Lock()
		st.wakeLocked()
		st.mu.Unlock()
	}
	return nil
}

// Healthy reports whether the store and its database are usable.
func (s *Store) Healthy() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}
	return s.db.Ping()
}

// CreateStream creates a new stream. It fails if the name is taken.
func (s *Store) CreateStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("%w: %w: no subjects", ErrStreamCreate, ErrInvalidSubject)
	}
	for _, subj := range cfg.Subjects {
		if err := ValidateSubjectPattern(subj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
		}
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	cfg.Subjects = append([]string(nil), cfg.Subjects...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, ErrStoreClosed)
	}
	if _, ok := s.streams[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrStreamCreate, ErrStreamExists, cfg.Name)
	}
	if _, err := s.db.Get(KeyStreamMeta(cfg.Name)); err == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrStreamCreate, ErrStreamExists, cfg.Name)
	} else if !errors.Is(err, pebblestore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}

	created := s.now()
	meta, err := json.Marshal(streamMeta{Config: cfg, CreatedMs: created.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyStreamMeta(cfg.Name), meta, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}
	if err := b.Set(KeyStreamSeq(cfg.Name), appendBE8(nil, 0), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStreamCreate, err)
	}

	st := newStreamState(cfg, created)
	s.streams[cfg.Name] = st
	s.logger.Info("stream created", log.Str("stream", cfg.Name), log.Any("subjects", cfg.Subjects))
	return &Stream{store: s, st: st}, nil
}

// Connect returns a handle to an existing stream.
func (s *Store) Connect(ctx context.Context, name string) (*Stream, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %w", ErrConnection, ErrStoreClosed)
	}
	st, err := s.loadLocked(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return &Stream{store: s, st: st}, nil
}

// loadLocked returns the shared state of a stream, reading it from disk on
// first use. Caller holds s.mu.
func (s *Store) loadLocked(name string) (*streamState, error) {
	if st, ok := s.streams[name]; ok {
		return st, nil
	}
	raw, err := s.db.Get(KeyStreamMeta(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var meta streamMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: stream metadata: %w", ErrCorruptRecord, err)
	}
	st := newStreamState(meta.Config, time.UnixMilli(meta.CreatedMs))
	if v, err := s.db.Get(KeyStreamSeq(name)); err == nil && len(v) >= 8 {
		st.lastSeq = binary.BigEndian.Uint64(v[:8])
	}
	s.streams[name] = st
	return st, nil
}

// DeleteStream irreversibly removes a stream, its entries and its consumers.
// Open handles observe the deletion on their next operation.
func (s *Store) DeleteStream(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamDelete, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrStreamDelete, ErrStoreClosed)
	}
	st, err := s.loadLocked(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamDelete, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := s.db.DeletePrefix(ctx, KeyStreamPrefix(name)); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamDelete, err)
	}
	st.deleted = true
	st.durables = nil
	st.wakeLocked()
	delete(s.streams, name)
	s.logger.Info("stream deleted", log.Str("stream", name))
	return nil
}

// ListStreams returns the configuration of every stream, sorted by name.
func (s *Store) ListStreams(ctx context.Context) ([]StreamConfig, error) {
	var out []StreamConfig
	prefix := KeyStreamsPrefix()
	err := s.db.ScanPrefix(prefix, func(k, v []byte) (bool, error) {
		if len(k) < len(metaSuffix) || string(k[len(k)-len(metaSuffix):]) != string(metaSuffix) {
			return true, nil
		}
		// st/{name}/m has exactly one separator after the prefix.
		rest := k[len(prefix) : len(k)-len(metaSuffix)]
		for _, c := range rest {
			if c == '/' {
				return true, nil
			}
		}
		var meta streamMeta
		if err := json.Unmarshal(v, &meta); err != nil {
			return false, fmt.Errorf("%w: stream metadata: %w", ErrCorruptRecord, err)
		}
		out = append(out, meta.Config)
		return true, ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
