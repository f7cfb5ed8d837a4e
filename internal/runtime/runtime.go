package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corvidaelabs/oddbot/internal/broadcast"
	cfgpkg "github.com/corvidaelabs/oddbot/internal/config"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/metrics"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
}

// Runtime wires storage, the event log, the live broadcaster and metrics for
// a single-node instance.
type Runtime struct {
	db      *pebblestore.DB
	store   *eventlog.Store
	bc      *broadcast.Broadcaster[squeak.Stored]
	config  cfgpkg.Config
	logger  log.Logger
	metrics *metrics.Metrics
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store, err := eventlog.OpenStore(db, eventlog.StoreOptions{Logger: logger, Metrics: m})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	capacity := opts.Config.Broadcast.Capacity
	if capacity <= 0 {
		capacity = broadcast.DefaultCapacity
	}
	return &Runtime{
		db:      db,
		store:   store,
		bc:      broadcast.New[squeak.Stored](capacity, broadcast.WithMetrics(m)),
		config:  opts.Config,
		logger:  logger,
		metrics: m,
	}, nil
}

// Close shuts the broadcaster and the store, then closes storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	r.bc.Close()
	err := r.store.Close()
	return errors.Join(err, r.db.Close())
}

// CheckHealth reports whether the store can serve requests.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.Healthy()
}

// EventStream connects to the configured stream.
func (r *Runtime) EventStream(ctx context.Context) (*eventlog.Stream, error) {
	if r.config.Stream.Name == "" {
		return nil, fmt.Errorf("%w: no stream name configured", eventlog.ErrConnection)
	}
	return r.store.Connect(ctx, r.config.Stream.Name)
}

// EnsureEventStream connects to the configured stream, creating it bound to
// "<prefix>.>" if it does not exist yet.
func (r *Runtime) EnsureEventStream(ctx context.Context) (*eventlog.Stream, error) {
	st, err := r.EventStream(ctx)
	if err == nil || !errors.Is(err, eventlog.ErrStreamNotFound) {
		return st, err
	}
	st, err = r.store.CreateStream(ctx, eventlog.StreamConfig{
		Name:        r.config.Stream.Name,
		Subjects:    []string{r.Prefix() + ".>"},
		Description: "oddbot events",
	})
	if errors.Is(err, eventlog.ErrStreamExists) {
		return r.EventStream(ctx)
	}
	if err == nil {
		r.logger.Info("created event stream", log.Str("stream", st.Name()))
	}
	return st, err
}

// Prefix returns the configured subject prefix.
func (r *Runtime) Prefix() string {
	if r.config.Stream.Prefix == "" {
		return squeak.DefaultPrefix
	}
	return r.config.Stream.Prefix
}

// Subject returns the subject squeaks are published under.
func (r *Runtime) Subject() string { return squeak.Subject(r.Prefix()) }

func (r *Runtime) Store() *eventlog.Store                             { return r.store }
func (r *Runtime) Broadcaster() *broadcast.Broadcaster[squeak.Stored] { return r.bc }
func (r *Runtime) Metrics() *metrics.Metrics                          { return r.metrics }
func (r *Runtime) Logger() log.Logger                                 { return r.logger }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
