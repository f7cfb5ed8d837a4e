package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/corvidaelabs/oddbot/internal/config"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/gateway"
	"github.com/corvidaelabs/oddbot/internal/runtime"
	httpserver "github.com/corvidaelabs/oddbot/internal/server/http"
	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
	logpkg "github.com/corvidaelabs/oddbot/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	// CreateStream creates the configured event stream when it is missing
	// instead of failing startup.
	CreateStream bool
	// Listener overrides Config.HTTP.Addr.
	Listener net.Listener
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// Run opens the store, connects to the event stream and serves HTTP and
// WebSocket clients until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	procLogger := opts.Logger
	if procLogger == nil {
		l, err := logpkg.ApplyConfig(cfg.Log)
		if err != nil {
			return fmt.Errorf("log config: %w", err)
		}
		procLogger = l
	}
	restore := logpkg.RedirectStdLog(procLogger)
	defer restore()

	fsync, err := pebblestore.ParseFsyncMode(cfg.Storage.Fsync)
	if err != nil {
		return err
	}
	storeDir := filepath.Join(cfg.DataDir(), "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         fsync,
		FsyncInterval: cfg.Storage.FsyncInterval,
		Config:        cfg,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	var stream *eventlog.Stream
	if opts.CreateStream {
		stream, err = rt.EnsureEventStream(sctx)
	} else {
		stream, err = rt.EventStream(sctx)
	}
	if err != nil {
		return err
	}

	procLogger.Info("Starting oddbot server",
		logpkg.Str("http", cfg.HTTP.Addr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("stream", stream.Name()),
		logpkg.Str("subject", rt.Subject()),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	fwd := gateway.NewForwarder(gateway.ForwarderOptions{
		Stream:       stream,
		Broadcaster:  rt.Broadcaster(),
		Subject:      rt.Subject(),
		Consumer:     cfg.Forwarder.Consumer,
		BatchSize:    cfg.Forwarder.BatchSize,
		PollInterval: cfg.Forwarder.PollInterval,
		MaxDeliver:   cfg.Consumer.MaxDeliver,
		AckWait:      cfg.Consumer.AckWait,
		Logger:       procLogger,
		Metrics:      rt.Metrics(),
	})
	gw := gateway.New(gateway.Options{
		Stream:      stream,
		Broadcaster: rt.Broadcaster(),
		Subject:     rt.Subject(),
		Replay: gateway.ReplayOptions{
			BatchSize:  cfg.Replay.BatchSize,
			MaxAge:     cfg.Replay.MaxAge,
			BatchDelay: cfg.Replay.BatchDelay,
		},
		Logger:  procLogger,
		Metrics: rt.Metrics(),
	})
	svc := eventsvc.New(rt, procLogger.With(logpkg.Component("events")))
	hsrv := httpserver.New(rt, svc, gw, procLogger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Live delivery stops with the forwarder; HTTP keeps serving.
		if err := fwd.Run(sctx); err != nil {
			procLogger.Error("forwarder stopped", logpkg.Err(err))
		}
	}()

	httpErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if opts.Listener != nil {
			err = hsrv.Serve(sctx, opts.Listener)
		} else {
			err = hsrv.ListenAndServe(sctx, cfg.HTTP.Addr)
		}
		if err != nil && sctx.Err() == nil {
			procLogger.Error("http error", logpkg.Err(err))
			httpErr <- err
		}
	}()

	select {
	case <-sctx.Done():
		err = nil
	case err = <-httpErr:
		stop()
	}
	// Stop accepting before the runtime and DB close underneath handlers.
	hsrv.Close()
	rt.Broadcaster().Close()
	wg.Wait()
	procLogger.Info("oddbot server stopped")
	return err
}
