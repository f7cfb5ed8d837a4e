package runtime

import (
	"context"
	"errors"
	"testing"

	cfgpkg "github.com/corvidaelabs/oddbot/internal/config"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
)

func openTest(t *testing.T, cfg cfgpkg.Config) *Runtime {
	t.Helper()
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openTest(t, cfgpkg.Default())
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatalf("expected unhealthy after close")
	}
}

func TestEventStreamRequiresConfiguredName(t *testing.T) {
	rt := openTest(t, cfgpkg.Default())
	if _, err := rt.EventStream(context.Background()); !errors.Is(err, eventlog.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestEnsureEventStream(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Stream.Name = "events"
	cfg.Stream.Prefix = "test"
	rt := openTest(t, cfg)
	ctx := context.Background()

	if _, err := rt.EventStream(ctx); !errors.Is(err, eventlog.ErrStreamNotFound) {
		t.Fatalf("expected missing stream, got %v", err)
	}
	st, err := rt.EnsureEventStream(ctx)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got := st.Config().Subjects; len(got) != 1 || got[0] != "test.>" {
		t.Fatalf("subjects = %v", got)
	}
	if rt.Subject() != "test.skeever.post" {
		t.Fatalf("subject = %q", rt.Subject())
	}
	if _, err := rt.EnsureEventStream(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
}

func TestBroadcasterCapacityFromConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Broadcast.Capacity = 7
	rt := openTest(t, cfg)
	if rt.Broadcaster().Capacity() != 7 {
		t.Fatalf("capacity = %d", rt.Broadcaster().Capacity())
	}
}
