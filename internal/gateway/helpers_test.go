package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/corvidaelabs/oddbot/internal/broadcast"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
)

const testPrefix = "test"

var testSubject = squeak.Subject(testPrefix)

func newTestStream(t *testing.T) (*eventlog.Store, *eventlog.Stream) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := eventlog.OpenStore(db, eventlog.StoreOptions{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	st, err := store.CreateStream(context.Background(), eventlog.StreamConfig{Name: "events", Subjects: []string{testPrefix + ".>"}})
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return store, st
}

func newSqueak(t *testing.T, user, content string) squeak.Squeak {
	t.Helper()
	s, err := squeak.NewBuilder().User(user).Content(content).Build()
	if err != nil {
		t.Fatalf("build squeak: %v", err)
	}
	return s
}

// publish stores s and returns it stamped with its stream sequence.
func publish(t *testing.T, st *eventlog.Stream, s squeak.Squeak) squeak.Stored {
	t.Helper()
	ack, err := st.Publish(context.Background(), squeak.Message(testPrefix, s))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return squeak.Stored{Seq: ack.Seq, Squeak: s}
}

func publishSqueaks(t *testing.T, st *eventlog.Stream, n int) []squeak.Squeak {
	t.Helper()
	out := make([]squeak.Squeak, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, publish(t, st, newSqueak(t, "hist", "squeak")).Squeak)
	}
	return out
}

var errWriteFailed = errors.New("write failed")

// fakeConn records written frames and feeds scripted client frames.
type fakeConn struct {
	frames    chan []byte
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	failWrite bool

	mu          sync.Mutex
	closeReason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 1024),
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (MessageType, []byte, error) {
	select {
	case p, ok := <-c.in:
		if !ok {
			return 0, nil, websocket.CloseError{Code: websocket.StatusNormalClosure, Reason: "client left"}
		}
		return MessageText, p, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, p []byte) error {
	if c.failWrite {
		return errWriteFailed
	}
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.frames <- append([]byte(nil), p...)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next waits for the next written frame and decodes it.
func (c *fakeConn) next(t *testing.T) squeak.Squeak {
	t.Helper()
	select {
	case p := <-c.frames:
		s, err := squeak.Decode(p)
		if err != nil {
			t.Fatalf("decode frame %s: %v", p, err)
		}
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a frame")
	}
	return squeak.Squeak{}
}

func (c *fakeConn) expectNoFrame(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-c.frames:
		t.Fatalf("unexpected frame %s", p)
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestGateway(st *eventlog.Stream, bc *broadcast.Broadcaster[squeak.Stored]) *Gateway {
	return New(Options{
		Stream:      st,
		Broadcaster: bc,
		Subject:     testSubject,
		Replay:      ReplayOptions{BatchSize: 2, MaxAge: time.Hour, BatchDelay: time.Millisecond},
	})
}
