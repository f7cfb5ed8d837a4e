package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s, err := OpenStore(db, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestStream(t *testing.T, s *Store, name string, subjects ...string) *Stream {
	t.Helper()
	st, err := s.CreateStream(context.Background(), StreamConfig{Name: name, Subjects: subjects})
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return st
}

func TestCreateStreamDefaultsAndDuplicates(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	ctx := context.Background()

	st := newTestStream(t, s, "test", "test.>")
	if st.Config().MaxAge != DefaultMaxAge {
		t.Fatalf("max age = %v", st.Config().MaxAge)
	}

	_, err := s.CreateStream(ctx, StreamConfig{Name: "test", Subjects: []string{"test.>"}})
	if !errors.Is(err, ErrStreamCreate) || !errors.Is(err, ErrStreamExists) {
		t.Fatalf("expected exists error, got %v", err)
	}

	for _, cfg := range []StreamConfig{
		{Name: "bad/name", Subjects: []string{"a"}},
		{Name: "", Subjects: []string{"a"}},
		{Name: "nosubj"},
		{Name: "badsubj", Subjects: []string{"a..b"}},
		{Name: "badwild", Subjects: []string{"a.>.b"}},
	} {
		if _, err := s.CreateStream(ctx, cfg); !errors.Is(err, ErrStreamCreate) {
			t.Fatalf("%+v: expected create error, got %v", cfg, err)
		}
	}
}

func TestConnectRequiresExistingStream(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	ctx := context.Background()

	if _, err := s.Connect(ctx, "missing"); !errors.Is(err, ErrConnection) || !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected connection error, got %v", err)
	}
	newTestStream(t, s, "events", "oddlaws.events.>")
	st, err := s.Connect(ctx, "events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if st.Name() != "events" {
		t.Fatalf("name = %q", st.Name())
	}
}

func TestPublishAssignsIncreasingSeqs(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	st := newTestStream(t, s, "test", "test.>")
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		ack, err := st.Publish(ctx, EventMessage{Subject: "test.post", Payload: map[string]int{"i": i}})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if ack.Seq <= last {
			t.Fatalf("seq %d not greater than %d", ack.Seq, last)
		}
		last = ack.Seq
	}
	info, err := st.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Msgs != 5 || info.FirstSeq != 1 || info.LastSeq != 5 || info.Bytes == 0 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestPublishRejectsUnboundSubject(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	st := newTestStream(t, s, "test", "test.>")
	ctx := context.Background()

	_, err := st.Publish(ctx, EventMessage{Subject: "other.post", Payload: "x"})
	if !errors.Is(err, ErrPublish) || !errors.Is(err, ErrSubjectMismatch) {
		t.Fatalf("expected subject mismatch, got %v", err)
	}
	_, err = st.Publish(ctx, EventMessage{Subject: "test.*", Payload: "x"})
	if !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("expected invalid subject, got %v", err)
	}
	_, err = st.Publish(ctx, EventMessage{Subject: "test.post", Payload: make(chan int)})
	if !errors.Is(err, ErrPublish) {
		t.Fatalf("expected encode failure, got %v", err)
	}
}

func TestSeqSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db := openTestDB(t, dir)
	s, _ := OpenStore(db, StoreOptions{})
	st := newTestStream(t, s, "test", "test.>")
	if _, err := st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = s.Close()
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	s2, _ := OpenStore(db2, StoreOptions{})
	st2, err := s2.Connect(ctx, "test")
	if err != nil {
		t.Fatalf("connect after reopen: %v", err)
	}
	ack, err := st2.Publish(ctx, EventMessage{Subject: "test.b", Payload: 2})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ack.Seq != 2 {
		t.Fatalf("expected seq 2 after reopen, got %d", ack.Seq)
	}
}

func TestDeleteStream(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	st := newTestStream(t, s, "test", "test.>")
	if _, err := st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c, err := st.CreateConsumer(ctx, ConsumerConfig{Durable: "c1"})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}

	if err := s.DeleteStream(ctx, "test"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 1}); !errors.Is(err, ErrPublish) {
		t.Fatalf("publish on deleted stream: %v", err)
	}
	if _, err := c.Fetch(ctx, 1, NoWait()); !errors.Is(err, ErrFetch) {
		t.Fatalf("fetch on deleted stream: %v", err)
	}
	if err := s.DeleteStream(ctx, "test"); !errors.Is(err, ErrStreamDelete) || !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("second delete: %v", err)
	}

	// The name is free again and starts from scratch.
	st2 := newTestStream(t, s, "test", "test.>")
	ack, err := st2.Publish(ctx, EventMessage{Subject: "test.a", Payload: 1})
	if err != nil || ack.Seq != 1 {
		t.Fatalf("recreated stream: seq=%d err=%v", ack.Seq, err)
	}
	c2, err := st2.CreateConsumer(ctx, ConsumerConfig{Durable: "c1"})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if info := c2.Info(); info.Delivered != 0 {
		t.Fatalf("old consumer state survived delete: %+v", info)
	}
}

func TestListStreams(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	newTestStream(t, s, "b", "b.>")
	newTestStream(t, s, "a", "a.>")
	got, err := s.ListStreams(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestStoreCloseRejectsOperations(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	st := newTestStream(t, s, "test", "test.>")
	_ = s.Close()
	if err := s.Healthy(); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("healthy after close: %v", err)
	}
	if _, err := st.Publish(context.Background(), EventMessage{Subject: "test.a", Payload: 1}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	if _, err := s.Connect(context.Background(), "test"); !errors.Is(err, ErrConnection) {
		t.Fatalf("connect after close: %v", err)
	}
}

func TestRecentReturnsNewestInOrder(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	st := newTestStream(t, s, "test", "test.>")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		subj := "test.post"
		if i == 3 {
			subj = "test.other"
		}
		if _, err := st.Publish(ctx, EventMessage{Subject: subj, Payload: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	recs, err := st.Recent(ctx, 3, "test.post")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 3 || recs[0].Seq != 2 || recs[1].Seq != 3 || recs[2].Seq != 5 {
		t.Fatalf("unexpected recent %+v", recs)
	}
}

func TestTrimExpired(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(t, StoreOptions{Now: clk.Now, TrimInterval: -1})
	ctx := context.Background()
	st, err := s.CreateStream(ctx, StreamConfig{Name: "test", Subjects: []string{"test.>"}, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := st.Publish(ctx, EventMessage{Subject: "test.a", Payload: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	clk.Advance(2 * time.Hour)
	if _, err := st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	n, err := st.TrimExpired(ctx)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 3 {
		t.Fatalf("trimmed %d, want 3", n)
	}
	info, _ := st.Info(ctx)
	if info.Msgs != 1 || info.FirstSeq != 4 {
		t.Fatalf("unexpected info after trim %+v", info)
	}
}

func TestTrimRunsFromPublish(t *testing.T) {
	clk := newFakeClock()
	s := newTestStore(t, StoreOptions{Now: clk.Now, TrimInterval: time.Minute})
	ctx := context.Background()
	st, _ := s.CreateStream(ctx, StreamConfig{Name: "test", Subjects: []string{"test.>"}, MaxAge: time.Hour})
	_, _ = st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 0})
	clk.Advance(2 * time.Hour)
	_, _ = st.Publish(ctx, EventMessage{Subject: "test.a", Payload: 1})

	info, _ := st.Info(ctx)
	if info.Msgs != 1 {
		t.Fatalf("expected publish to trim the expired record, info %+v", info)
	}
}
