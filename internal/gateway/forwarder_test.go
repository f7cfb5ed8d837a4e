package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corvidaelabs/oddbot/internal/broadcast"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

func attachForwarderConsumer(t *testing.T, st *eventlog.Stream) *eventlog.Consumer {
	t.Helper()
	c, err := st.CreateConsumer(context.Background(), eventlog.ConsumerConfig{
		Durable:       DefaultForwarderConsumer,
		FilterSubject: testSubject,
		DeliverPolicy: eventlog.DeliverNew,
	})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	return c
}

func runForwarder(t *testing.T, f *Forwarder) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatalf("forwarder did not stop")
		}
		return nil
	}
}

// forwardMetrics records the receiver count of every forwarded squeak.
type forwardMetrics struct {
	noopMetrics
	mu        sync.Mutex
	receivers []int
}

func (m *forwardMetrics) ObserveForwarded(n int) {
	m.mu.Lock()
	m.receivers = append(m.receivers, n)
	m.mu.Unlock()
}

func (m *forwardMetrics) snapshot() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.receivers...)
}

func TestForwarderAcksWithoutReceivers(t *testing.T) {
	_, st := newTestStream(t)
	c := attachForwarderConsumer(t, st)
	publishSqueaks(t, st, 10)
	bc := broadcast.New[squeak.Stored](16)
	m := &forwardMetrics{}

	stop := runForwarder(t, NewForwarder(ForwarderOptions{
		Stream: st, Broadcaster: bc, Subject: testSubject, PollInterval: time.Millisecond, Metrics: m,
	}))
	waitFor(t, "all records acked", func() bool {
		if n := bc.ReceiverCount(); n != 0 {
			t.Fatalf("unexpected receivers: %d", n)
		}
		info := c.Info()
		return info.AckFloor == 10 && info.NumAckPending == 0
	})
	if err := stop(); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := m.snapshot()
	if len(got) != 10 {
		t.Fatalf("forwarded %d squeaks, want 10", len(got))
	}
	for i, n := range got {
		if n != 0 {
			t.Fatalf("squeak %d reached %d receivers", i, n)
		}
	}
}

func TestForwarderBroadcastsInOrder(t *testing.T) {
	_, st := newTestStream(t)
	attachForwarderConsumer(t, st)
	bc := broadcast.New[squeak.Stored](16)
	rx := bc.Subscribe()
	defer rx.Close()

	stop := runForwarder(t, NewForwarder(ForwarderOptions{
		Stream: st, Broadcaster: bc, Subject: testSubject, BatchSize: 2, PollInterval: time.Millisecond,
	}))
	defer stop()

	sent := publishSqueaks(t, st, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, want := range sent {
		got, err := rx.Recv(ctx)
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		if got.Squeak.ID != want.ID || got.Seq != uint64(i+1) {
			t.Fatalf("squeak %d: got %s at seq %d want %s", i, got.Squeak.ID, got.Seq, want.ID)
		}
	}
}

func TestForwarderLeavesUndecodableUnacked(t *testing.T) {
	_, st := newTestStream(t)
	c := attachForwarderConsumer(t, st)
	bc := broadcast.New[squeak.Stored](16)
	rx := bc.Subscribe()
	defer rx.Close()

	ctx := context.Background()
	if _, err := st.PublishRaw(ctx, testSubject, []byte("{broken")); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	good := publishSqueaks(t, st, 1)[0]

	stop := runForwarder(t, NewForwarder(ForwarderOptions{
		Stream: st, Broadcaster: bc, Subject: testSubject, PollInterval: time.Millisecond,
	}))
	defer stop()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := rx.Recv(rctx)
	if err != nil || got.Squeak.ID != good.ID || got.Seq != 2 {
		t.Fatalf("recv: %v seq %d %v", got.Squeak.ID, got.Seq, err)
	}
	waitFor(t, "good record acked", func() bool {
		info := c.Info()
		return info.NumAckPending == 1 && info.AckFloor == 0
	})
}

func TestForwarderStopsWhenStreamDeleted(t *testing.T) {
	store, st := newTestStream(t)
	f := NewForwarder(ForwarderOptions{
		Stream: st, Broadcaster: broadcast.New[squeak.Stored](4), Subject: testSubject,
		PollInterval: time.Millisecond, Backoff: func(int) time.Duration { return time.Millisecond },
	})
	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()
	if err := store.DeleteStream(context.Background(), "events"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, eventlog.ErrStreamNotFound) {
			t.Fatalf("expected stream not found, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("forwarder kept running on a deleted stream")
	}
}

func TestForwarderConsumerFilterMismatchAborts(t *testing.T) {
	_, st := newTestStream(t)
	if _, err := st.CreateConsumer(context.Background(), eventlog.ConsumerConfig{Durable: DefaultForwarderConsumer, FilterSubject: "test.other"}); err != nil {
		t.Fatalf("consumer: %v", err)
	}
	f := NewForwarder(ForwarderOptions{Stream: st, Broadcaster: broadcast.New[squeak.Stored](4), Subject: testSubject})
	if err := f.Run(context.Background()); !errors.Is(err, eventlog.ErrConsumerCreate) {
		t.Fatalf("expected consumer create error, got %v", err)
	}
}
