package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the ring size used when New is given a non-positive one.
const DefaultCapacity = 100

// ErrClosed is returned by Recv after the receiver or broadcaster is closed.
var ErrClosed = errors.New("broadcast: closed")

// LaggedError reports values a receiver lost to overflow. The receiver
// continues with the oldest value still retained.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged, %d values skipped", e.Skipped)
}

// Metrics observes fan-out activity.
type Metrics interface {
	ObserveSend(receivers int)
	ObserveDropped(n uint64)
	SetReceivers(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSend(int)       {}
func (noopMetrics) ObserveDropped(uint64) {}
func (noopMetrics) SetReceivers(int)      {}

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	metrics Metrics
}

// WithMetrics attaches a metrics hook.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// Broadcaster fans values out to every current Receiver.
type Broadcaster[T any] struct {
	metrics Metrics

	mu        sync.Mutex
	ring      []T
	head      uint64 // sequence of the next value written
	receivers map[*Receiver[T]]struct{}
	notify    chan struct{}
	closed    bool
}

// New creates a Broadcaster retaining capacity values.
func New[T any](capacity int, opts ...Option) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	o := options{metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcaster[T]{
		metrics:   o.metrics,
		ring:      make([]T, capacity),
		receivers: make(map[*Receiver[T]]struct{}),
		notify:    make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (b *Broadcaster[T]) Capacity() int { return len(b.ring) }

// Send publishes v to every current receiver and returns how many there
// were. With no receivers, or after Close, v is discarded and 0 is returned.
func (b *Broadcaster[T]) Send(v T) int {
	b.mu.Lock()
	n := len(b.receivers)
	if b.closed || n == 0 {
		b.mu.Unlock()
		b.metrics.ObserveSend(0)
		return 0
	}
	b.ring[b.head%uint64(len(b.ring))] = v
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
	b.metrics.ObserveSend(n)
	return n
}

// ReceiverCount returns the number of subscribed receivers.
func (b *Broadcaster[T]) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receivers)
}

// Subscribe registers a receiver that sees every value sent from now on.
func (b *Broadcaster[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	r := &Receiver[T]{b: b, next: b.head}
	b.receivers[r] = struct{}{}
	n := len(b.receivers)
	b.mu.Unlock()
	b.metrics.SetReceivers(n)
	return r
}

// Close wakes every receiver. Receivers drain what is buffered, then get
// ErrClosed. Later sends are discarded.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
	b.notify = make(chan struct{})
}

// oldestLocked is the sequence of the oldest value still in the ring.
func (b *Broadcaster[T]) oldestLocked() uint64 {
	if c := uint64(len(b.ring)); b.head > c {
		return b.head - c
	}
	return 0
}

// Receiver reads values from a Broadcaster in send order. A Receiver must
// not be shared by concurrent readers.
type Receiver[T any] struct {
	b       *Broadcaster[T]
	next    uint64
	closed  bool
	dropped atomic.Uint64
}

// Recv returns the next value, blocking until one is sent or ctx is done.
// After overflow it returns a *LaggedError once, then resumes with the
// oldest retained value.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		v, ok, wait, err := r.poll()
		if err != nil || ok {
			return v, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// TryRecv is Recv without blocking. ok is false when nothing is buffered.
func (r *Receiver[T]) TryRecv() (v T, ok bool, err error) {
	v, ok, _, err = r.poll()
	return v, ok, err
}

func (r *Receiver[T]) poll() (v T, ok bool, wait <-chan struct{}, err error) {
	b := r.b
	b.mu.Lock()
	if r.closed {
		b.mu.Unlock()
		return v, false, nil, ErrClosed
	}
	if oldest := b.oldestLocked(); r.next < oldest {
		skipped := oldest - r.next
		r.next = oldest
		b.mu.Unlock()
		r.dropped.Add(skipped)
		b.metrics.ObserveDropped(skipped)
		return v, false, nil, &LaggedError{Skipped: skipped}
	}
	if r.next < b.head {
		v = b.ring[r.next%uint64(len(b.ring))]
		r.next++
		b.mu.Unlock()
		return v, true, nil, nil
	}
	if b.closed {
		b.mu.Unlock()
		return v, false, nil, ErrClosed
	}
	wait = b.notify
	b.mu.Unlock()
	return v, false, wait, nil
}

// Dropped returns how many values this receiver lost to overflow.
func (r *Receiver[T]) Dropped() uint64 { return r.dropped.Load() }

// Close unsubscribes the receiver. It is safe to call more than once.
func (r *Receiver[T]) Close() {
	b := r.b
	b.mu.Lock()
	if r.closed {
		b.mu.Unlock()
		return
	}
	r.closed = true
	delete(b.receivers, r)
	n := len(b.receivers)
	b.mu.Unlock()
	b.metrics.SetReceivers(n)
}
