package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/corvidaelabs/oddbot/pkg/log"
)

// streamState is shared by every Stream handle on the same name.
type streamState struct {
	cfg     StreamConfig
	created time.Time

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
	deleted  bool
	lastTrim time.Time
	durables map[string]*consumerState
}

func newStreamState(cfg StreamConfig, created time.Time) *streamState {
	return &streamState{
		cfg:      cfg,
		created:  created,
		notifyCh: make(chan struct{}),
		durables: make(map[string]*consumerState),
	}
}

// wakeLocked releases every waiter blocked on the current notify channel.
func (st *streamState) wakeLocked() {
	close(st.notifyCh)
	st.notifyCh = make(chan struct{})
}

// snapshot returns the fields a reader needs without holding the lock.
func (st *streamState) snapshot() (lastSeq uint64, notify <-chan struct{}, deleted bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastSeq, st.notifyCh, st.deleted
}

// Stream is a handle to one durable stream.
type Stream struct {
	store *Store
	st    *streamState
}

// EventMessage is a unit to publish. Payload is serialized as JSON.
type EventMessage struct {
	Subject string
	Payload any
}

// PubAck acknowledges a stored record.
type PubAck struct {
	Stream string
	Seq    uint64
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.st.cfg.Name }

// Config returns a copy of the stream configuration.
func (s *Stream) Config() StreamConfig {
	cfg := s.st.cfg
	cfg.Subjects = append([]string(nil), cfg.Subjects...)
	return cfg
}

// Publish serializes msg.Payload as JSON and appends it under msg.Subject.
func (s *Stream) Publish(ctx context.Context, msg EventMessage) (PubAck, error) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return PubAck{}, fmt.Errorf("%w: encode payload: %w", ErrPublish, err)
	}
	return s.PublishRaw(ctx, msg.Subject, payload)
}

// PublishRaw appends an already encoded payload.
func (s *Stream) PublishRaw(ctx context.Context, subject string, payload []byte) (PubAck, error) {
	if err := ValidateSubject(subject); err != nil {
		return PubAck{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if !matchesAny(s.st.cfg.Subjects, subject) {
		return PubAck{}, fmt.Errorf("%w: %w: %s", ErrPublish, ErrSubjectMismatch, subject)
	}
	if s.store.isClosed() {
		return PubAck{}, fmt.Errorf("%w: %w", ErrPublish, ErrStoreClosed)
	}

	now := s.store.now()
	header, err := encodeHeader(subject, now)
	if err != nil {
		return PubAck{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	val := EncodeRecord(header, payload)

	st := s.st
	st.mu.Lock()
	if st.deleted {
		st.mu.Unlock()
		return PubAck{}, fmt.Errorf("%w: %w: %s", ErrPublish, ErrStreamNotFound, st.cfg.Name)
	}
	seq := st.lastSeq + 1
	b := s.store.db.NewBatch()
	_ = b.Set(KeyEntry(st.cfg.Name, seq), val, nil)
	_ = b.Set(KeyStreamSeq(st.cfg.Name), appendBE8(nil, seq), nil)
	err = s.store.db.CommitBatch(ctx, b)
	b.Close()
	if err != nil {
		st.mu.Unlock()
		return PubAck{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}
	st.lastSeq = seq
	st.wakeLocked()
	trimDue := s.store.trimIv > 0 && now.Sub(st.lastTrim) >= s.store.trimIv
	if trimDue {
		st.lastTrim = now
	}
	st.mu.Unlock()

	s.store.metrics.ObservePublish(st.cfg.Name, len(payload))
	if trimDue {
		if n, err := s.TrimExpired(ctx); err != nil {
			s.store.logger.Warn("retention trim failed", log.Str("stream", st.cfg.Name), log.Err(err))
		} else if n > 0 {
			s.store.logger.Debug("retention trim", log.Str("stream", st.cfg.Name), log.Int("deleted", n))
		}
	}
	return PubAck{Stream: st.cfg.Name, Seq: seq}, nil
}

// StreamInfo summarizes a stream.
type StreamInfo struct {
	Config   StreamConfig `json:"config"`
	Created  time.Time    `json:"created"`
	FirstSeq uint64       `json:"first_seq"`
	LastSeq  uint64       `json:"last_seq"`
	Msgs     uint64       `json:"messages"`
	Bytes    uint64       `json:"bytes"`
}

// Info scans the stream and reports its current extent.
func (s *Stream) Info(ctx context.Context) (StreamInfo, error) {
	lastSeq, _, deleted := s.st.snapshot()
	if deleted {
		return StreamInfo{}, fmt.Errorf("%w: %w: %s", ErrConnection, ErrStreamNotFound, s.Name())
	}
	info := StreamInfo{Config: s.Config(), Created: s.st.created, LastSeq: lastSeq}
	low, high := entryBounds(s.Name())
	iter, err := s.store.db.NewIter(iterOpts(low, high))
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if info.FirstSeq == 0 {
			info.FirstSeq = seqFromEntryKey(iter.Key())
		}
		info.Msgs++
		info.Bytes += uint64(len(iter.Value()))
		if info.Msgs%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return StreamInfo{}, err
			}
		}
	}
	return info, nil
}

// WaitForAppend blocks until a record is appended, the stream is deleted, or
// timeout elapses. It returns true if woken.
func (s *Stream) WaitForAppend(timeout time.Duration) bool {
	_, ch, _ := s.st.snapshot()
	return waitNotify(context.Background(), ch, timeout)
}
