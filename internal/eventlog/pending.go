package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
)

// pendingEntry tracks one delivered but unacknowledged record.
type pendingEntry struct {
	Deliveries int   `json:"deliveries"`
	LastMs     int64 `json:"last_ms"`
	ExpiresMs  int64 `json:"expires_ms"`
}

// persistedConsumer is the durable consumer state stored under c/{name}/m.
// Pending entries are stored under their own keys.
type persistedConsumer struct {
	Filter      string `json:"filter"`
	Policy      string `json:"deliver_policy"`
	Delivered   uint64 `json:"delivered"`
	AckFloor    uint64 `json:"ack_floor"`
	Redelivered uint64 `json:"redelivered"`
	Terminated  uint64 `json:"terminated"`
	CreatedMs   int64  `json:"created_ms"`
}

// sortedPendingLocked returns pending sequences in ascending order.
func (cs *consumerState) sortedPendingLocked() []uint64 {
	seqs := make([]uint64, 0, len(cs.pending))
	for seq := range cs.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// recomputeFloorLocked moves the ack floor to just below the oldest pending
// delivery, or to the delivered cursor when nothing is pending. It never
// moves backwards.
func (cs *consumerState) recomputeFloorLocked() {
	floor := cs.delivered
	for seq := range cs.pending {
		if seq-1 < floor {
			floor = seq - 1
		}
	}
	if floor > cs.ackFloor {
		cs.ackFloor = floor
	}
}

// earliestExpiryLocked returns the smallest pending deadline, or 0.
func (cs *consumerState) earliestExpiryLocked() int64 {
	var earliest int64
	for _, p := range cs.pending {
		if earliest == 0 || p.ExpiresMs < earliest {
			earliest = p.ExpiresMs
		}
	}
	return earliest
}

// persistLocked writes the consumer state plus the given pending changes in
// one batch. Ephemeral consumers are never persisted.
func (cs *consumerState) persistLocked(ctx context.Context, s *Stream, set, del []uint64) error {
	if !cs.durable {
		return nil
	}
	stream := s.Name()
	state, err := json.Marshal(persistedConsumer{
		Filter:      cs.cfg.FilterSubject,
		Policy:      cs.cfg.DeliverPolicy.String(),
		Delivered:   cs.delivered,
		AckFloor:    cs.ackFloor,
		Redelivered: cs.redelivered,
		Terminated:  cs.terminated,
		CreatedMs:   cs.created.UnixMilli(),
	})
	if err != nil {
		return err
	}
	b := s.store.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyConsumerMeta(stream, cs.name), state, nil); err != nil {
		return err
	}
	for _, seq := range set {
		p, ok := cs.pending[seq]
		if !ok {
			continue
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := b.Set(KeyConsumerPending(stream, cs.name, seq), raw, nil); err != nil {
			return err
		}
	}
	for _, seq := range del {
		if err := b.Delete(KeyConsumerPending(stream, cs.name, seq), nil); err != nil {
			return err
		}
	}
	return s.store.db.CommitBatch(ctx, b)
}

// loadDurable reads a durable consumer from disk. found is false if it was
// never created.
func loadDurable(db *pebblestore.DB, stream, name string) (persistedConsumer, map[uint64]*pendingEntry, bool, error) {
	var pc persistedConsumer
	raw, err := db.Get(KeyConsumerMeta(stream, name))
	if errors.Is(err, pebble.ErrNotFound) {
		return pc, nil, false, nil
	}
	if err != nil {
		return pc, nil, false, err
	}
	if err := json.Unmarshal(raw, &pc); err != nil {
		return pc, nil, false, fmt.Errorf("%w: consumer state: %w", ErrCorruptRecord, err)
	}
	pending := make(map[uint64]*pendingEntry)
	prefix := KeyConsumerPendingPrefix(stream, name)
	err = db.ScanPrefix(prefix, func(k, v []byte) (bool, error) {
		var p pendingEntry
		if err := json.Unmarshal(v, &p); err != nil {
			return false, fmt.Errorf("%w: pending entry: %w", ErrCorruptRecord, err)
		}
		pending[seqFromEntryKey(k)] = &p
		return true, nil
	})
	if err != nil {
		return pc, nil, false, err
	}
	return pc, pending, true, nil
}
