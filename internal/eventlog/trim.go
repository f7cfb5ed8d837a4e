package eventlog

import (
	"context"
	"fmt"
	"time"
)

const trimBatchLimit = 1024

// TrimExpired deletes records older than the stream's max age.
func (s *Stream) TrimExpired(ctx context.Context) (int, error) {
	cutoff := s.store.now().Add(-s.st.cfg.MaxAge)
	return s.TrimOlderThan(ctx, cutoff.UnixMilli(), trimBatchLimit, 0)
}

// TrimOlderThan deletes entries with a publish time before cutoffMs, oldest
// first, stopping at the first newer entry. Deletes are committed in batches
// of up to batchLimit keys with an optional throttle between commits.
func (s *Stream) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = trimBatchLimit
	}
	low, high := entryBounds(s.Name())
	iter, err := s.store.db.NewIter(iterOpts(low, high))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	ok := iter.First()
	for ok {
		b := s.store.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			header, _, good := DecodeRecord(iter.Value())
			if good {
				ms, hasTs := headerTime(header)
				if !hasTs || ms >= cutoffMs {
					ok = false
					break
				}
			}
			// Corrupt entries at the head are unreadable; they go with the trim.
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			n++
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			break
		}
		if _, _, gone := s.st.snapshot(); gone {
			b.Close()
			return 0, fmt.Errorf("%w: %s", ErrStreamNotFound, s.Name())
		}
		err := s.store.db.CommitBatch(ctx, b)
		b.Close()
		if err != nil {
			return deleted, err
		}
		deleted += n
		s.store.metrics.ObserveTrim(s.Name(), n)
		if throttle > 0 && ok {
			time.Sleep(throttle)
		}
	}
	return deleted, nil
}
