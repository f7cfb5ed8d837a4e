package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

func iterOpts(low, high []byte) *pebble.IterOptions {
	return &pebble.IterOptions{LowerBound: low, UpperBound: high}
}

// scanResult is the outcome of a forward scan.
type scanResult struct {
	records []Record
	// last is the highest sequence visited, matching or not.
	last uint64
}

// scanFrom reads forward from fromSeq (inclusive) up to and including maxSeq,
// collecting at most limit records whose subject matches filter.
func (s *Stream) scanFrom(fromSeq, maxSeq uint64, filter string, limit int) (scanResult, error) {
	var res scanResult
	if fromSeq > maxSeq || limit <= 0 {
		return res, nil
	}
	name := s.Name()
	iter, err := s.store.db.NewIter(iterOpts(KeyEntry(name, fromSeq), KeyEntry(name, maxSeq+1)))
	if err != nil {
		return res, err
	}
	defer iter.Close()
	for ok := iter.First(); ok && len(res.records) < limit; ok = iter.Next() {
		seq := seqFromEntryKey(iter.Key())
		res.last = seq
		rec, good := decodeEntry(seq, iter.Value())
		if !good {
			s.store.logger.Warn("skipping corrupt record")
			continue
		}
		if SubjectMatches(filter, rec.Subject) {
			res.records = append(res.records, rec)
		}
	}
	if err := iter.Error(); err != nil {
		return res, err
	}
	// Nothing left to visit: the cursor may jump to maxSeq even if trailing
	// entries were trimmed away.
	if len(res.records) < limit {
		res.last = maxSeq
	}
	return res, nil
}

// readOne loads a single record. found is false if it was trimmed or deleted.
func (s *Stream) readOne(seq uint64) (rec Record, found bool, err error) {
	raw, err := s.store.db.Get(KeyEntry(s.Name(), seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	rec, ok := decodeEntry(seq, raw)
	if !ok {
		return Record{}, false, fmt.Errorf("%w: seq %d", ErrCorruptRecord, seq)
	}
	return rec, true, nil
}

// Recent returns up to n of the newest records matching filter, oldest first.
func (s *Stream) Recent(ctx context.Context, n int, filter string) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	low, high := entryBounds(s.Name())
	iter, err := s.store.db.NewIter(iterOpts(low, high))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer iter.Close()

	out := make([]Record, 0, n)
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		rec, good := decodeEntry(seqFromEntryKey(iter.Key()), iter.Value())
		if !good || !SubjectMatches(filter, rec.Subject) {
			continue
		}
		out = append(out, rec)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// firstSeqAtOrAfter returns the sequence of the first record published at or
// after tsMs, or lastSeq+1 if there is none.
func (s *Stream) firstSeqAtOrAfter(tsMs int64, lastSeq uint64) (uint64, error) {
	low, high := entryBounds(s.Name())
	iter, err := s.store.db.NewIter(iterOpts(low, high))
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		header, _, good := DecodeRecord(iter.Value())
		if !good {
			continue
		}
		if ms, ok := headerTime(header); ok && ms >= tsMs {
			return seqFromEntryKey(iter.Key()), nil
		}
	}
	return lastSeq + 1, iter.Error()
}
