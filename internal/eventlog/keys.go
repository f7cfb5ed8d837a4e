package eventlog

import (
	"encoding/binary"
	"fmt"
	"regexp"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - st/{stream}/m                         stream metadata (JSON)
// - st/{stream}/seq                       last assigned sequence (be8)
// - st/{stream}/e/{seq_be8}               entries
// - st/{stream}/c/{consumer}/m            durable consumer state (JSON)
// - st/{stream}/c/{consumer}/p/{seq_be8}  durable consumer pending entries

var (
	streamPrefix = []byte("st/")
	metaSuffix   = []byte("/m")
	seqSuffix    = []byte("/seq")
	entrySeg     = []byte("/e/")
	consumerSeg  = []byte("/c/")
	pendingSeg   = []byte("/p/")
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName checks stream and consumer names. Names are path segments in
// the keyspace so separators are never allowed.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyStreamPrefix returns st/{stream}/, covering every key of a stream.
func KeyStreamPrefix(stream string) []byte {
	k := make([]byte, 0, len(stream)+4)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	return append(k, '/')
}

// KeyStreamsPrefix covers every stream in the store.
func KeyStreamsPrefix() []byte { return append([]byte(nil), streamPrefix...) }

func KeyStreamMeta(stream string) []byte {
	k := append([]byte(nil), streamPrefix...)
	k = append(k, stream...)
	return append(k, metaSuffix...)
}

func KeyStreamSeq(stream string) []byte {
	k := append([]byte(nil), streamPrefix...)
	k = append(k, stream...)
	return append(k, seqSuffix...)
}

// KeyEntry builds the entry key with a big-endian sequence for ordering.
func KeyEntry(stream string, seq uint64) []byte {
	k := make([]byte, 0, len(stream)+16)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	return appendBE8(k, seq)
}

// entryBounds returns the [low, high) range covering all entries of a stream.
func entryBounds(stream string) (low, high []byte) {
	low = KeyEntry(stream, 0)
	high = append(KeyEntry(stream, ^uint64(0)), 0x00)
	return low, high
}

func seqFromEntryKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func keyConsumerPrefix(stream, consumer string) []byte {
	k := make([]byte, 0, len(stream)+len(consumer)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, consumerSeg...)
	k = append(k, consumer...)
	return k
}

// KeyConsumerMeta is the durable consumer state key.
func KeyConsumerMeta(stream, consumer string) []byte {
	return append(keyConsumerPrefix(stream, consumer), metaSuffix...)
}

// KeyConsumerPending is the key of one unacknowledged delivery.
func KeyConsumerPending(stream, consumer string, seq uint64) []byte {
	k := append(keyConsumerPrefix(stream, consumer), pendingSeg...)
	return appendBE8(k, seq)
}

// KeyConsumerPendingPrefix covers every pending entry of a consumer.
func KeyConsumerPendingPrefix(stream, consumer string) []byte {
	return append(keyConsumerPrefix(stream, consumer), pendingSeg...)
}

// KeyConsumerAll covers the state and pending entries of a consumer.
func KeyConsumerAll(stream, consumer string) []byte {
	return append(keyConsumerPrefix(stream, consumer), '/')
}
