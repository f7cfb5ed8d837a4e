package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID: [6 bytes ms_timestamp][10 bytes entropy], big-endian.
type ID ulid.ULID

// Zero is the empty ID.
var Zero ID

// EncodedLen is the length of the text form.
const EncodedLen = ulid.EncodedSize

var (
	ErrInvalidLength = ulid.ErrDataSize
	ErrInvalidChar   = ulid.ErrInvalidCharacters
	ErrOverflow      = ulid.ErrOverflow
)

// Time returns the embedded millisecond timestamp.
func (i ID) Time() time.Time { return ulid.Time(ulid.ULID(i).Time()) }

// Ms returns the embedded timestamp in ms since the Unix epoch.
func (i ID) Ms() int64 { return int64(ulid.ULID(i).Time()) }

// IsZero reports whether i is the zero ID.
func (i ID) IsZero() bool { return i == Zero }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int { return ulid.ULID(i).Compare(ulid.ULID(other)) }

// String returns the 26 character Crockford base32 form.
func (i ID) String() string { return ulid.ULID(i).String() }

// Parse decodes the text form produced by String. Characters outside the
// Crockford alphabet are rejected.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return Zero, err
	}
	return ID(u), nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	i, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return i
}

func (i ID) MarshalText() ([]byte, error) { return ulid.ULID(i).MarshalText() }

func (i *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
}

// NewGenerator creates a Generator drawing entropy from crypto/rand.
func NewGenerator() *Generator { return newGenerator(rand.Reader) }

func newGenerator(r io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(r, 0)}
}

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. A clock that goes backwards is pinned to the last
// seen millisecond so IDs stay strictly increasing.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(NowMs())
	if ms < g.lastMs {
		ms = g.lastMs
	}
	u, err := ulid.New(ms, g.entropy)
	if err != nil {
		// Entropy for this millisecond is exhausted; borrow the next one.
		ms++
		u = ulid.MustNew(ms, g.entropy)
	}
	g.lastMs = ms
	return ID(u)
}

var defaultGen = NewGenerator()

// New returns an ID from the process-wide generator.
func New() ID { return defaultGen.Next() }
