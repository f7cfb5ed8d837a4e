// Package id provides a 128-bit, lexicographically sortable identifier.
//
// # Format
//
// An ID is a ULID (github.com/oklog/ulid/v2): 16 bytes big-endian,
// [6 bytes ms_timestamp][10 bytes entropy]. Byte-wise comparison preserves
// creation order, and the text form (26 characters of Crockford base32)
// sorts the same way.
//
// # Monotonicity
//
// The Generator wraps ulid's monotonic entropy, which increments the previous
// entropy within one millisecond. On top of that it pins a regressing clock
// to the last seen millisecond and moves to the next millisecond when the
// entropy overflows.
//
// Usage
//
//	g := id.NewGenerator()
//	newID := g.Next()
//	s := newID.String()      // "01J9Z3..." 26 chars
//	back, _ := id.Parse(s)   // back == newID
package id
