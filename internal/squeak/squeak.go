// Package squeak defines the short post event carried by the event stream,
// its builder, subject convention and wire codec.
package squeak

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/pkg/id"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "oddlaws.events"

const subjectSuffix = "skeever.post"

var (
	ErrAuthorRequired  = errors.New("squeak: user name is required")
	ErrContentRequired = errors.New("squeak: content is required")
	ErrSerialization   = errors.New("squeak: serialization failed")
)

// User is the author of a squeak.
type User struct {
	Name string `json:"name"`
}

// Squeak is a short post. ID is assigned at construction and orders squeaks
// by creation time.
type Squeak struct {
	ID      id.ID  `json:"id"`
	Content string `json:"content"`
	Author  User   `json:"author"`
}

// Stored is a squeak paired with the stream sequence it was stored at.
type Stored struct {
	Seq    uint64
	Squeak Squeak
}

// Subject returns the subject squeaks are published under for prefix.
func Subject(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + subjectSuffix
}

// Builder assembles a Squeak.
type Builder struct {
	content *string
	user    *string
	gen     *id.Generator
}

// NewBuilder returns an empty Builder using the process-wide id generator.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Content(v string) *Builder { b.content = &v; return b }
func (b *Builder) User(name string) *Builder { b.user = &name; return b }

// WithGenerator makes Build draw its id from g.
func (b *Builder) WithGenerator(g *id.Generator) *Builder { b.gen = g; return b }

// Build validates the fields and assigns a fresh id. An empty string counts
// as missing.
func (b *Builder) Build() (Squeak, error) {
	if b.user == nil || *b.user == "" {
		return Squeak{}, ErrAuthorRequired
	}
	if b.content == nil || *b.content == "" {
		return Squeak{}, ErrContentRequired
	}
	sid := id.New()
	if b.gen != nil {
		sid = b.gen.Next()
	}
	return Squeak{ID: sid, Content: *b.content, Author: User{Name: *b.user}}, nil
}

// Message wraps s for publishing under prefix.
func Message(prefix string, s Squeak) eventlog.EventMessage {
	return eventlog.EventMessage{Subject: Subject(prefix), Payload: s}
}

// Encode renders the wire form {"id","content","author":{"name"}}.
func Encode(s Squeak) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return b, nil
}

// Decode parses the wire form. A payload without a valid id, content or
// author name is rejected.
func Decode(raw []byte) (Squeak, error) {
	var s Squeak
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&s); err != nil {
		return Squeak{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if s.ID.IsZero() {
		return Squeak{}, fmt.Errorf("%w: missing id", ErrSerialization)
	}
	if s.Content == "" {
		return Squeak{}, fmt.Errorf("%w: missing content", ErrSerialization)
	}
	if s.Author.Name == "" {
		return Squeak{}, fmt.Errorf("%w: missing author name", ErrSerialization)
	}
	return s, nil
}
