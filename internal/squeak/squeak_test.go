package squeak

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/corvidaelabs/oddbot/pkg/id"
)

func TestBuilderRequiresFields(t *testing.T) {
	if _, err := NewBuilder().Content("hi").Build(); !errors.Is(err, ErrAuthorRequired) {
		t.Fatalf("expected author error, got %v", err)
	}
	if _, err := NewBuilder().User("lucien").Build(); !errors.Is(err, ErrContentRequired) {
		t.Fatalf("expected content error, got %v", err)
	}
	if _, err := NewBuilder().User("lucien").Content("").Build(); !errors.Is(err, ErrContentRequired) {
		t.Fatalf("empty content should count as missing, got %v", err)
	}
	if _, err := NewBuilder().User("").Content("hi").Build(); !errors.Is(err, ErrAuthorRequired) {
		t.Fatalf("empty user should count as missing, got %v", err)
	}
}

func TestBuilderAssignsOrderedIDs(t *testing.T) {
	g := id.NewGenerator()
	a, err := NewBuilder().User("u").Content("one").WithGenerator(g).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, _ := NewBuilder().User("u").Content("two").WithGenerator(g).Build()
	if a.ID.IsZero() || a.ID.Compare(b.ID) >= 0 {
		t.Fatalf("ids not increasing: %s %s", a.ID, b.ID)
	}
}

func TestWireFormat(t *testing.T) {
	s, _ := NewBuilder().User("Adoring Fan").Content("hello").Build()
	raw, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if m["id"] != s.ID.String() || m["content"] != "hello" {
		t.Fatalf("unexpected wire form %s", raw)
	}
	if author, _ := m["author"].(map[string]interface{}); author["name"] != "Adoring Fan" {
		t.Fatalf("unexpected author in %s", raw)
	}

	back, err := Decode(raw)
	if err != nil || back != s {
		t.Fatalf("decode: %+v %v", back, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `{"content":"x","author":{"name":"y"}}`, `{"id":"nope"}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrSerialization) {
			t.Fatalf("%s: expected serialization error, got %v", raw, err)
		}
	}
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	sid := id.New().String()
	for _, raw := range []string{
		`{"id":"` + sid + `","content":"","author":{"name":"lucien"}}`,
		`{"id":"` + sid + `","author":{"name":"lucien"}}`,
		`{"id":"` + sid + `","content":"hi","author":{"name":""}}`,
		`{"id":"` + sid + `","content":"hi"}`,
	} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrSerialization) {
			t.Fatalf("%s: expected serialization error, got %v", raw, err)
		}
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(""); got != "oddlaws.events.skeever.post" {
		t.Fatalf("default subject %q", got)
	}
	if got := Subject("test"); got != "test.skeever.post" {
		t.Fatalf("subject %q", got)
	}
	if m := Message("test", Squeak{}); m.Subject != "test.skeever.post" {
		t.Fatalf("message subject %q", m.Subject)
	}
}
