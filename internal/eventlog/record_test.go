package eventlog

import (
	"bytes"
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	h, err := encodeHeader("a.b", ts)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	enc := EncodeRecord(h, []byte(`{"x":1}`))

	rec, ok := decodeEntry(7, enc)
	if !ok {
		t.Fatalf("decode failed")
	}
	if rec.Seq != 7 || rec.Subject != "a.b" || !rec.Time.Equal(ts) || !bytes.Equal(rec.Payload, []byte(`{"x":1}`)) {
		t.Fatalf("unexpected record %+v", rec)
	}

	enc[len(enc)-1] ^= 0xFF
	if _, ok := decodeEntry(7, enc); ok {
		t.Fatalf("expected crc mismatch")
	}
	if _, _, ok := DecodeRecord([]byte{1}); ok {
		t.Fatalf("expected short record to fail")
	}
}

func TestSubjectMatching(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"", "anything.at.all", true},
		{"a.b", "a.b", true},
		{"a.b", "a.b.c", false},
		{"a.*", "a.b", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.>", "a", false},
		{"oddlaws.events.>", "oddlaws.events.skeever.post", true},
		{"*.events.*.post", "oddlaws.events.skeever.post", true},
	}
	for _, c := range cases {
		if got := SubjectMatches(c.pattern, c.subject); got != c.want {
			t.Fatalf("SubjectMatches(%q, %q) = %v", c.pattern, c.subject, got)
		}
	}
}

func TestSubjectValidation(t *testing.T) {
	for _, ok := range []string{"a", "a.b", "a.*", "a.>", "*.b"} {
		if err := ValidateSubjectPattern(ok); err != nil {
			t.Fatalf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a..b", ".a", "a.>.b", "a.b*", "a b"} {
		if err := ValidateSubjectPattern(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
	if err := ValidateSubject("a.*"); err == nil {
		t.Fatalf("wildcards must be rejected in literal subjects")
	}
}

func TestKeysOrderBySeq(t *testing.T) {
	if bytes.Compare(KeyEntry("s", 1), KeyEntry("s", 256)) >= 0 {
		t.Fatalf("entry keys must sort by seq")
	}
	if !bytes.HasPrefix(KeyConsumerPending("s", "c", 3), KeyConsumerAll("s", "c")) {
		t.Fatalf("pending key outside consumer prefix")
	}
	if !bytes.HasPrefix(KeyConsumerMeta("s", "c"), KeyStreamPrefix("s")) {
		t.Fatalf("consumer key outside stream prefix")
	}
	if bytes.HasPrefix(KeyStreamMeta("ab"), KeyStreamPrefix("a")) {
		t.Fatalf("stream prefixes must not overlap")
	}
	if err := ValidateName("a/b"); err == nil {
		t.Fatalf("separator allowed in name")
	}
}
