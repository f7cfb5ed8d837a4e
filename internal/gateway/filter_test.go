package gateway

import (
	"testing"

	"github.com/corvidaelabs/oddbot/internal/squeak"
)

func TestCompileFilter(t *testing.T) {
	f, err := CompileFilter("  ")
	if err != nil || f != nil {
		t.Fatalf("blank expression should give nil filter: %v %v", f, err)
	}
	if !f.Match(squeak.Squeak{}) {
		t.Fatalf("nil filter must match")
	}
	for _, bad := range []string{`content ==`, `content`, `unknown == "x"`} {
		if _, err := CompileFilter(bad); err == nil {
			t.Fatalf("%q: expected compile error", bad)
		}
	}
}

func TestFilterMatch(t *testing.T) {
	s, _ := squeak.NewBuilder().User("Lucien").Content("Hello Cyrodiil").Build()
	cases := map[string]bool{
		`author == "Lucien"`:                true,
		`author == "Adoring Fan"`:           false,
		`content.contains("Cyrodiil")`:      true,
		`ts_ms <= now_ms && size(id) == 26`: true,
	}
	for expr, want := range cases {
		f, err := CompileFilter(expr)
		if err != nil {
			t.Fatalf("%q: %v", expr, err)
		}
		if got := f.Match(s); got != want {
			t.Fatalf("%q: got %v want %v", expr, got, want)
		}
	}
}
