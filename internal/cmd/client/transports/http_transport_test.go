package transports

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/corvidaelabs/oddbot/internal/squeak"
	"github.com/corvidaelabs/oddbot/pkg/id"
)

func TestTailStopsAtLimit(t *testing.T) {
	gotQuery := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.RawQuery
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		gen := id.NewGenerator()
		for _, text := range []string{"one", "two", "three"} {
			sq, _ := squeak.NewBuilder().Content(text).User("skeever").WithGenerator(gen).Build()
			b, _ := squeak.Encode(sq)
			if err := c.Write(r.Context(), websocket.MessageText, b); err != nil {
				return
			}
		}
		// Hold the socket open until the client goes away.
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr := NewHTTPTransport(func() string { return srv.URL }, nil)
	var got []string
	err := tr.Tail(ctx, TailRequest{Replay: false, Filter: `author == "skeever"`, Limit: 2}, func(sq squeak.Squeak) error {
		got = append(got, sq.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected squeaks %v", got)
	}
	if q := <-gotQuery; q != "filter=author+%3D%3D+%22skeever%22&replay=false" {
		t.Fatalf("unexpected query %q", q)
	}
}

func TestTailRejectedUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad filter", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(func() string { return srv.URL }, nil)
	err := tr.Tail(context.Background(), TailRequest{Filter: "nope("}, func(squeak.Squeak) error { return nil })
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 api error, got %v", err)
	}
}

func TestClearReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"batch":2,"total":2}` + "\n" + `{"total":2,"error":"fetch failed"}` + "\n"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(func() string { return srv.URL }, nil)
	var seen []ClearProgress
	total, err := tr.Clear(context.Background(), "s", 2, func(p ClearProgress) { seen = append(seen, p) })
	if err == nil || err.Error() != "fetch failed" {
		t.Fatalf("unexpected error %v", err)
	}
	if total != 2 || len(seen) != 1 || seen[0] != (ClearProgress{Batch: 2, Total: 2}) {
		t.Fatalf("total=%d seen=%v", total, seen)
	}
}

func TestClearTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"batch":1,"total":1}` + "\n"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(func() string { return srv.URL }, nil)
	if _, err := tr.Clear(context.Background(), "s", 1, nil); err == nil {
		t.Fatalf("expected error for missing done line")
	}
}

func TestWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000/": "ws://localhost:3000",
		"https://example.com":    "wss://example.com",
		"ws://already":           "ws://already",
	}
	for in, want := range cases {
		if got := wsURL(in); got != want {
			t.Fatalf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
}
