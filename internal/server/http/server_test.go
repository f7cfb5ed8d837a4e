package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	cfgpkg "github.com/corvidaelabs/oddbot/internal/config"
	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/gateway"
	"github.com/corvidaelabs/oddbot/internal/runtime"
	eventsvc "github.com/corvidaelabs/oddbot/internal/services/events"
	"github.com/corvidaelabs/oddbot/internal/squeak"
	pebblestore "github.com/corvidaelabs/oddbot/internal/storage/pebble"
	"github.com/corvidaelabs/oddbot/pkg/log"
)

type testEnv struct {
	rt  *runtime.Runtime
	svc *eventsvc.Service
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Stream.Name = "events"
	cfg.Stream.Prefix = "test"
	logger, err := log.ApplyConfigTo(log.Config{Level: "error", Format: "text"}, io.Discard)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	st, err := rt.EnsureEventStream(context.Background())
	if err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	svc := eventsvc.New(rt, logger)
	gw := gateway.New(gateway.Options{
		Stream:      st,
		Broadcaster: rt.Broadcaster(),
		Subject:     rt.Subject(),
		Replay:      gateway.ReplayOptions{BatchSize: 2, MaxAge: time.Hour, BatchDelay: time.Millisecond},
		Logger:      logger,
	})
	srv := httptest.NewServer(New(rt, svc, gw, logger).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{rt: rt, svc: svc, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthHandler(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/health", "")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestMetricsHandler(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/v1/squeaks", `{"content":"hi","author":{"name":"a"}}`)
	resp := e.do(t, http.MethodGet, "/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `oddbot_eventlog_published_total{stream="events"} 1`) {
		t.Fatalf("missing publish counter:\n%s", body)
	}
}

func TestSqueakPublishAndList(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/squeaks", `{"content":"hello","author":{"name":"lucien"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var created squeak.Squeak
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID.IsZero() || created.Content != "hello" || created.Author.Name != "lucien" {
		t.Fatalf("unexpected squeak %+v", created)
	}

	if resp := e.do(t, http.MethodPost, "/v1/squeaks", `{"content":"","author":{"name":"x"}}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty content status: %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodPost, "/v1/squeaks", `nope`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body status: %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/v1/squeaks?limit=5", "")
	var list struct {
		Squeaks []squeak.Squeak `json:"squeaks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Squeaks) != 1 || list.Squeaks[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}
	if resp := e.do(t, http.MethodGet, "/v1/squeaks?limit=-1", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status: %d", resp.StatusCode)
	}
}

func TestStreamEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/streams", `{"name":"audit","subjects":["audit.>"],"description":"audit trail"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodPost, "/v1/streams", `{"name":"audit","subjects":["audit.>"]}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status: %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodPost, "/v1/streams", `{"name":"bad name","subjects":["x"]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status: %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodGet, "/v1/streams/audit", "")
	var info struct {
		Config struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Config.Name != "audit" || info.Config.Description != "audit trail" {
		t.Fatalf("unexpected info %+v", info)
	}

	resp = e.do(t, http.MethodGet, "/v1/streams", "")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"audit"`) || !strings.Contains(string(body), `"events"`) {
		t.Fatalf("list missing streams: %s", body)
	}

	if resp := e.do(t, http.MethodDelete, "/v1/streams/audit", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, "/v1/streams/audit", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("info after delete: %d", resp.StatusCode)
	}
}

func TestClearStreamNDJSON(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 5; i++ {
		if _, err := e.svc.PublishSqueak(context.Background(), "a", "b"); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	resp := e.do(t, http.MethodPost, "/v1/streams/events/clear", `{"batch_size":2}`)
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type %q", ct)
	}
	var lines []map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 3 progress lines and a summary, got %v", lines)
	}
	if lines[0]["batch"] != float64(2) || lines[2]["total"] != float64(5) {
		t.Fatalf("unexpected progress %v", lines)
	}
	if last := lines[3]; last["done"] != true || last["total"] != float64(5) {
		t.Fatalf("unexpected summary %v", last)
	}

	if resp := e.do(t, http.MethodPost, "/v1/streams/missing/clear", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing stream status: %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsBadFilter(t *testing.T) {
	e := newTestEnv(t)
	if resp := e.do(t, http.MethodGet, "/ws?filter=content%20%3D%3D", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodGet, "/ws?replay=maybe", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestWebSocketReplayThenLive(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var hist []squeak.Squeak
	for i := 0; i < 3; i++ {
		sq, err := e.svc.PublishSqueak(ctx, "hist", "old")
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		hist = append(hist, sq)
	}

	st, _ := e.rt.EventStream(ctx)
	// Attach the forwarder's durable consumer up front so it starts at the
	// current tail: history reaches the client only through replay.
	if _, err := st.CreateConsumer(ctx, eventlog.ConsumerConfig{
		Durable:       gateway.DefaultForwarderConsumer,
		FilterSubject: e.rt.Subject(),
		DeliverPolicy: eventlog.DeliverNew,
	}); err != nil {
		t.Fatalf("consumer: %v", err)
	}
	fw := gateway.NewForwarder(gateway.ForwarderOptions{
		Stream:       st,
		Broadcaster:  e.rt.Broadcaster(),
		Subject:      e.rt.Subject(),
		PollInterval: time.Millisecond,
	})
	fctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = fw.Run(fctx) }()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	read := func() squeak.Squeak {
		t.Helper()
		typ, p, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.MessageText {
			t.Fatalf("expected text frame, got %v", typ)
		}
		sq, err := squeak.Decode(p)
		if err != nil {
			t.Fatalf("decode %s: %v", p, err)
		}
		return sq
	}
	for i, want := range hist {
		if got := read(); got.ID != want.ID {
			t.Fatalf("replay %d: got %s want %s", i, got.ID, want.ID)
		}
	}

	live, err := e.svc.PublishSqueak(ctx, "live", "new")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := read(); got.ID != live.ID {
		t.Fatalf("live: got %s want %s", got.ID, live.ID)
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}
