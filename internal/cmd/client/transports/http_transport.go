package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/corvidaelabs/oddbot/internal/eventlog"
	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// HTTPTransport talks to the oddbot HTTP API and WebSocket gateway.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

var (
	_ StreamsTransport = (*HTTPTransport)(nil)
	_ SqueaksTransport = (*HTTPTransport)(nil)
)

// NewHTTPTransport returns a transport rooted at baseURL(). A nil client
// means http.DefaultClient.
func NewHTTPTransport(baseURL func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("http error: %d %s", e.Status, e.Message)
}

func (t *HTTPTransport) Create(ctx context.Context, req CreateStreamRequest) (eventlog.StreamInfo, error) {
	var info eventlog.StreamInfo
	err := t.do(ctx, http.MethodPost, "/v1/streams", req, &info)
	return info, err
}

func (t *HTTPTransport) Delete(ctx context.Context, name string) error {
	return t.do(ctx, http.MethodDelete, "/v1/streams/"+url.PathEscape(name), nil, nil)
}

func (t *HTTPTransport) Info(ctx context.Context, name string) (eventlog.StreamInfo, error) {
	var info eventlog.StreamInfo
	err := t.do(ctx, http.MethodGet, "/v1/streams/"+url.PathEscape(name), nil, &info)
	return info, err
}

func (t *HTTPTransport) List(ctx context.Context) ([]eventlog.StreamInfo, error) {
	var out struct {
		Streams []eventlog.StreamInfo `json:"streams"`
	}
	err := t.do(ctx, http.MethodGet, "/v1/streams", nil, &out)
	return out.Streams, err
}

// Clear reads the NDJSON progress lines of POST /v1/streams/{name}/clear.
func (t *HTTPTransport) Clear(ctx context.Context, name string, batchSize int, fn func(ClearProgress)) (int, error) {
	resp, err := t.send(ctx, http.MethodPost, "/v1/streams/"+url.PathEscape(name)+"/clear", map[string]int{"batch_size": batchSize})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	total := 0
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var p struct {
			Batch int    `json:"batch"`
			Total int    `json:"total"`
			Done  bool   `json:"done"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(line, &p); err != nil {
			return total, fmt.Errorf("bad progress line: %w", err)
		}
		total = p.Total
		switch {
		case p.Error != "":
			return total, errors.New(p.Error)
		case p.Done:
			return total, nil
		}
		if fn != nil {
			fn(ClearProgress{Batch: p.Batch, Total: p.Total})
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	return total, io.ErrUnexpectedEOF
}

func (t *HTTPTransport) Publish(ctx context.Context, author, content string) (squeak.Squeak, error) {
	body := map[string]any{"content": content, "author": squeak.User{Name: author}}
	var sq squeak.Squeak
	err := t.do(ctx, http.MethodPost, "/v1/squeaks", body, &sq)
	return sq, err
}

func (t *HTTPTransport) Recent(ctx context.Context, limit int) ([]squeak.Squeak, error) {
	path := "/v1/squeaks"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Squeaks []squeak.Squeak `json:"squeaks"`
	}
	err := t.do(ctx, http.MethodGet, path, nil, &out)
	return out.Squeaks, err
}

func (t *HTTPTransport) Tail(ctx context.Context, req TailRequest, fn func(squeak.Squeak) error) error {
	q := url.Values{}
	q.Set("replay", strconv.FormatBool(req.Replay))
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	u := wsURL(t.baseURL()) + "/ws?" + q.Encode()

	c, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: t.client})
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return err
	}
	defer func() { _ = c.CloseNow() }()

	seen := 0
	for req.Limit <= 0 || seen < req.Limit {
		_, p, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		sq, err := squeak.Decode(p)
		if err != nil {
			return err
		}
		if err := fn(sq); err != nil {
			return err
		}
		seen++
	}
	return c.Close(websocket.StatusNormalClosure, "")
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := t.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// send performs the request and turns non-2xx responses into *APIError.
func (t *HTTPTransport) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(t.baseURL(), "/")+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
