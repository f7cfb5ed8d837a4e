package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// MessageType is the kind of a client frame.
type MessageType int

const (
	MessageText   MessageType = MessageType(websocket.MessageText)
	MessageBinary MessageType = MessageType(websocket.MessageBinary)
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Conn is one bidirectional client connection. Write sends a text frame.
// Read returns an error once the peer closes or the connection breaks.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, p []byte) error
	Close(reason string) error
}

// AcceptOptions tunes the WebSocket upgrade.
type AcceptOptions struct {
	// OriginPatterns lists host patterns allowed in cross-origin requests.
	OriginPatterns []string
	// ReadLimit caps inbound frame size in bytes. Defaults to 32KiB.
	ReadLimit int64
}

// Accept upgrades an HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request, opts AcceptOptions) (Conn, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
	if err != nil {
		return nil, err
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = 32 << 10
	}
	c.SetReadLimit(limit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (MessageType, []byte, error) {
	typ, p, err := w.c.Read(ctx)
	return MessageType(typ), p, err
}

func (w *wsConn) Write(ctx context.Context, p []byte) error {
	return w.c.Write(ctx, websocket.MessageText, p)
}

func (w *wsConn) Close(reason string) error {
	err := w.c.Close(websocket.StatusNormalClosure, reason)
	if err != nil {
		// The peer may already be gone; don't wait on the close handshake.
		_ = w.c.CloseNow()
	}
	return err
}

// isNormalClose reports whether err is the expected end of a session.
func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

func writeTimeout(ctx context.Context, d time.Duration, c Conn, p []byte) error {
	if d <= 0 {
		return c.Write(ctx, p)
	}
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return c.Write(wctx, p)
}
