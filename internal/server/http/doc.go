// Package httpserver exposes oddbot over HTTP with a chi router: the /ws
// WebSocket gateway, /health, /metrics, and a small JSON API for squeaks
// and stream administration under /v1.
//
// Example:
//
//	svc := eventsvc.New(rt, logger)
//	gw := gateway.New(gateway.Options{Stream: st, Broadcaster: rt.Broadcaster()})
//	s := httpserver.New(rt, svc, gw, logger)
//	_ = s.ListenAndServe(ctx, ":3000")
package httpserver
