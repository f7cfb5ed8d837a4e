// Package gateway bridges the squeak stream to WebSocket clients.
//
// A Forwarder tails the stream with one durable consumer and hands every
// squeak to the process-wide broadcaster. Each client connection is served
// by Gateway.Serve: it subscribes to the broadcaster, optionally replays
// stored squeaks through its own ephemeral consumer, and then runs an
// outbound and an inbound task until either one ends.
//
//	bc := broadcast.New[squeak.Stored](100)
//	fw := gateway.NewForwarder(gateway.ForwarderOptions{Stream: s, Broadcaster: bc})
//	go fw.Run(ctx)
//
//	gw := gateway.New(gateway.Options{Stream: s, Broadcaster: bc, Replay: gateway.DefaultReplayOptions()})
//	conn, _ := gateway.Accept(w, r, gateway.AcceptOptions{})
//	_ = gw.Serve(r.Context(), conn, gateway.SessionOptions{Replay: true})
package gateway
