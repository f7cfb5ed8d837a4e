// Package serverrun exposes the Run entrypoint used by the CLI to start the
// oddbot server: the event store, the live forwarder and the HTTP/WebSocket
// gateway, with shared lifecycle and shutdown.
//
// Example:
//
//	cfg, _ := config.Load("")
//	cfg.Stream.Name = "oblivion"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg, CreateStream: true})
package serverrun
