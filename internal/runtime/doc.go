// Package runtime wires storage, the event log, the live broadcaster and
// metrics into a single-node oddbot instance.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	st, _ := rt.EnsureEventStream(ctx)
//	_, _ = st.Publish(ctx, squeak.Message(rt.Prefix(), s))
package runtime
