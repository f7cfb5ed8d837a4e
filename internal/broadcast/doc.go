// Package broadcast is a bounded, lossy, in-process fan-out.
//
// A Broadcaster keeps the last N values in a ring. Every Receiver reads the
// ring at its own pace; a receiver that falls more than N values behind loses
// the oldest ones and is told how many through a *LaggedError. Send never
// blocks and never fails: with no receivers the value is discarded.
//
//	b := broadcast.New[Event](100)
//	r := b.Subscribe()
//	defer r.Close()
//	b.Send(ev)
//	v, err := r.Recv(ctx)
package broadcast
