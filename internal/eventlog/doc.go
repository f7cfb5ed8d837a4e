// Package eventlog implements oddbot's durable, append-only event log and the
// pull consumers that read it.
//
// # Overview
//
// A Store holds named streams persisted in Pebble. Each stream binds a set of
// subject patterns and assigns every published record a strictly increasing
// sequence number. Keys are lexicographically ordered for range scans:
//   - st/{stream}/m                         (stream metadata)
//   - st/{stream}/seq                       (last assigned sequence)
//   - st/{stream}/e/{seq_be8}               (entries)
//   - st/{stream}/c/{consumer}/m            (durable consumer state)
//   - st/{stream}/c/{consumer}/p/{seq_be8}  (unacknowledged deliveries)
//
// Records are stored as: varint headerLen | header | payload | crc32c, the
// header being a msgpack map of subject and publish time.
//
// API surface
//
//	store, _ := OpenStore(db, StoreOptions{Logger: logger})
//	s, _ := store.CreateStream(ctx, StreamConfig{Name: "events", Subjects: []string{"app.>"}})
//	_, _ = s.Publish(ctx, EventMessage{Subject: "app.post", Payload: v})
//
//	c, _ := s.CreateConsumer(ctx, ConsumerConfig{Durable: "worker", DeliverPolicy: DeliverNew})
//	ds, _ := c.Fetch(ctx, 20)        // blocks up to FetchWait when empty
//	for _, d := range ds {
//	    _ = c.Ack(ctx, d)
//	}
//
//	// Read everything available in fixed-size rounds, acking as it goes.
//	n, _ := Drain(ctx, c, DrainOptions{BatchSize: 100, Delay: 50 * time.Millisecond}, handle)
//
// # Delivery semantics
//
// Delivery is at least once. A record that is not acknowledged within
// AckWait is redelivered, up to MaxDeliver deliveries in total; after that it
// is dropped and counted as terminated. A durable consumer's ack floor never
// moves backwards and only passes records that were acknowledged, filtered
// out or terminated.
//
// # Retention
//
// Records older than the stream's max age are trimmed, oldest first, at most
// once per TrimInterval from the publish path.
package eventlog
