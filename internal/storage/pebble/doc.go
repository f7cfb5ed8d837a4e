// Package pebblestore is the storage substrate under oddbot's event log.
//
// It opens a Pebble directory with one of three durability policies (sync
// every commit, group-commit within an interval, or leave syncing to Pebble)
// and exposes the small surface the log needs: point reads, atomic batches,
// ordered prefix and range scans, and a metrics hook for latency and size.
// Pebble's own log lines are routed through pkg/log.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dir,
//	    Fsync:   pebblestore.FsyncModeAlways,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	b := db.NewBatch()
//	defer b.Close()
//	_ = b.Set(key, value, nil)
//	if err := db.CommitBatch(ctx, b); err != nil {
//	    return err
//	}
package pebblestore
