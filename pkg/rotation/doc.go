// Package rotation keeps database connection pools on the current credentials
// after a secrets manager rotates them out-of-band.
//
// # Architecture Overview
//
// A single Coordinator watches the mounted secret files and fans changes out
// to one adapter per pool engine:
//
//	┌──────────────────────────────┐
//	│   secrets volume (username,  │   rewritten by Vault agent,
//	│   password, jdbc-url)        │   CSI driver, ESO, ...
//	└──────────────┬───────────────┘
//	               │ read every interval
//	┌──────────────▼───────────────┐
//	│         Coordinator          │   cached pair (password sealed)
//	│     (pkg/rotation)           │   compare username AND password
//	└──────────────┬───────────────┘
//	               │ Update(username, password), in registration order
//	       ┌───────┴───────────┐
//	┌──────▼───────┐    ┌──────▼───────┐
//	│ EvictAdapter │    │RefreshAdapter│  (pkg/pool)
//	│ pull + soft  │    │ push + named │
//	│ eviction     │    │ pool refresh │
//	└──────────────┘    └──────────────┘
//
// # Change Detection
//
// Each tick reads both files before comparing anything, so no adapter ever
// sees a pair with a new username and an old password. The comparison is
// structural on both fields: a password-only rotation is detected. The very
// first successful tick always notifies because the cache starts unset.
//
// A missing file during polling is not an error: the tick is abandoned, the
// cache is left alone, and the next tick tries again. If the file comes back
// with the value it had before the outage, no notification is sent.
//
// # Failure Isolation
//
// Adapters are called one after another. An error or panic in one adapter is
// logged and collected; the remaining adapters in the same round are still
// notified, and Tick returns all collected errors joined together. Run logs
// that error and keeps going.
//
// An adapter that hangs stalls the rest of its round. Adapters are expected
// to swap local state and trigger (not wait for) pool convergence.
//
// # Usage
//
//	reader := secretsource.NewDirReader("/var/run/secrets/database")
//	coord := rotation.NewCoordinator(reader,
//	    rotation.WithInterval(30*time.Second),
//	    rotation.WithLogger(logger),
//	)
//	_ = coord.Register(evictAdapter)
//	_ = coord.Register(refreshAdapter)
//	go func() { _ = coord.Run(ctx) }()
package rotation
