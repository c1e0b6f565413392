// Package custody provides an embeddable custody-tracking ledger for Go
// applications.
//
// Custody is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - An append-only record store with monotonic, never-reused ids
//   - Ownership-gated mutations: only the current owner changes a record
//   - Exactly-one, in-order change notifications via a hook registry
//   - A session binding so writes are attributed to a bound identity
//   - A reconnecting detection-event channel with bounded buffering
//   - An auto-write bridge turning live detections into ledger records
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/custody"
//	    "github.com/xraph/custody/store/memory"
//	)
//
//	l := custody.New(memory.New())
//
//	ctx := context.Background()
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	// Bind the acting identity, then write.
//	l.Session().Bind("0xAbc...")
//	rec, err := l.Create(ctx, "Plastic")
//
// # Core Concepts
//
// Records track one physical item each. Item type and creation time are
// fixed at creation; status and owner change only through SetStatus and
// Transfer, both gated on the record's current owner. Every accepted
// mutation appends to the change journal and is delivered exactly once, in
// order, to registered hooks.
//
// The stream package maintains a live detection feed over a reconnecting
// connection, and the bridge package maps those detections to Create calls
// under the same session binding.
//
// For production storage use store/postgres, store/sqlite or store/mongo.
package custody
