/*
store.go - Persistence contract for the order ledger

PURPOSE:
  Defines the interface between the ledger and the database. One write
  transaction is the unit of atomicity for a command: either every
  produced event is appended AND the snapshot update is persisted, or
  nothing is.

SEQUENCE COUNTER:
  The global sequence is a persisted counter row updated inside the
  same transaction as the event append, not an in-memory atomic, so
  counter and data durability are coupled. A crash between allocation
  and commit leaves no gap: the uncommitted allocation is rolled back
  with everything else.

APPEND-ONLY CONTRACT:
  Events have no update or delete operations. Snapshots are upserted
  (they are derived state, rebuildable from events).

IMPLEMENTATIONS:
  - store/sqlite: durable, WAL-mode SQLite
  - ledger/store: in-memory, for tests and ephemeral setups

SEE ALSO:
  - manager.go: the only writer
  - ordersync: the read side
*/
package ledger

import "context"

// =============================================================================
// WRITE TRANSACTION
// =============================================================================

// WriteTx is one serializable write transaction. All reads and writes
// of a single command execution go through exactly one WriteTx. No
// network I/O or other suspension is permitted while one is open.
type WriteTx interface {
	// NextSequence allocates and persists the next global sequence
	// number atomically within this transaction.
	NextSequence(ctx context.Context) (uint64, error)

	// LoadSnapshot returns the snapshot for an order, or nil if the
	// order does not exist.
	LoadSnapshot(ctx context.Context, orderID string) (*OrderSnapshot, error)

	// StoreSnapshot upserts the snapshot.
	StoreSnapshot(ctx context.Context, s *OrderSnapshot) error

	// AppendEvent appends one immutable event.
	AppendEvent(ctx context.Context, e OrderEvent) error

	// Commit makes every write durable, atomically. A commit failure
	// means NOTHING was persisted; the in-memory snapshot must be
	// discarded and reloaded on retry.
	Commit() error

	// Rollback discards the transaction. Safe to call after Commit.
	Rollback() error
}

// =============================================================================
// STORE
// =============================================================================

// Store is the ledger's durable storage: an event table keyed by
// sequence, a snapshot table keyed by order id, and the monotonic
// global sequence counter.
type Store interface {
	// BeginWrite opens the single write transaction. Implementations
	// serialize writers; the transaction boundary is what makes command
	// execution single-writer.
	BeginWrite(ctx context.Context) (WriteTx, error)

	// LoadSnapshot reads a snapshot outside any write transaction.
	LoadSnapshot(ctx context.Context, orderID string) (*OrderSnapshot, error)

	// ActiveSnapshots returns every order still in StatusActive.
	ActiveSnapshots(ctx context.Context) ([]OrderSnapshot, error)

	// EventsSince returns up to limit events with sequence strictly
	// greater than since, in ascending sequence order.
	EventsSince(ctx context.Context, since uint64, limit int) ([]OrderEvent, error)

	// EventsForOrder returns an order's full event history in ascending
	// sequence order.
	EventsForOrder(ctx context.Context, orderID string) ([]OrderEvent, error)

	// CurrentSequence returns the last allocated committed sequence.
	CurrentSequence(ctx context.Context) (uint64, error)
}
