// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mesa/pos-edge/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store with staged, atomically-committed
// write transactions. Writers are serialized by a mutex held for the
// whole transaction, mirroring the single-writer semantics of the
// durable store.
type Memory struct {
	mu        sync.Mutex // write serialization
	stateMu   sync.RWMutex
	seq       uint64
	events    []ledger.OrderEvent
	snapshots map[string][]byte // stored as JSON to keep callers isolated

	// FailNextCommit makes the next Commit fail without persisting.
	// Test hook for storage-error paths.
	FailNextCommit bool
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

// BeginWrite locks out other writers until Commit or Rollback.
func (m *Memory) BeginWrite(_ context.Context) (ledger.WriteTx, error) {
	m.mu.Lock()
	return &memoryTx{parent: m, seq: m.seq}, nil
}

func (m *Memory) LoadSnapshot(_ context.Context, orderID string) (*ledger.OrderSnapshot, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.decodeSnapshot(orderID)
}

func (m *Memory) ActiveSnapshots(_ context.Context) ([]ledger.OrderSnapshot, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	var out []ledger.OrderSnapshot
	for orderID := range m.snapshots {
		s, err := m.decodeSnapshot(orderID)
		if err != nil {
			return nil, err
		}
		if s != nil && s.Status == ledger.StatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *Memory) EventsSince(_ context.Context, since uint64, limit int) ([]ledger.OrderEvent, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	var out []ledger.OrderEvent
	for _, e := range m.events {
		if e.Sequence <= since {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) EventsForOrder(_ context.Context, orderID string) ([]ledger.OrderEvent, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	var out []ledger.OrderEvent
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) CurrentSequence(_ context.Context) (uint64, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.seq, nil
}

// decodeSnapshot must be called with stateMu held.
func (m *Memory) decodeSnapshot(orderID string) (*ledger.OrderSnapshot, error) {
	raw, ok := m.snapshots[orderID]
	if !ok {
		return nil, nil
	}
	var s ledger.OrderSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// =============================================================================
// WRITE TRANSACTION - staged until Commit
// =============================================================================

type memoryTx struct {
	parent    *Memory
	seq       uint64
	events    []ledger.OrderEvent
	snapshots map[string][]byte
	done      bool
}

func (tx *memoryTx) NextSequence(_ context.Context) (uint64, error) {
	tx.seq++
	return tx.seq, nil
}

func (tx *memoryTx) LoadSnapshot(_ context.Context, orderID string) (*ledger.OrderSnapshot, error) {
	if raw, ok := tx.snapshots[orderID]; ok {
		var s ledger.OrderSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	tx.parent.stateMu.RLock()
	defer tx.parent.stateMu.RUnlock()
	return tx.parent.decodeSnapshot(orderID)
}

func (tx *memoryTx) StoreSnapshot(_ context.Context, s *ledger.OrderSnapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if tx.snapshots == nil {
		tx.snapshots = make(map[string][]byte)
	}
	tx.snapshots[s.OrderID] = raw
	return nil
}

func (tx *memoryTx) AppendEvent(_ context.Context, e ledger.OrderEvent) error {
	tx.events = append(tx.events, e)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.parent.mu.Unlock()

	if tx.parent.FailNextCommit {
		tx.parent.FailNextCommit = false
		return errCommitFailed
	}

	tx.parent.stateMu.Lock()
	defer tx.parent.stateMu.Unlock()
	tx.parent.seq = tx.seq
	tx.parent.events = append(tx.parent.events, tx.events...)
	for orderID, raw := range tx.snapshots {
		tx.parent.snapshots[orderID] = raw
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.parent.mu.Unlock()
	return nil
}

type commitError struct{}

func (commitError) Error() string { return "memory store: commit failed" }

var errCommitFailed = commitError{}
