/*
manager.go - Command orchestration

PURPOSE:
  The Manager is the single entry point for mutating orders. One call =
  one command = one write transaction:

    1. Resolve catalog metadata and price rules (OUTSIDE the transaction)
    2. Begin the write transaction
    3. Load the target snapshot (or fail with OrderNotFound)
    4. Dispatch to the matching action
    5. Fold each returned event through its applier
    6. Persist the snapshot, append all events, commit atomically
    7. Publish committed events to the broadcast hub (best-effort)

CONCURRENCY:
  Command execution is effectively single-writer per store: the write
  transaction serializes all commands against the shared sequence
  counter and snapshot table. Nothing inside the transaction suspends
  (no network, no catalog calls), keeping commit latency bounded.

FAILURE:
  Action failures (validation) commit nothing. Storage failures are
  wrapped in StorageError so callers know to retry the whole command.
  Broadcast delivery failures never roll back the committed write; the
  ledger is the source of truth and is never blocked by its observers.

SEE ALSO:
  - actions.go, applier.go: the two halves of command execution
  - store.go: the transaction contract
  - broadcast: the post-commit fan-out
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa/pos-edge/catalog"
	"github.com/mesa/pos-edge/pricing"
)

// Publisher receives committed events. Implemented by broadcast.Hub.
// Delivery is best-effort and lossy; see the hub's lag contract.
type Publisher interface {
	Publish(e OrderEvent)
}

// CommandResponse is the success result of one executed command.
type CommandResponse struct {
	OrderID string       `json:"order_id"`
	Events  []OrderEvent `json:"events"`
}

// Manager orchestrates command execution against the ledger store.
type Manager struct {
	store   Store
	catalog catalog.Catalog
	hub     Publisher
	logger  *zap.Logger
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewManager wires a manager. hub may be nil (no broadcast); logger may
// be nil (no logging).
func NewManager(store Store, cat catalog.Catalog, hub Publisher, logger *zap.Logger, taxRate decimal.Decimal) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		catalog: cat,
		hub:     hub,
		logger:  logger,
		taxRate: taxRate,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs one command through the full pipeline.
func (m *Manager) Execute(ctx context.Context, cmd Command) (*CommandResponse, error) {
	if cmd.OrderID == "" {
		return nil, invalidOp("order id required")
	}
	if cmd.Payload == nil {
		return nil, invalidOp("command payload required")
	}
	if cmd.Payload.commandType() != cmd.Type {
		return nil, invalidOp("payload does not match command type %s", cmd.Type)
	}
	action, ok := actions[cmd.Type]
	if !ok {
		return nil, invalidOp("unknown command type %s", cmd.Type)
	}

	now := m.now()

	// Catalog metadata and rule matching are resolved before the
	// transaction so no lookup holds the write lock.
	resolved, err := m.resolve(ctx, cmd, now)
	if err != nil {
		return nil, err
	}

	tx, err := m.store.BeginWrite(ctx)
	if err != nil {
		return nil, &StorageError{Op: "begin_write", Err: err}
	}
	defer tx.Rollback()

	snapshot, err := tx.LoadSnapshot(ctx, cmd.OrderID)
	if err != nil {
		return nil, &StorageError{Op: "load_snapshot", Err: err}
	}
	if snapshot == nil && cmd.Type != CmdOpenTable {
		return nil, ErrOrderNotFound
	}

	in := &actionInput{
		cmd:      cmd,
		snapshot: snapshot,
		resolved: resolved,
		now:      now,
		taxRate:  m.taxRate,
		next: func() (uint64, error) {
			seq, err := tx.NextSequence(ctx)
			if err != nil {
				return 0, &StorageError{Op: "next_sequence", Err: err}
			}
			return seq, nil
		},
	}

	events, err := action(in)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		snapshot = &OrderSnapshot{OrderID: cmd.OrderID}
	}
	for i := range events {
		if err := Apply(snapshot, &events[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.StoreSnapshot(ctx, snapshot); err != nil {
		return nil, &StorageError{Op: "store_snapshot", Err: err}
	}
	for _, e := range events {
		if err := tx.AppendEvent(ctx, e); err != nil {
			return nil, &StorageError{Op: "append_event", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit", Err: err}
	}

	// Post-commit fan-out. Lossy by contract; a lagging consumer
	// resynchronizes from the store, never from this channel.
	if m.hub != nil {
		for _, e := range events {
			m.hub.Publish(e)
		}
	}

	m.logger.Info("command executed",
		zap.String("command_id", cmd.CommandID),
		zap.String("type", string(cmd.Type)),
		zap.String("order_id", cmd.OrderID),
		zap.Int("events", len(events)),
		zap.Uint64("last_sequence", snapshot.LastSequence),
	)

	return &CommandResponse{OrderID: cmd.OrderID, Events: events}, nil
}

// =============================================================================
// PRE-TRANSACTION RESOLUTION
// =============================================================================

// resolve performs every catalog lookup a command needs before the
// write transaction begins.
func (m *Manager) resolve(ctx context.Context, cmd Command, now time.Time) (*Resolved, error) {
	r := &Resolved{}
	if m.catalog == nil {
		return r, nil
	}

	switch p := cmd.Payload.(type) {
	case AddItemsPayload:
		return m.resolveItems(ctx, cmd.OrderID, p, now)

	case RedeemStampPayload:
		activity, err := m.catalog.Activity(ctx, p.ActivityID)
		if err != nil && !errors.Is(err, catalog.ErrActivityNotFound) {
			return nil, &StorageError{Op: "resolve_activity", Err: err}
		}
		if activity != nil && activity.ActiveAt(now) {
			r.Activity = activity
		}

	case CompleteOrderPayload:
		activities, err := m.catalog.ActiveActivities(ctx, now)
		if err != nil {
			return nil, &StorageError{Op: "resolve_activities", Err: err}
		}
		r.AccrualActivities = activities
	}
	return r, nil
}

// resolveItems fetches product metadata and partitions the active price
// rules: product/category scopes match per item, global/zone scopes
// apply at the order level.
func (m *Manager) resolveItems(ctx context.Context, orderID string, p AddItemsPayload, now time.Time) (*Resolved, error) {
	r := &Resolved{
		Products:  make(map[string]catalog.Product),
		ItemRules: make(map[string][]pricing.PriceRule),
	}

	for _, input := range p.Items {
		if _, seen := r.Products[input.ProductID]; seen {
			continue
		}
		product, err := m.catalog.Product(ctx, input.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue // the action reports the precise invalid operation
		}
		if err != nil {
			return nil, &StorageError{Op: "resolve_product", Err: err}
		}
		r.Products[product.ID] = *product
	}

	rules, err := m.catalog.ActiveRules(ctx, now)
	if err != nil {
		return nil, &StorageError{Op: "resolve_rules", Err: err}
	}

	// Zone matching needs the order's zone; a read outside the write
	// transaction is fine, the zone only changes through MoveTable.
	zoneID := ""
	if snap, err := m.store.LoadSnapshot(ctx, orderID); err == nil && snap != nil {
		zoneID = snap.ZoneID
	}

	for _, rule := range rules {
		switch rule.Scope {
		case pricing.ScopeProduct:
			if _, ok := r.Products[rule.TargetID]; ok {
				r.ItemRules[rule.TargetID] = append(r.ItemRules[rule.TargetID], rule)
			}
		case pricing.ScopeCategory:
			for id, product := range r.Products {
				if product.CategoryID == rule.TargetID {
					r.ItemRules[id] = append(r.ItemRules[id], rule)
				}
			}
		case pricing.ScopeZone:
			if rule.TargetID == zoneID && zoneID != "" {
				r.OrderRules = append(r.OrderRules, rule)
			}
		case pricing.ScopeGlobal:
			r.OrderRules = append(r.OrderRules, rule)
		}
	}
	return r, nil
}
