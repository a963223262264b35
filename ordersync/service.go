/*
Package ordersync serves incremental catch-up to reconnecting clients.

PURPOSE:
  A client that lost its connection sends the last sequence number it
  saw; the service answers with every committed event after that point
  plus the current active-order snapshots, so the client can rebuild
  without a full reload. When the gap is too large for incremental
  replay the service tells the client to drop local state and take the
  snapshots as truth instead.

EPOCH:
  Each service instance mints a random epoch identifier at startup. A
  client that presents a sequence from a different epoch (a restored
  backup, a different terminal's database) cannot be caught up by
  sequence arithmetic, so it must compare epochs and full-sync on
  mismatch.

CRITICAL INVARIANTS:
  1. Returned events are a gapless ascending slice starting at
     since+1, or empty
  2. since >= current sequence yields an empty, non-full-sync response
  3. A gap wider than the ceiling always forces a full sync

SEE ALSO:
  - ledger/store.go: EventsSince and CurrentSequence
  - api/handlers.go: the POST /api/sync endpoint
*/
package ordersync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa/pos-edge/ledger"
)

// centTolerance absorbs rounding drift between replayed and stored
// totals.
var centTolerance = decimal.NewFromFloat(0.01)

func withinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(centTolerance)
}

// DefaultCeiling bounds how many events one incremental response may
// carry before a full sync is cheaper.
const DefaultCeiling = 500

// Request is a client's catch-up request.
type Request struct {
	SinceSequence uint64 `json:"since_sequence"`
	ClientEpoch   string `json:"client_epoch,omitempty"`
}

// Response carries either an incremental event slice or a full-sync
// instruction with the authoritative snapshots.
type Response struct {
	Events           []ledger.OrderEvent    `json:"events"`
	ActiveOrders     []ledger.OrderSnapshot `json:"active_orders"`
	ServerSequence   uint64                 `json:"server_sequence"`
	ServerEpoch      string                 `json:"server_epoch"`
	RequiresFullSync bool                   `json:"requires_full_sync"`
}

// VerifyResult reports whether an order's stored snapshot matches a
// replay of its events from empty.
type VerifyResult struct {
	OrderID      string `json:"order_id"`
	Consistent   bool   `json:"consistent"`
	EventCount   int    `json:"event_count"`
	Discrepancy  string `json:"discrepancy,omitempty"`
	LastSequence uint64 `json:"last_sequence"`
}

// Service answers catch-up and integrity queries against the store.
type Service struct {
	store   ledger.Store
	epoch   string
	ceiling int
	logger  *zap.Logger
}

// NewService creates a sync service with a fresh epoch.
func NewService(store ledger.Store, ceiling int, logger *zap.Logger) *Service {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		epoch:   uuid.NewString(),
		ceiling: ceiling,
		logger:  logger,
	}
}

// Epoch returns this instance's epoch identifier.
func (s *Service) Epoch() string {
	return s.epoch
}

// Sync computes the catch-up response for one client request.
func (s *Service) Sync(ctx context.Context, req Request) (*Response, error) {
	current, err := s.store.CurrentSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: read current sequence: %w", err)
	}

	resp := &Response{
		ServerSequence: current,
		ServerEpoch:    s.epoch,
	}

	// Epoch mismatch: the client's sequence belongs to a different
	// history, so its number is meaningless here.
	epochMismatch := req.ClientEpoch != "" && req.ClientEpoch != s.epoch

	// A client claiming to be ahead of the server saw a history we do
	// not have (e.g. the server database was restored from backup).
	ahead := req.SinceSequence > current

	gap := current - min(req.SinceSequence, current)

	switch {
	case epochMismatch, ahead, gap > uint64(s.ceiling):
		resp.RequiresFullSync = true
		snapshots, err := s.store.ActiveSnapshots(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync: load active snapshots: %w", err)
		}
		resp.ActiveOrders = snapshots
		s.logger.Info("full sync issued",
			zap.Uint64("since", req.SinceSequence),
			zap.Uint64("current", current),
			zap.Bool("epoch_mismatch", epochMismatch),
			zap.Int("active_orders", len(snapshots)),
		)

	case gap == 0:
		// Client is current; nothing to send.

	default:
		events, err := s.store.EventsSince(ctx, req.SinceSequence, s.ceiling+1)
		if err != nil {
			return nil, fmt.Errorf("sync: load events: %w", err)
		}
		// More events than the ceiling can appear between the sequence
		// read and the event query; fall back to a full sync rather
		// than send a truncated slice.
		if len(events) > s.ceiling {
			resp.RequiresFullSync = true
			snapshots, err := s.store.ActiveSnapshots(ctx)
			if err != nil {
				return nil, fmt.Errorf("sync: load active snapshots: %w", err)
			}
			resp.ActiveOrders = snapshots
			resp.Events = nil
			break
		}
		resp.Events = events
	}

	return resp, nil
}

// VerifySnapshot replays an order's events from empty and compares the
// result with the stored snapshot.
func (s *Service) VerifySnapshot(ctx context.Context, orderID string) (*VerifyResult, error) {
	stored, err := s.store.LoadSnapshot(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("verify: load snapshot: %w", err)
	}
	if stored == nil {
		return nil, ledger.ErrOrderNotFound
	}

	events, err := s.store.EventsForOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("verify: load events: %w", err)
	}

	replayed, err := ledger.Replay(orderID, events)
	if err != nil {
		return &VerifyResult{
			OrderID:     orderID,
			Consistent:  false,
			EventCount:  len(events),
			Discrepancy: fmt.Sprintf("replay failed: %v", err),
		}, nil
	}

	result := &VerifyResult{
		OrderID:      orderID,
		Consistent:   true,
		EventCount:   len(events),
		LastSequence: stored.LastSequence,
	}

	switch {
	case replayed.Status != stored.Status:
		result.Consistent = false
		result.Discrepancy = fmt.Sprintf("status mismatch: replayed %s, stored %s",
			replayed.Status, stored.Status)
	case replayed.LastSequence != stored.LastSequence:
		result.Consistent = false
		result.Discrepancy = fmt.Sprintf("sequence mismatch: replayed %d, stored %d",
			replayed.LastSequence, stored.LastSequence)
	case len(replayed.Items) != len(stored.Items):
		result.Consistent = false
		result.Discrepancy = fmt.Sprintf("item count mismatch: replayed %d, stored %d",
			len(replayed.Items), len(stored.Items))
	case !withinCent(replayed.Total, stored.Total):
		result.Consistent = false
		result.Discrepancy = fmt.Sprintf("total mismatch: replayed %s, stored %s",
			replayed.Total, stored.Total)
	}

	if !result.Consistent {
		s.logger.Warn("snapshot verification failed",
			zap.String("order_id", orderID),
			zap.String("discrepancy", result.Discrepancy),
		)
	}
	return result, nil
}
