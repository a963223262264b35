/*
Package ledger is the edge order ledger: a command-sourced, event-sourced
state machine for restaurant orders.

PURPOSE:
  Every mutation to an order (items added, payments taken, voids, comps,
  stamp redemptions, table moves) is recorded as an immutable, globally
  sequence-numbered event. Events fold into a queryable snapshot per
  order. The design must survive crashes, reconnecting clients, and
  concurrent command submission without losing or duplicating financial
  state.

KEY CONCEPTS IN THIS FILE (types.go):
  - OrderSnapshot: current-state aggregate for one order
  - CartItemSnapshot: one line item, exclusively owned by its order
  - PaymentSnapshot / CompRecord: payment and comp audit entries
  - OrderStatus: the small order state machine

CRITICAL INVARIANTS:
  1. Events are APPEND-ONLY. No update, no delete. Ever.
  2. Snapshots are mutated ONLY by event appliers (applier.go).
  3. state_checksum must always verify against the snapshot's fields;
     any mutation outside an applier invalidates it.
  4. last_sequence is monotonically non-decreasing and equals the
     sequence of the last event folded in.

SEE ALSO:
  - event.go: event types and payloads
  - command.go: command types and payloads
  - applier.go: the only code allowed to mutate snapshots
  - manager.go: command orchestration
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// ORDER STATUS - Small state machine
// =============================================================================

type OrderStatus string

const (
	StatusActive    OrderStatus = "active"
	StatusCompleted OrderStatus = "completed"
	StatusVoid      OrderStatus = "void"
	StatusMoved     OrderStatus = "moved"
	StatusMerged    OrderStatus = "merged"
)

// Terminal reports whether the status rejects further item/payment
// mutation. Moved and Merged orders stay queryable for audit but are
// closed to mutation, same as Completed and Void.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusVoid, StatusMoved, StatusMerged:
		return true
	}
	return false
}

// =============================================================================
// CART ITEM - One line item, exclusively owned by its order
// =============================================================================

// CartItemSnapshot is one physical line on the order. InstanceID is
// unique per line, including synthetic ids minted for split/comp
// children, so two lines of the same product stay distinguishable.
type CartItemSnapshot struct {
	ProductID  string `json:"product_id"`
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id,omitempty"`
	Quantity   int64  `json:"quantity"`

	BasePrice     decimal.Decimal `json:"base_price"` // catalog price per unit
	UnitPrice     decimal.Decimal `json:"unit_price"` // rule-adjusted per unit
	UnitDiscount  decimal.Decimal `json:"unit_discount"`
	UnitSurcharge decimal.Decimal `json:"unit_surcharge"`

	// ManualDiscount is a per-unit operator discount, preserved across
	// comp splits so a later reversal can reconstruct the source line.
	ManualDiscount decimal.Decimal `json:"manual_discount"`

	AppliedRules []pricing.AppliedRule `json:"applied_rules,omitempty"`

	Comped bool `json:"comped"`
	// OriginalPrice is set the first time the line is comped and never
	// overwritten on a repeated comp.
	OriginalPrice decimal.Decimal `json:"original_price"`
}

// =============================================================================
// PAYMENTS AND COMPS
// =============================================================================

type PaymentSnapshot struct {
	PaymentID string          `json:"payment_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Tendered  decimal.Decimal `json:"tendered"`
	Change    decimal.Decimal `json:"change"`
	At        time.Time       `json:"at"`
}

// CompRecord is the audit trail entry for one comp action. Created only
// by the ItemComped applier, never mutated.
type CompRecord struct {
	ID               string          `json:"id"`
	SourceInstanceID string          `json:"source_instance_id"`
	ResultInstanceID string          `json:"result_instance_id"`
	Quantity         int64           `json:"quantity"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	AuthorizedBy     string          `json:"authorized_by"`
	Reason           string          `json:"reason,omitempty"`
	At               time.Time       `json:"at"`
}

// =============================================================================
// MEMBER LINKAGE
// =============================================================================

// MemberLink ties an order to a loyalty member. Stamps is the member's
// stamp balance as tracked by this order's event stream.
type MemberLink struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name,omitempty"`
	Stamps   int64  `json:"stamps"`
}

// =============================================================================
// ORDER SNAPSHOT - Current-state aggregate
// =============================================================================

// OrderSnapshot is the current-state projection of one order,
// rebuildable from its event history. Logically terminal snapshots
// (Completed, Void) remain queryable indefinitely; nothing here is
// physically deleted.
type OrderSnapshot struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`

	TableID string      `json:"table_id,omitempty"`
	ZoneID  string      `json:"zone_id,omitempty"`
	Member  *MemberLink `json:"member,omitempty"`

	Items    []CartItemSnapshot `json:"items"`
	Payments []PaymentSnapshot  `json:"payments"`
	Comps    []CompRecord       `json:"comps,omitempty"`

	// OrderRules are the order-scoped price rules captured when items
	// were added; they feed the order-level calculation pass.
	OrderRules []pricing.PriceRule `json:"order_rules,omitempty"`

	ManualDiscountPercent decimal.Decimal `json:"manual_discount_percent"`
	ManualDiscountAmount  decimal.Decimal `json:"manual_discount_amount"`

	TaxRate decimal.Decimal `json:"tax_rate"`

	// Monetary totals, recomputed by the shared routine after every
	// applied event. See totals.go.
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	SurchargeTotal decimal.Decimal `json:"surcharge_total"`
	CompTotal      decimal.Decimal `json:"comp_total"`
	TaxTotal       decimal.Decimal `json:"tax_total"`
	Total          decimal.Decimal `json:"total"`
	PaidTotal      decimal.Decimal `json:"paid_total"`

	LastSequence uint64    `json:"last_sequence"`
	OpenedAt     time.Time `json:"opened_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	StateChecksum string `json:"state_checksum"`
}

// Item returns the line with the given instance id, or nil.
func (s *OrderSnapshot) Item(instanceID string) *CartItemSnapshot {
	for i := range s.Items {
		if s.Items[i].InstanceID == instanceID {
			return &s.Items[i]
		}
	}
	return nil
}

// Balance is the amount still owed: Total minus PaidTotal.
func (s *OrderSnapshot) Balance() decimal.Decimal {
	return s.Total.Sub(s.PaidTotal)
}
