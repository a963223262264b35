/*
event.go - Immutable order events and their payloads

PURPOSE:
  OrderEvent is the unit of truth in the ledger. Each event carries a
  global sequence number (the authoritative ordering key), a server
  timestamp (authoritative for replay), and a typed payload with exactly
  the data needed to replay its effect.

CLOSED VARIANT SET:
  Payloads form a closed tagged union keyed by EventType. The codec in
  this file (EncodePayload/DecodePayload) and the applier dispatch table
  both switch over the same tags; adding an event type means touching
  both, which the tests enforce.

IMMUTABILITY:
  Events are append-only and never mutated or deleted once committed.
  Corrections happen through new events (void, comp), never edits.

SEE ALSO:
  - applier.go: dispatch table folding events into snapshots
  - store.go: persistence contract
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

type EventType string

const (
	EventOrderOpened           EventType = "order_opened"
	EventItemsAdded            EventType = "items_added"
	EventPaymentAdded          EventType = "payment_added"
	EventOrderCompleted        EventType = "order_completed"
	EventOrderVoided           EventType = "order_voided"
	EventItemComped            EventType = "item_comped"
	EventItemRestored          EventType = "item_restored"
	EventStampRedeemed         EventType = "stamp_redeemed"
	EventStampsAccrued         EventType = "stamps_accrued"
	EventTableMoved            EventType = "table_moved"
	EventOrderMerged           EventType = "order_merged"
	EventManualDiscountApplied EventType = "manual_discount_applied"
)

// OrderEvent is an immutable fact about one order.
type OrderEvent struct {
	EventID  string    `json:"event_id"`
	Sequence uint64    `json:"sequence"` // global, gapless, authoritative ordering key
	OrderID  string    `json:"order_id"`
	Type     EventType `json:"type"`

	// At is the server timestamp, authoritative for replay ordering.
	// ClientAt is audit-only and may show clock skew.
	At       time.Time  `json:"at"`
	ClientAt *time.Time `json:"client_at,omitempty"`

	OperatorID   string `json:"operator_id,omitempty"`
	OperatorName string `json:"operator_name,omitempty"`
	CommandID    string `json:"command_id,omitempty"`

	Payload EventPayload `json:"-"`
}

// EventPayload is the closed set of event payload variants.
type EventPayload interface {
	eventType() EventType
}

// =============================================================================
// PAYLOAD VARIANTS
// =============================================================================

type OrderOpenedPayload struct {
	TableID string          `json:"table_id,omitempty"`
	ZoneID  string          `json:"zone_id,omitempty"`
	Member  *MemberLink     `json:"member,omitempty"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

type ItemsAddedPayload struct {
	Items []CartItemSnapshot `json:"items"`
	// OrderRules are order-scoped rules matched at add time; the applier
	// merges them into the snapshot for the order-level pricing pass.
	OrderRules []pricing.PriceRule `json:"order_rules,omitempty"`
}

type PaymentAddedPayload struct {
	Payment PaymentSnapshot `json:"payment"`
}

type OrderCompletedPayload struct {
	Total decimal.Decimal `json:"total"`
	Paid  decimal.Decimal `json:"paid"`
}

type OrderVoidedPayload struct {
	VoidType     string          `json:"void_type"`
	LossReason   string          `json:"loss_reason,omitempty"`
	LossAmount   decimal.Decimal `json:"loss_amount"`
	Note         string          `json:"note,omitempty"`
	AuthorizedBy string          `json:"authorized_by,omitempty"`
}

type ItemCompedPayload struct {
	// SourceInstanceID is the line being comped. For a whole-item comp
	// InstanceID equals SourceInstanceID; for a partial comp InstanceID
	// is the synthetic id of the new comped child line.
	SourceInstanceID string          `json:"source_instance_id"`
	InstanceID       string          `json:"instance_id"`
	Quantity         int64           `json:"quantity"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	AuthorizedBy     string          `json:"authorized_by"`
	Reason           string          `json:"reason,omitempty"`
}

type ItemRestoredPayload struct {
	InstanceID string `json:"instance_id"`
}

type StampRedeemedPayload struct {
	ActivityID string `json:"activity_id"`
	InstanceID string `json:"instance_id"` // the reward line the redemption draws from
	// ResultInstanceID equals InstanceID when the whole line is comped
	// (single-unit line). For a multi-unit line it is the synthetic id
	// of the one-unit comped child the applier splits off.
	ResultInstanceID string `json:"result_instance_id"`
	StampsSpent      int64  `json:"stamps_spent"`
}

type StampsAccruedPayload struct {
	ActivityID string `json:"activity_id"`
	Stamps     int64  `json:"stamps"`
}

type TableMovedPayload struct {
	FromTableID string `json:"from_table_id,omitempty"`
	ToTableID   string `json:"to_table_id"`
	FromZoneID  string `json:"from_zone_id,omitempty"`
	ToZoneID    string `json:"to_zone_id,omitempty"`
	// TargetOrderID is set when the move lands on an existing order;
	// the source order is then Moved rather than staying Active.
	TargetOrderID string `json:"target_order_id,omitempty"`
}

type OrderMergedPayload struct {
	TargetOrderID string `json:"target_order_id"`
}

type ManualDiscountAppliedPayload struct {
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

func (OrderOpenedPayload) eventType() EventType           { return EventOrderOpened }
func (ItemsAddedPayload) eventType() EventType            { return EventItemsAdded }
func (PaymentAddedPayload) eventType() EventType          { return EventPaymentAdded }
func (OrderCompletedPayload) eventType() EventType        { return EventOrderCompleted }
func (OrderVoidedPayload) eventType() EventType           { return EventOrderVoided }
func (ItemCompedPayload) eventType() EventType            { return EventItemComped }
func (ItemRestoredPayload) eventType() EventType          { return EventItemRestored }
func (StampRedeemedPayload) eventType() EventType         { return EventStampRedeemed }
func (StampsAccruedPayload) eventType() EventType         { return EventStampsAccrued }
func (TableMovedPayload) eventType() EventType            { return EventTableMoved }
func (OrderMergedPayload) eventType() EventType           { return EventOrderMerged }
func (ManualDiscountAppliedPayload) eventType() EventType { return EventManualDiscountApplied }

// =============================================================================
// PAYLOAD CODEC - JSON envelope for storage and the wire
// =============================================================================

// EncodePayload serializes an event payload for storage.
func EncodePayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

func decodeAs[T EventPayload](t EventType, raw []byte) (EventPayload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return v, nil
}

// DecodePayload deserializes a stored payload for the given event type.
func DecodePayload(t EventType, raw []byte) (EventPayload, error) {
	switch t {
	case EventOrderOpened:
		return decodeAs[OrderOpenedPayload](t, raw)
	case EventItemsAdded:
		return decodeAs[ItemsAddedPayload](t, raw)
	case EventPaymentAdded:
		return decodeAs[PaymentAddedPayload](t, raw)
	case EventOrderCompleted:
		return decodeAs[OrderCompletedPayload](t, raw)
	case EventOrderVoided:
		return decodeAs[OrderVoidedPayload](t, raw)
	case EventItemComped:
		return decodeAs[ItemCompedPayload](t, raw)
	case EventItemRestored:
		return decodeAs[ItemRestoredPayload](t, raw)
	case EventStampRedeemed:
		return decodeAs[StampRedeemedPayload](t, raw)
	case EventStampsAccrued:
		return decodeAs[StampsAccruedPayload](t, raw)
	case EventTableMoved:
		return decodeAs[TableMovedPayload](t, raw)
	case EventOrderMerged:
		return decodeAs[OrderMergedPayload](t, raw)
	case EventManualDiscountApplied:
		return decodeAs[ManualDiscountAppliedPayload](t, raw)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// MarshalJSON flattens the typed payload into a tagged envelope so
// events serialize the same way on the wire and in storage.
func (e OrderEvent) MarshalJSON() ([]byte, error) {
	raw, err := EncodePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	type alias OrderEvent
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias: alias(e), Payload: raw})
}

// UnmarshalJSON reverses MarshalJSON.
func (e *OrderEvent) UnmarshalJSON(data []byte) error {
	type alias OrderEvent
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 {
		return nil
	}
	p, err := DecodePayload(e.Type, aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = p
	return nil
}
