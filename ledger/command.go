/*
command.go - Commands submitted to the ledger

PURPOSE:
  A command is an operator's intent ("add these items", "take this
  payment"). Commands are validated against the current snapshot and,
  on success, turned into one or more events. Commands themselves are
  never stored; only their originating command_id travels on events.

CLOSED VARIANT SET:
  Like events, command payloads form a closed tagged union keyed by
  CommandType, with a symmetric JSON codec for the submission boundary.

SEE ALSO:
  - actions.go: one handler per command type
  - manager.go: transaction orchestration
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMAND TYPES
// =============================================================================

type CommandType string

const (
	CmdOpenTable           CommandType = "open_table"
	CmdAddItems            CommandType = "add_items"
	CmdAddPayment          CommandType = "add_payment"
	CmdCompleteOrder       CommandType = "complete_order"
	CmdVoidOrder           CommandType = "void_order"
	CmdCompItem            CommandType = "comp_item"
	CmdRestoreItem         CommandType = "restore_item"
	CmdRedeemStamp         CommandType = "redeem_stamp"
	CmdMoveTable           CommandType = "move_table"
	CmdMergeOrder          CommandType = "merge_order"
	CmdApplyManualDiscount CommandType = "apply_manual_discount"
)

// Command is one operator intent targeting one order.
type Command struct {
	CommandID    string      `json:"command_id"`
	Type         CommandType `json:"type"`
	OrderID      string      `json:"order_id"`
	OperatorID   string      `json:"operator_id,omitempty"`
	OperatorName string      `json:"operator_name,omitempty"`
	// At is the client timestamp; the server clock is authoritative for
	// the events a command produces.
	At time.Time `json:"at,omitempty"`

	Payload CommandPayload `json:"-"`
}

// CommandPayload is the closed set of command payload variants.
type CommandPayload interface {
	commandType() CommandType
}

// =============================================================================
// PAYLOAD VARIANTS
// =============================================================================

type OpenTablePayload struct {
	TableID string      `json:"table_id,omitempty"`
	ZoneID  string      `json:"zone_id,omitempty"`
	Member  *MemberLink `json:"member,omitempty"`
}

// ItemInput is one requested line; pricing happens server-side.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type AddItemsPayload struct {
	Items []ItemInput `json:"items"`
}

type AddPaymentPayload struct {
	Method   string          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Tendered decimal.Decimal `json:"tendered"`
}

type CompleteOrderPayload struct{}

type VoidOrderPayload struct {
	VoidType     string          `json:"void_type"`
	LossReason   string          `json:"loss_reason,omitempty"`
	LossAmount   decimal.Decimal `json:"loss_amount"`
	Note         string          `json:"note,omitempty"`
	AuthorizedBy string          `json:"authorized_by,omitempty"`
}

type CompItemPayload struct {
	InstanceID   string `json:"instance_id"`
	Quantity     int64  `json:"quantity"` // 0 or full quantity = whole-item comp
	AuthorizedBy string `json:"authorized_by"`
	Reason       string `json:"reason,omitempty"`
}

type RestoreItemPayload struct {
	InstanceID string `json:"instance_id"`
}

type RedeemStampPayload struct {
	ActivityID string `json:"activity_id"`
}

type MoveTablePayload struct {
	TableID string `json:"table_id"`
	ZoneID  string `json:"zone_id,omitempty"`
	// TargetOrderID moves this order onto an order already open at the
	// destination. The source order becomes Moved, a terminal status.
	TargetOrderID string `json:"target_order_id,omitempty"`
}

type MergeOrderPayload struct {
	TargetOrderID string `json:"target_order_id"`
}

type ApplyManualDiscountPayload struct {
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

func (OpenTablePayload) commandType() CommandType           { return CmdOpenTable }
func (AddItemsPayload) commandType() CommandType            { return CmdAddItems }
func (AddPaymentPayload) commandType() CommandType          { return CmdAddPayment }
func (CompleteOrderPayload) commandType() CommandType       { return CmdCompleteOrder }
func (VoidOrderPayload) commandType() CommandType           { return CmdVoidOrder }
func (CompItemPayload) commandType() CommandType            { return CmdCompItem }
func (RestoreItemPayload) commandType() CommandType         { return CmdRestoreItem }
func (RedeemStampPayload) commandType() CommandType         { return CmdRedeemStamp }
func (MoveTablePayload) commandType() CommandType           { return CmdMoveTable }
func (MergeOrderPayload) commandType() CommandType          { return CmdMergeOrder }
func (ApplyManualDiscountPayload) commandType() CommandType { return CmdApplyManualDiscount }

// =============================================================================
// CODEC - Submission boundary JSON
// =============================================================================

func decodeCommandAs[T CommandPayload](t CommandType, raw []byte) (CommandPayload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return v, nil
}

// DecodeCommandPayload deserializes a command payload by type tag.
func DecodeCommandPayload(t CommandType, raw []byte) (CommandPayload, error) {
	switch t {
	case CmdOpenTable:
		return decodeCommandAs[OpenTablePayload](t, raw)
	case CmdAddItems:
		return decodeCommandAs[AddItemsPayload](t, raw)
	case CmdAddPayment:
		return decodeCommandAs[AddPaymentPayload](t, raw)
	case CmdCompleteOrder:
		return decodeCommandAs[CompleteOrderPayload](t, raw)
	case CmdVoidOrder:
		return decodeCommandAs[VoidOrderPayload](t, raw)
	case CmdCompItem:
		return decodeCommandAs[CompItemPayload](t, raw)
	case CmdRestoreItem:
		return decodeCommandAs[RestoreItemPayload](t, raw)
	case CmdRedeemStamp:
		return decodeCommandAs[RedeemStampPayload](t, raw)
	case CmdMoveTable:
		return decodeCommandAs[MoveTablePayload](t, raw)
	case CmdMergeOrder:
		return decodeCommandAs[MergeOrderPayload](t, raw)
	case CmdApplyManualDiscount:
		return decodeCommandAs[ApplyManualDiscountPayload](t, raw)
	default:
		return nil, fmt.Errorf("unknown command type %q", t)
	}
}

// MarshalJSON flattens the typed payload into a tagged envelope.
func (c Command) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("{}")
	if c.Payload != nil {
		b, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	type alias Command
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias: alias(c), Payload: raw})
}

// UnmarshalJSON reverses MarshalJSON.
func (c *Command) UnmarshalJSON(data []byte) error {
	type alias Command
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 {
		return nil
	}
	p, err := DecodeCommandPayload(c.Type, aux.Payload)
	if err != nil {
		return err
	}
	c.Payload = p
	return nil
}
