/*
actions.go - Command actions (one handler per command type)

PURPOSE:
  An action validates its command's preconditions against the current
  snapshot, allocates sequence number(s), and produces one or more
  events. Actions NEVER mutate the snapshot; that is the appliers' job.
  Every validation failure happens before any event is produced, so a
  rejected command has zero durable side effects.

STATUS GATING:
  Order status is a small state machine:
    Active -> {Completed, Void, Moved, Merged}
  The terminal-ish states stay reachable for audit queries but reject
  further item/payment mutation. statusGate (errors.go) maps each to
  its rejection error.

SEQUENCE ALLOCATION:
  Actions allocate through the transaction-bound allocator in their
  input, one sequence per emitted event, inside the same transaction
  that persists them. A crash before commit rolls the allocation back
  with everything else; there is no gap.

SEE ALSO:
  - applier.go: the consumers of these events
  - manager.go: builds actionInput and drives the dispatch table
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/catalog"
	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// ACTION INPUT
// =============================================================================

// Resolved carries the catalog/rule data looked up BEFORE the write
// transaction began. Actions must not perform lookups of their own.
type Resolved struct {
	Products map[string]catalog.Product
	// ItemRules maps product id to its matched item-scope rules.
	ItemRules map[string][]pricing.PriceRule
	// OrderRules are the matched order-scope rules.
	OrderRules []pricing.PriceRule
	// Activity is the stamp activity targeted by RedeemStamp.
	Activity *catalog.StampActivity
	// AccrualActivities are the active activities checked on completion.
	AccrualActivities []catalog.StampActivity
}

type actionInput struct {
	cmd      Command
	snapshot *OrderSnapshot // nil only before OpenTable
	resolved *Resolved
	next     func() (uint64, error) // transaction-bound sequence allocator
	now      time.Time
	taxRate  decimal.Decimal
}

// newEvent allocates the next sequence and stamps command metadata.
func (in *actionInput) newEvent(t EventType, p EventPayload) (OrderEvent, error) {
	seq, err := in.next()
	if err != nil {
		return OrderEvent{}, err
	}
	var clientAt *time.Time
	if !in.cmd.At.IsZero() {
		at := in.cmd.At
		clientAt = &at
	}
	return OrderEvent{
		EventID:      uuid.NewString(),
		Sequence:     seq,
		OrderID:      in.cmd.OrderID,
		Type:         t,
		At:           in.now,
		ClientAt:     clientAt,
		OperatorID:   in.cmd.OperatorID,
		OperatorName: in.cmd.OperatorName,
		CommandID:    in.cmd.CommandID,
		Payload:      p,
	}, nil
}

// requireActive gates commands that are only legal on an Active order.
func (in *actionInput) requireActive() error {
	if err := statusGate(in.snapshot.Status); err != nil {
		return err
	}
	if in.snapshot.Status != StatusActive {
		return invalidOp("order is not active")
	}
	return nil
}

// =============================================================================
// DISPATCH TABLE
// =============================================================================

type actionFunc func(in *actionInput) ([]OrderEvent, error)

// actions is the closed dispatch table, keyed by command type.
var actions = map[CommandType]actionFunc{
	CmdOpenTable:           actOpenTable,
	CmdAddItems:            actAddItems,
	CmdAddPayment:          actAddPayment,
	CmdCompleteOrder:       actCompleteOrder,
	CmdVoidOrder:           actVoidOrder,
	CmdCompItem:            actCompItem,
	CmdRestoreItem:         actRestoreItem,
	CmdRedeemStamp:         actRedeemStamp,
	CmdMoveTable:           actMoveTable,
	CmdMergeOrder:          actMergeOrder,
	CmdApplyManualDiscount: actApplyManualDiscount,
}

// =============================================================================
// ACTIONS
// =============================================================================

func actOpenTable(in *actionInput) ([]OrderEvent, error) {
	if in.snapshot != nil {
		return nil, invalidOp("order %s already exists", in.cmd.OrderID)
	}
	p := in.cmd.Payload.(OpenTablePayload)

	e, err := in.newEvent(EventOrderOpened, OrderOpenedPayload{
		TableID: p.TableID,
		ZoneID:  p.ZoneID,
		Member:  p.Member,
		TaxRate: in.taxRate,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actAddItems(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(AddItemsPayload)
	if len(p.Items) == 0 {
		return nil, invalidOp("no items to add")
	}

	items := make([]CartItemSnapshot, 0, len(p.Items))
	for _, input := range p.Items {
		if input.Quantity <= 0 {
			return nil, invalidOp("item %s: quantity must be positive", input.ProductID)
		}
		product, ok := in.resolved.Products[input.ProductID]
		if !ok {
			return nil, invalidOp("unknown product %s", input.ProductID)
		}

		quote := pricing.QuoteItem(product.Price, in.resolved.ItemRules[input.ProductID])
		items = append(items, CartItemSnapshot{
			ProductID:     product.ID,
			InstanceID:    uuid.NewString(),
			Name:          product.Name,
			CategoryID:    product.CategoryID,
			Quantity:      input.Quantity,
			BasePrice:     product.Price,
			UnitPrice:     quote.UnitPrice,
			UnitDiscount:  quote.UnitDiscount,
			UnitSurcharge: quote.UnitSurcharge,
			AppliedRules:  quote.Applied,
		})
	}

	e, err := in.newEvent(EventItemsAdded, ItemsAddedPayload{
		Items:      items,
		OrderRules: in.resolved.OrderRules,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actAddPayment(in *actionInput) ([]OrderEvent, error) {
	if err := statusGate(in.snapshot.Status); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(AddPaymentPayload)
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	// Cash-like tenders report what was handed over; change is never
	// negative and absent when the tender doesn't cover the amount.
	change := decimal.Zero
	if p.Tendered.GreaterThan(p.Amount) {
		change = p.Tendered.Sub(p.Amount)
	}

	e, err := in.newEvent(EventPaymentAdded, PaymentAddedPayload{
		Payment: PaymentSnapshot{
			PaymentID: uuid.NewString(),
			Method:    p.Method,
			Amount:    pricing.RoundMoney(p.Amount),
			Tendered:  pricing.RoundMoney(p.Tendered),
			Change:    pricing.RoundMoney(change),
			At:        in.now,
		},
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actCompleteOrder(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	s := in.snapshot
	if s.PaidTotal.LessThan(s.Total) {
		return nil, invalidOp("order not fully paid: %s of %s", s.PaidTotal, s.Total)
	}

	completed, err := in.newEvent(EventOrderCompleted, OrderCompletedPayload{
		Total: s.Total,
		Paid:  s.PaidTotal,
	})
	if err != nil {
		return nil, err
	}
	events := []OrderEvent{completed}

	// Stamp accrual piggybacks on completion when a member is linked:
	// one event per matching activity, each with its own sequence.
	if s.Member != nil {
		for _, activity := range in.resolved.AccrualActivities {
			stamps := activity.Target().CountStamps(stampItems(s))
			if stamps == 0 {
				continue
			}
			accrued, err := in.newEvent(EventStampsAccrued, StampsAccruedPayload{
				ActivityID: activity.ID,
				Stamps:     stamps,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, accrued)
		}
	}
	return events, nil
}

func actVoidOrder(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(VoidOrderPayload)

	e, err := in.newEvent(EventOrderVoided, OrderVoidedPayload{
		VoidType:     p.VoidType,
		LossReason:   p.LossReason,
		LossAmount:   p.LossAmount,
		Note:         p.Note,
		AuthorizedBy: p.AuthorizedBy,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actCompItem(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(CompItemPayload)

	item := in.snapshot.Item(p.InstanceID)
	if item == nil {
		return nil, invalidOp("unknown item instance %s", p.InstanceID)
	}
	if p.Quantity < 0 || p.Quantity > item.Quantity {
		return nil, invalidOp("comp quantity %d out of range", p.Quantity)
	}

	// Quantity 0 or the full line quantity means whole-item comp; the
	// result instance id equals the source. A true partial comp mints a
	// synthetic child id the applier splits the line onto.
	resultID := p.InstanceID
	qty := item.Quantity
	if p.Quantity > 0 && p.Quantity < item.Quantity {
		resultID = uuid.NewString()
		qty = p.Quantity
	}

	original := item.UnitPrice
	if item.Comped {
		original = item.OriginalPrice
	}

	e, err := in.newEvent(EventItemComped, ItemCompedPayload{
		SourceInstanceID: p.InstanceID,
		InstanceID:       resultID,
		Quantity:         qty,
		OriginalPrice:    original,
		AuthorizedBy:     p.AuthorizedBy,
		Reason:           p.Reason,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actRestoreItem(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(RestoreItemPayload)

	// The applier for this event is a placeholder: it advances sequence
	// and timestamp without reinstating the line. See applier.go.
	e, err := in.newEvent(EventItemRestored, ItemRestoredPayload{
		InstanceID: p.InstanceID,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actRedeemStamp(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	s := in.snapshot
	if s.Member == nil {
		return nil, invalidOp("no member linked to order")
	}
	activity := in.resolved.Activity
	if activity == nil {
		return nil, invalidOp("unknown or inactive stamp activity")
	}
	if s.Member.Stamps < activity.Cost {
		return nil, invalidOp("insufficient stamps: have %d, need %d", s.Member.Stamps, activity.Cost)
	}

	reward, err := selectReward(s, activity)
	if err != nil {
		return nil, err
	}

	// A redemption comps exactly one unit. Multi-unit lines split the
	// way a partial comp does, onto a synthetic child instance.
	resultID := reward.InstanceID
	if reward.Quantity > 1 {
		resultID = uuid.NewString()
	}

	e, err := in.newEvent(EventStampRedeemed, StampRedeemedPayload{
		ActivityID:       activity.ID,
		InstanceID:       reward.InstanceID,
		ResultInstanceID: resultID,
		StampsSpent:      activity.Cost,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

// selectReward picks the line a redemption comps, per the activity's
// reward strategy. Ties are broken by input order: first match wins.
func selectReward(s *OrderSnapshot, activity *catalog.StampActivity) (*CartItemSnapshot, error) {
	switch activity.Strategy {
	case catalog.StrategyDesignated:
		for i := range s.Items {
			item := &s.Items[i]
			if item.ProductID == activity.RewardProductID && !item.Comped {
				return item, nil
			}
		}
		return nil, invalidOp("designated reward product %s not on order or already comped", activity.RewardProductID)

	case catalog.StrategyEconomizador, catalog.StrategyGeneroso:
		target := activity.Target()
		var best *CartItemSnapshot
		for i := range s.Items {
			item := &s.Items[i]
			if item.Comped || !target.Matches(stampItem(item)) {
				continue
			}
			if best == nil {
				best = item
				continue
			}
			if activity.Strategy == catalog.StrategyEconomizador && item.UnitPrice.LessThan(best.UnitPrice) {
				best = item
			}
			if activity.Strategy == catalog.StrategyGeneroso && item.UnitPrice.GreaterThan(best.UnitPrice) {
				best = item
			}
		}
		if best == nil {
			return nil, invalidOp("no eligible item for activity %s", activity.ID)
		}
		return best, nil

	default:
		return nil, invalidOp("unknown reward strategy %q", activity.Strategy)
	}
}

func actMoveTable(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(MoveTablePayload)
	if p.TableID == "" {
		return nil, invalidOp("target table required")
	}
	if p.TargetOrderID == in.cmd.OrderID && p.TargetOrderID != "" {
		return nil, invalidOp("cannot move order onto itself")
	}

	e, err := in.newEvent(EventTableMoved, TableMovedPayload{
		FromTableID:   in.snapshot.TableID,
		ToTableID:     p.TableID,
		FromZoneID:    in.snapshot.ZoneID,
		ToZoneID:      p.ZoneID,
		TargetOrderID: p.TargetOrderID,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actMergeOrder(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(MergeOrderPayload)
	if p.TargetOrderID == "" || p.TargetOrderID == in.cmd.OrderID {
		return nil, invalidOp("invalid merge target")
	}

	e, err := in.newEvent(EventOrderMerged, OrderMergedPayload{
		TargetOrderID: p.TargetOrderID,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

func actApplyManualDiscount(in *actionInput) ([]OrderEvent, error) {
	if err := in.requireActive(); err != nil {
		return nil, err
	}
	p := in.cmd.Payload.(ApplyManualDiscountPayload)
	if p.Percent.IsNegative() || p.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	e, err := in.newEvent(EventManualDiscountApplied, ManualDiscountAppliedPayload{
		Percent: p.Percent,
		Amount:  p.Amount,
	})
	if err != nil {
		return nil, err
	}
	return []OrderEvent{e}, nil
}

// =============================================================================
// STAMP MATCHING ADAPTERS
// =============================================================================

func stampItem(item *CartItemSnapshot) pricing.StampItem {
	return pricing.StampItem{
		ProductID:  item.ProductID,
		CategoryID: item.CategoryID,
		Quantity:   item.Quantity,
		Comped:     item.Comped,
	}
}

func stampItems(s *OrderSnapshot) []pricing.StampItem {
	out := make([]pricing.StampItem, 0, len(s.Items))
	for i := range s.Items {
		out = append(out, stampItem(&s.Items[i]))
	}
	return out
}
