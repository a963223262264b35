package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa/pos-edge/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testClock = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func evt(seq uint64, orderID string, p ledger.EventPayload) ledger.OrderEvent {
	return ledger.OrderEvent{
		EventID:  fmt.Sprintf("evt-%d", seq),
		Sequence: seq,
		OrderID:  orderID,
		Type:     payloadType(p),
		At:       testClock.Add(time.Duration(seq) * time.Second),
		Payload:  p,
	}
}

func payloadType(p ledger.EventPayload) ledger.EventType {
	switch p.(type) {
	case ledger.OrderOpenedPayload:
		return ledger.EventOrderOpened
	case ledger.ItemsAddedPayload:
		return ledger.EventItemsAdded
	case ledger.PaymentAddedPayload:
		return ledger.EventPaymentAdded
	case ledger.OrderCompletedPayload:
		return ledger.EventOrderCompleted
	case ledger.OrderVoidedPayload:
		return ledger.EventOrderVoided
	case ledger.ItemCompedPayload:
		return ledger.EventItemComped
	case ledger.ItemRestoredPayload:
		return ledger.EventItemRestored
	case ledger.StampRedeemedPayload:
		return ledger.EventStampRedeemed
	case ledger.StampsAccruedPayload:
		return ledger.EventStampsAccrued
	case ledger.TableMovedPayload:
		return ledger.EventTableMoved
	case ledger.OrderMergedPayload:
		return ledger.EventOrderMerged
	case ledger.ManualDiscountAppliedPayload:
		return ledger.EventManualDiscountApplied
	}
	panic("unknown payload")
}

func line(instanceID, productID string, qty int64, unitPrice string) ledger.CartItemSnapshot {
	price := decimal.RequireFromString(unitPrice)
	return ledger.CartItemSnapshot{
		ProductID:     productID,
		InstanceID:    instanceID,
		Name:          productID,
		Quantity:      qty,
		BasePrice:     price,
		UnitPrice:     price,
		UnitDiscount:  decimal.Zero,
		UnitSurcharge: decimal.Zero,
	}
}

func openedEvent(orderID string) ledger.OrderEvent {
	return evt(1, orderID, ledger.OrderOpenedPayload{
		TableID: "t-5",
		ZoneID:  "terrace",
		TaxRate: decimal.Zero,
	})
}

// =============================================================================
// REPLAY ROUND-TRIP
// =============================================================================

func TestReplay_RebuildsIdenticalSnapshot(t *testing.T) {
	// GIVEN: An event history covering open, items, payment, completion
	// WHEN: Folding it twice from empty
	// THEN: Both snapshots agree field-for-field, including the checksum

	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "espresso", 2, "3.50"),
			line("i-2", "cake", 1, "6.00"),
		}}),
		evt(3, "ord-1", ledger.PaymentAddedPayload{Payment: ledger.PaymentSnapshot{
			PaymentID: "p-1", Method: "cash",
			Amount:   decimal.RequireFromString("13.00"),
			Tendered: decimal.RequireFromString("20.00"),
			Change:   decimal.RequireFromString("7.00"),
		}}),
		evt(4, "ord-1", ledger.OrderCompletedPayload{}),
	}

	first, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)
	second, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	assert.Equal(t, first.StateChecksum, second.StateChecksum)
	assert.Equal(t, ledger.StatusCompleted, first.Status)
	assert.True(t, first.Subtotal.Equal(decimal.RequireFromString("13.00")))
	assert.True(t, first.Total.Equal(first.Subtotal), "no tax, no order rules")
	assert.True(t, first.PaidTotal.Equal(decimal.RequireFromString("13.00")))
	assert.EqualValues(t, 4, first.LastSequence)
	assert.True(t, ledger.VerifyChecksum(first))
}

func TestApply_ChecksumDetectsTampering(t *testing.T) {
	snap, err := ledger.Replay("ord-1", []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "espresso", 1, "3.50"),
		}}),
	})
	require.NoError(t, err)
	require.True(t, ledger.VerifyChecksum(snap))

	snap.Total = snap.Total.Add(decimal.NewFromInt(1))
	assert.False(t, ledger.VerifyChecksum(snap))
}

// =============================================================================
// KNOWN NON-IDEMPOTENCE (pinned behavior)
// =============================================================================

func TestApply_ItemsAddedTwice_DoublesQuantities(t *testing.T) {
	// GIVEN: A snapshot that already absorbed an ItemsAdded event
	// WHEN: The same event is applied again
	// THEN: The line is duplicated. Delivery must stay exactly-once; this
	//       test pins the behavior so a change to it is deliberate.

	added := evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
		line("i-1", "espresso", 1, "3.50"),
	}})

	snap, err := ledger.Replay("ord-1", []ledger.OrderEvent{openedEvent("ord-1"), added})
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)

	require.NoError(t, ledger.Apply(snap, &added))
	assert.Len(t, snap.Items, 2)
	assert.True(t, snap.Subtotal.Equal(decimal.RequireFromString("7.00")))
}

func TestApply_StampsAccruedTwice_DoubleCounts(t *testing.T) {
	// Same exactly-once contract as ItemsAdded: replaying the accrual
	// doubles the member's stamp balance.

	opened := evt(1, "ord-1", ledger.OrderOpenedPayload{
		Member: &ledger.MemberLink{MemberID: "m-1", Stamps: 0},
	})
	accrued := evt(2, "ord-1", ledger.StampsAccruedPayload{ActivityID: "act-1", Stamps: 3})

	snap, err := ledger.Replay("ord-1", []ledger.OrderEvent{opened, accrued})
	require.NoError(t, err)
	require.EqualValues(t, 3, snap.Member.Stamps)

	require.NoError(t, ledger.Apply(snap, &accrued))
	assert.EqualValues(t, 6, snap.Member.Stamps)
}

// =============================================================================
// COMPS
// =============================================================================

func TestApply_WholeItemComp_PreservesOriginalPriceOnRepeat(t *testing.T) {
	// GIVEN: A comped line whose OriginalPrice is 3.50
	// WHEN: A second comp event arrives carrying a different price
	// THEN: OriginalPrice keeps its first value

	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "espresso", 1, "3.50"),
		}}),
		evt(3, "ord-1", ledger.ItemCompedPayload{
			SourceInstanceID: "i-1", InstanceID: "i-1", Quantity: 1,
			OriginalPrice: decimal.RequireFromString("3.50"),
			AuthorizedBy:  "mgr-1",
		}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	item := snap.Item("i-1")
	require.NotNil(t, item)
	assert.True(t, item.Comped)
	assert.True(t, item.OriginalPrice.Equal(decimal.RequireFromString("3.50")))

	again := evt(4, "ord-1", ledger.ItemCompedPayload{
		SourceInstanceID: "i-1", InstanceID: "i-1", Quantity: 1,
		OriginalPrice: decimal.RequireFromString("9.99"),
	})
	require.NoError(t, ledger.Apply(snap, &again))
	assert.True(t, snap.Item("i-1").OriginalPrice.Equal(decimal.RequireFromString("3.50")),
		"repeated comp must not overwrite the original price")
}

func TestApply_PartialComp_SplitsLine(t *testing.T) {
	// GIVEN: A 3-unit line
	// WHEN: One unit is comped onto a synthetic child instance
	// THEN: Source keeps 2 units priced, child carries 1 comped unit,
	//       and the comp moves value from Subtotal to CompTotal

	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "espresso", 3, "3.50"),
		}}),
		evt(3, "ord-1", ledger.ItemCompedPayload{
			SourceInstanceID: "i-1", InstanceID: "i-1-comp", Quantity: 1,
			OriginalPrice: decimal.RequireFromString("3.50"),
			AuthorizedBy:  "mgr-1", Reason: "spilled",
		}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	require.Len(t, snap.Items, 2)
	source := snap.Item("i-1")
	child := snap.Item("i-1-comp")
	require.NotNil(t, source)
	require.NotNil(t, child)

	assert.EqualValues(t, 2, source.Quantity)
	assert.False(t, source.Comped)
	assert.EqualValues(t, 1, child.Quantity)
	assert.True(t, child.Comped)

	assert.True(t, snap.Subtotal.Equal(decimal.RequireFromString("7.00")))
	assert.True(t, snap.CompTotal.Equal(decimal.RequireFromString("3.50")))
	require.Len(t, snap.Comps, 1)
	assert.Equal(t, "mgr-1", snap.Comps[0].AuthorizedBy)
}

// =============================================================================
// PLACEHOLDER EVENT
// =============================================================================

func TestApply_ItemRestored_AdvancesSequenceOnly(t *testing.T) {
	// The restore applier is intentionally inert: it must advance the
	// sequence cursor without touching items or totals.

	base := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "espresso", 1, "3.50"),
		}}),
	}
	snap, err := ledger.Replay("ord-1", base)
	require.NoError(t, err)
	itemsBefore := len(snap.Items)
	totalBefore := snap.Total

	restored := evt(3, "ord-1", ledger.ItemRestoredPayload{InstanceID: "i-1"})
	require.NoError(t, ledger.Apply(snap, &restored))

	assert.EqualValues(t, 3, snap.LastSequence)
	assert.Len(t, snap.Items, itemsBefore)
	assert.True(t, snap.Total.Equal(totalBefore))
}

// =============================================================================
// ORDER-LEVEL ADJUSTMENTS
// =============================================================================

func TestApply_ManualDiscount_RecomputesTotals(t *testing.T) {
	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "cake", 2, "50.00"),
		}}),
		evt(3, "ord-1", ledger.ManualDiscountAppliedPayload{
			Percent: decimal.RequireFromString("10"),
		}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	assert.True(t, snap.Subtotal.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, snap.DiscountTotal.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, snap.Total.Equal(decimal.RequireFromString("90.00")))
}

func TestApply_TaxRate_AppliedToNet(t *testing.T) {
	// GIVEN: A 6% tax rate captured at open
	// WHEN: A 10.00 item is added
	// THEN: TaxTotal 0.60, Total 10.60

	events := []ledger.OrderEvent{
		evt(1, "ord-1", ledger.OrderOpenedPayload{
			TableID: "t-1",
			TaxRate: decimal.RequireFromString("0.06"),
		}),
		evt(2, "ord-1", ledger.ItemsAddedPayload{Items: []ledger.CartItemSnapshot{
			line("i-1", "cake", 1, "10.00"),
		}}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	assert.True(t, snap.TaxTotal.Equal(decimal.RequireFromString("0.60")))
	assert.True(t, snap.Total.Equal(decimal.RequireFromString("10.60")))
}

func TestApply_TableMoved_UpdatesLocation(t *testing.T) {
	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.TableMovedPayload{
			FromTableID: "t-5", ToTableID: "t-9",
			FromZoneID: "terrace", ToZoneID: "indoor",
		}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	assert.Equal(t, "t-9", snap.TableID)
	assert.Equal(t, "indoor", snap.ZoneID)
	assert.Equal(t, ledger.StatusActive, snap.Status)
}

func TestApply_TableMovedOntoOrder_SourceBecomesMoved(t *testing.T) {
	events := []ledger.OrderEvent{
		openedEvent("ord-1"),
		evt(2, "ord-1", ledger.TableMovedPayload{
			FromTableID: "t-5", ToTableID: "t-9",
			TargetOrderID: "ord-2",
		}),
	}
	snap, err := ledger.Replay("ord-1", events)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusMoved, snap.Status)
	assert.True(t, snap.Status.Terminal())
}
