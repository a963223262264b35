package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertMoney compares decimals by value, not representation.
func assertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(expected).Equal(actual),
		"expected %s, got %s %v", expected, actual, msgAndArgs)
}

func pctDiscount(id string, value string, stackable bool, priority int) pricing.PriceRule {
	return pricing.PriceRule{
		ID:         id,
		Name:       id,
		RuleType:   pricing.RuleDiscount,
		Scope:      pricing.ScopeProduct,
		Adjustment: pricing.AdjustPercentage,
		Value:      money(value),
		Stackable:  stackable,
		Priority:   priority,
	}
}

func fixedDiscount(id string, value string, stackable bool, priority int) pricing.PriceRule {
	r := pctDiscount(id, value, stackable, priority)
	r.Adjustment = pricing.AdjustFixed
	return r
}

func pctSurcharge(id string, value string, priority int) pricing.PriceRule {
	return pricing.PriceRule{
		ID:         id,
		Name:       id,
		RuleType:   pricing.RuleSurcharge,
		Scope:      pricing.ScopeProduct,
		Adjustment: pricing.AdjustPercentage,
		Value:      money(value),
		Stackable:  true,
		Priority:   priority,
	}
}

// =============================================================================
// ITEM PASS
// =============================================================================

func TestQuoteItem_StackablePercentageDiscounts_Compound(t *testing.T) {
	// GIVEN: Base price 100.00 and two stackable 10% discounts
	// WHEN: Quoting the item
	// THEN: Discounts compound (100 -> 90 -> 81), total discount 19.00

	quote := pricing.QuoteItem(money("100"), []pricing.PriceRule{
		pctDiscount("d1", "10", true, 0),
		pctDiscount("d2", "10", true, 0),
	})

	assertMoney(t, "81.00", quote.UnitPrice)
	assertMoney(t, "19.00", quote.UnitDiscount)
	assert.Len(t, quote.Applied, 2)
}

func TestQuoteItem_NonStackableRules_HighestPriorityWins(t *testing.T) {
	// GIVEN: Two non-stackable discounts, 20% at priority 5 and 10% at priority 10
	// WHEN: Quoting the item
	// THEN: Only the priority-10 rule applies

	quote := pricing.QuoteItem(money("100"), []pricing.PriceRule{
		pctDiscount("loser", "20", false, 5),
		pctDiscount("winner", "10", false, 10),
	})

	assertMoney(t, "90.00", quote.UnitPrice)
	assert.Len(t, quote.Applied, 1)
	assert.Equal(t, "winner", quote.Applied[0].RuleID)
}

func TestQuoteItem_StackableSurvivesNonStackableCompetition(t *testing.T) {
	// GIVEN: One non-stackable 10% discount and one stackable 5% discount
	// WHEN: Quoting the item
	// THEN: Both apply; competition only eliminates other competing rules

	quote := pricing.QuoteItem(money("100"), []pricing.PriceRule{
		pctDiscount("exclusive", "10", false, 10),
		pctDiscount("stacker", "5", true, 0),
	})

	// 100 -> 90 -> 85.50
	assertMoney(t, "85.50", quote.UnitPrice)
	assert.Len(t, quote.Applied, 2)
}

func TestQuoteItem_SurchargePercentage_ComputedOnBase(t *testing.T) {
	// GIVEN: Base 100.00 with a 10% surcharge and a 10% discount
	// WHEN: Quoting the item
	// THEN: Surcharge is 10.00 (pct of base), discount is 11.00 (pct of 110)

	quote := pricing.QuoteItem(money("100"), []pricing.PriceRule{
		pctSurcharge("svc", "10", 0),
		pctDiscount("promo", "10", true, 0),
	})

	assertMoney(t, "10.00", quote.UnitSurcharge)
	assertMoney(t, "11.00", quote.UnitDiscount)
	assertMoney(t, "99.00", quote.UnitPrice)
}

func TestQuoteItem_FixedDiscount_FlooredAtZero(t *testing.T) {
	// GIVEN: Base 5.00 and a fixed 10.00 discount
	// WHEN: Quoting the item
	// THEN: Price floors at zero; recorded discount is what was taken, 5.00

	quote := pricing.QuoteItem(money("5"), []pricing.PriceRule{
		fixedDiscount("big", "10", true, 0),
	})

	assertMoney(t, "0.00", quote.UnitPrice)
	assertMoney(t, "5.00", quote.UnitDiscount)
}

func TestQuoteItem_NoRules_ReturnsBase(t *testing.T) {
	quote := pricing.QuoteItem(money("12.35"), nil)

	assertMoney(t, "12.35", quote.UnitPrice)
	assertMoney(t, "0.00", quote.UnitDiscount)
	assertMoney(t, "0.00", quote.UnitSurcharge)
	assert.Empty(t, quote.Applied)
}

func TestQuoteItem_Deterministic_SameInputsSameOutputs(t *testing.T) {
	rules := []pricing.PriceRule{
		pctDiscount("a", "7.5", true, 3),
		pctDiscount("b", "12", false, 3),
		pctSurcharge("c", "2", 1),
	}

	first := pricing.QuoteItem(money("49.90"), rules)
	second := pricing.QuoteItem(money("49.90"), rules)

	assert.True(t, first.UnitPrice.Equal(second.UnitPrice))
	assert.Equal(t, first.Applied, second.Applied)
}

// =============================================================================
// ORDER PASS
// =============================================================================

func TestQuoteOrder_DiscountsBeforeSurcharges(t *testing.T) {
	// GIVEN: Subtotal 100.00, a 10% order discount, a 5% order surcharge
	// WHEN: Quoting the order
	// THEN: Surcharge is computed on the discounted subtotal (4.50), net 94.50

	ord := pricing.QuoteOrder(money("100"), []pricing.PriceRule{
		{ID: "d", RuleType: pricing.RuleDiscount, Scope: pricing.ScopeGlobal,
			Adjustment: pricing.AdjustPercentage, Value: money("10"), Stackable: true},
		{ID: "s", RuleType: pricing.RuleSurcharge, Scope: pricing.ScopeGlobal,
			Adjustment: pricing.AdjustPercentage, Value: money("5"), Stackable: true},
	}, pricing.ManualDiscount{})

	assertMoney(t, "10.00", ord.Discount)
	assertMoney(t, "4.50", ord.Surcharge)
	assertMoney(t, "94.50", ord.Net)
}

func TestQuoteOrder_ManualDiscount_PercentWinsOverFixed(t *testing.T) {
	// GIVEN: Subtotal 100.00 and a manual discount with both 10% and 50.00 set
	// WHEN: Quoting the order
	// THEN: The percentage is applied; the fixed amount is ignored

	ord := pricing.QuoteOrder(money("100"), nil, pricing.ManualDiscount{
		Percent: money("10"),
		Amount:  money("50"),
	})

	assertMoney(t, "90.00", ord.Net)
	assertMoney(t, "10.00", ord.Discount)
}

func TestQuoteOrder_ManualFixedDiscount_FlooredAtZero(t *testing.T) {
	// GIVEN: Subtotal 30.00 and a manual fixed discount of 50.00
	// WHEN: Quoting the order
	// THEN: Net floors at zero; the recorded discount is 30.00

	ord := pricing.QuoteOrder(money("30"), nil, pricing.ManualDiscount{
		Amount: money("50"),
	})

	assertMoney(t, "0.00", ord.Net)
	assertMoney(t, "30.00", ord.Discount)
}

func TestQuoteOrder_ManualAppliesAfterRules(t *testing.T) {
	// GIVEN: Subtotal 200.00, a 25% order rule, then a manual 10%
	// WHEN: Quoting the order
	// THEN: 200 -> 150 (rule) -> 135 (manual)

	ord := pricing.QuoteOrder(money("200"), []pricing.PriceRule{
		{ID: "d", RuleType: pricing.RuleDiscount, Scope: pricing.ScopeGlobal,
			Adjustment: pricing.AdjustPercentage, Value: money("25"), Stackable: true},
	}, pricing.ManualDiscount{Percent: money("10")})

	assertMoney(t, "135.00", ord.Net)
	assertMoney(t, "65.00", ord.Discount)
}
