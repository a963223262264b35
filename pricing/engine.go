/*
engine.go - Item-level and order-level price calculation

PURPOSE:
  Implements the two calculation passes invoked from command execution:

  Item pass (QuoteItem), fixed order of operations:
    1. Add surcharges (percentage of the BASE price, or fixed amounts)
    2. Apply percentage discounts to the surcharged price (compounding)
    3. Subtract fixed discounts
    Floored at zero after the discount phase.

  Order pass (QuoteOrder), applied to the order subtotal:
    1. Order-scoped discount rules (same stacking semantics)
    2. Order-scoped surcharge rules
    3. Manual discount (percent takes precedence over fixed)
    Each step floored at zero.

STACKING:
  Stackable rules of the same type accumulate. Non-stackable rules
  compete: the highest-priority non-stackable rule of a type wins and
  the rest of that type are skipped, while stackable rules continue to
  accumulate independently. See selectApplicable in rules.go.

EXAMPLE:
  Two stackable 10% discounts on 100.00 yield 19.00 of discount
  (100 -> 90 -> 81), not 20.00, because percentage discounts compound.

SEE ALSO:
  - rules.go: rule types, sorting, competition
*/
package pricing

import "github.com/shopspring/decimal"

// =============================================================================
// ITEM PASS
// =============================================================================

// ItemQuote is the result of pricing one unit of a cart item.
type ItemQuote struct {
	UnitPrice     decimal.Decimal // final rule-adjusted unit price
	UnitDiscount  decimal.Decimal // total discount per unit
	UnitSurcharge decimal.Decimal // total surcharge per unit
	Applied       []AppliedRule
}

// QuoteItem computes the rule-adjusted unit price for a base price.
// Only rules already matched to the item should be passed in; scope
// matching is the caller's concern.
func QuoteItem(base decimal.Decimal, rules []PriceRule) ItemQuote {
	applicable := selectApplicable(rules)

	quote := ItemQuote{
		UnitDiscount:  decimal.Zero,
		UnitSurcharge: decimal.Zero,
	}

	// 1. Surcharges: percentages are computed on the base price.
	for _, r := range applicable {
		if r.RuleType != RuleSurcharge {
			continue
		}
		var amt decimal.Decimal
		switch r.Adjustment {
		case AdjustPercentage:
			amt = base.Mul(r.Value).Div(hundred)
		default:
			amt = r.Value
		}
		quote.UnitSurcharge = quote.UnitSurcharge.Add(amt)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(amt),
		})
	}

	price := base.Add(quote.UnitSurcharge)
	surcharged := price

	// 2. Percentage discounts compound against the running price.
	for _, r := range applicable {
		if r.RuleType != RuleDiscount || r.Adjustment != AdjustPercentage {
			continue
		}
		amt := price.Mul(r.Value).Div(hundred)
		price = price.Sub(amt)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(amt),
		})
	}

	// 3. Fixed discounts.
	for _, r := range applicable {
		if r.RuleType != RuleDiscount || r.Adjustment != AdjustFixed {
			continue
		}
		price = price.Sub(r.Value)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(r.Value),
		})
	}

	if price.IsNegative() {
		price = decimal.Zero
	}

	quote.UnitDiscount = surcharged.Sub(price)
	quote.UnitPrice = RoundMoney(price)
	quote.UnitDiscount = RoundMoney(quote.UnitDiscount)
	quote.UnitSurcharge = RoundMoney(quote.UnitSurcharge)
	return quote
}

// =============================================================================
// ORDER PASS
// =============================================================================

// OrderQuote is the result of the order-level adjustment pass.
type OrderQuote struct {
	Net       decimal.Decimal // subtotal after all order-level adjustments
	Discount  decimal.Decimal // rule + manual discounts
	Surcharge decimal.Decimal
	Applied   []AppliedRule
}

// QuoteOrder applies order-scoped rules and the manual discount to the
// order subtotal. Discount rules run first, then surcharge rules, then
// the manual discount; every step is floored at zero.
func QuoteOrder(subtotal decimal.Decimal, rules []PriceRule, manual ManualDiscount) OrderQuote {
	applicable := selectApplicable(rules)

	quote := OrderQuote{
		Discount:  decimal.Zero,
		Surcharge: decimal.Zero,
	}
	running := subtotal

	// Discount rules: percentages compound, fixed amounts subtract.
	for _, r := range applicable {
		if r.RuleType != RuleDiscount || r.Adjustment != AdjustPercentage {
			continue
		}
		amt := running.Mul(r.Value).Div(hundred)
		running = running.Sub(amt)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(amt),
		})
	}
	for _, r := range applicable {
		if r.RuleType != RuleDiscount || r.Adjustment != AdjustFixed {
			continue
		}
		running = running.Sub(r.Value)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(r.Value),
		})
	}
	running = floorZero(running)
	quote.Discount = subtotal.Sub(running)

	// Surcharge rules: percentages are computed on the discounted subtotal.
	surchargeBase := running
	for _, r := range applicable {
		if r.RuleType != RuleSurcharge {
			continue
		}
		var amt decimal.Decimal
		switch r.Adjustment {
		case AdjustPercentage:
			amt = surchargeBase.Mul(r.Value).Div(hundred)
		default:
			amt = r.Value
		}
		running = running.Add(amt)
		quote.Surcharge = quote.Surcharge.Add(amt)
		quote.Applied = append(quote.Applied, AppliedRule{
			RuleID: r.ID, Name: r.Name, RuleType: r.RuleType, Amount: RoundMoney(amt),
		})
	}
	running = floorZero(running)

	// Manual discount: percent wins over fixed when both are supplied.
	if !manual.IsZero() {
		var amt decimal.Decimal
		if manual.Percent.IsPositive() {
			amt = running.Mul(manual.Percent).Div(hundred)
		} else {
			amt = manual.Amount
		}
		before := running
		running = floorZero(running.Sub(amt))
		quote.Discount = quote.Discount.Add(before.Sub(running))
	}

	quote.Net = RoundMoney(running)
	quote.Discount = RoundMoney(quote.Discount)
	quote.Surcharge = RoundMoney(quote.Surcharge)
	return quote
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
