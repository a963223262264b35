/*
totals.go - Shared monetary total recalculation

PURPOSE:
  The single routine every applier calls after mutating a snapshot.
  Totals are always derived from the item and payment lists, never
  incrementally patched, so an event replayed from history produces
  byte-identical totals.

DERIVATION:
  subtotal    = sum of unit_price * qty over uncomped lines
  comp_total  = sum of original_price * qty over comped lines
  order pass  = pricing.QuoteOrder(subtotal, order rules, manual discount)
  tax         = net * tax_rate, rounded half-up to 2 places
  total       = net + tax
  paid        = sum of payment amounts

SEE ALSO:
  - pricing/engine.go: the order-level pass
  - applier.go: the only caller
*/
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/pricing"
)

// RecalculateTotals rederives every monetary total on the snapshot.
// All intermediate math is unrounded decimal; stored values are rounded
// half-up to 2 places.
func RecalculateTotals(s *OrderSnapshot) {
	var (
		subtotal      = decimal.Zero
		itemDiscount  = decimal.Zero
		itemSurcharge = decimal.Zero
		compTotal     = decimal.Zero
		paid          = decimal.Zero
	)

	for _, item := range s.Items {
		q := decimal.NewFromInt(item.Quantity)
		if item.Comped {
			compTotal = compTotal.Add(item.OriginalPrice.Mul(q))
			continue
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(q))
		itemDiscount = itemDiscount.Add(item.UnitDiscount.Mul(q))
		itemSurcharge = itemSurcharge.Add(item.UnitSurcharge.Mul(q))
	}

	orderQuote := pricing.QuoteOrder(subtotal, s.OrderRules, pricing.ManualDiscount{
		Percent: s.ManualDiscountPercent,
		Amount:  s.ManualDiscountAmount,
	})

	for _, p := range s.Payments {
		paid = paid.Add(p.Amount)
	}

	tax := pricing.RoundMoney(orderQuote.Net.Mul(s.TaxRate))

	s.Subtotal = pricing.RoundMoney(subtotal)
	s.DiscountTotal = pricing.RoundMoney(itemDiscount.Add(orderQuote.Discount))
	s.SurchargeTotal = pricing.RoundMoney(itemSurcharge.Add(orderQuote.Surcharge))
	s.CompTotal = pricing.RoundMoney(compTotal)
	s.TaxTotal = tax
	s.Total = orderQuote.Net.Add(tax)
	s.PaidTotal = pricing.RoundMoney(paid)
}
