/*
Package pricing computes rule-adjusted prices for cart items and orders.

PURPOSE:
  Pure calculation module. Given a base price and a set of matched price
  rules, it produces the adjusted price plus a record of every rule that
  contributed. The values it returns are baked into ledger events, so the
  engine must be deterministic: same inputs, same outputs, always.

KEY CONCEPTS IN THIS FILE (rules.go):
  - PriceRule: a scoped, time-bounded, optionally-stacking adjustment
  - AppliedRule: the audit record of one rule's monetary effect
  - ManualDiscount: an operator-entered discount applied after all rules

DESIGN PRINCIPLES:
  1. Purity: no clocks, no stores, no globals. Rule sets are parameters.
  2. Precision: decimal.Decimal everywhere; half-up rounding to 2 places
     only at the point of conversion back to a stored value.
  3. Determinism: rules are sorted by descending priority with input
     order as the tie-breaker, so repeated calculation is stable.

SEE ALSO:
  - engine.go: item-level and order-level calculation passes
  - stamps.go: stamp activity matching
*/
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE TYPES
// =============================================================================

type RuleType string

const (
	RuleDiscount  RuleType = "discount"
	RuleSurcharge RuleType = "surcharge"
)

type AdjustmentType string

const (
	AdjustPercentage AdjustmentType = "percentage"
	AdjustFixed      AdjustmentType = "fixed"
)

// RuleScope determines which items (or orders) a rule can match.
type RuleScope string

const (
	ScopeGlobal   RuleScope = "global"
	ScopeProduct  RuleScope = "product"
	ScopeCategory RuleScope = "category"
	ScopeZone     RuleScope = "zone"
)

// PriceRule is a scoped, time-bounded, optionally-stacking adjustment.
// Rules are created and updated by administrative operations; from the
// ledger's perspective they are read-only facts matched at command time.
type PriceRule struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	RuleType   RuleType        `json:"rule_type"`
	Scope      RuleScope       `json:"scope"`
	TargetID   string          `json:"target_id,omitempty"` // product/category/zone id for scoped rules
	Adjustment AdjustmentType  `json:"adjustment"`
	Value      decimal.Decimal `json:"value"` // percentage (10 = 10%) or fixed amount
	Priority   int             `json:"priority"`
	Stackable  bool            `json:"is_stackable"`
	Exclusive  bool            `json:"is_exclusive"`
	ActiveFrom time.Time       `json:"active_from"`
	ActiveTo   time.Time       `json:"active_to"`
}

// ActiveAt reports whether the rule's activity window covers t.
// Zero bounds are open-ended.
func (r PriceRule) ActiveAt(t time.Time) bool {
	if !r.ActiveFrom.IsZero() && t.Before(r.ActiveFrom) {
		return false
	}
	if !r.ActiveTo.IsZero() && t.After(r.ActiveTo) {
		return false
	}
	return true
}

// competes reports whether this rule participates in non-stackable
// competition: only the highest-priority competing rule of each RuleType
// applies; later competing rules of that type are skipped.
func (r PriceRule) competes() bool {
	return !r.Stackable || r.Exclusive
}

// AppliedRule records one rule's effect on a price, for audit and reversal.
type AppliedRule struct {
	RuleID   string          `json:"rule_id"`
	Name     string          `json:"name"`
	RuleType RuleType        `json:"rule_type"`
	Amount   decimal.Decimal `json:"amount"` // absolute monetary effect
}

// ManualDiscount is an operator-entered order-level discount.
// Percent takes precedence over Amount when both are supplied.
type ManualDiscount struct {
	Percent decimal.Decimal `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

func (m ManualDiscount) IsZero() bool {
	return m.Percent.IsZero() && m.Amount.IsZero()
}

// =============================================================================
// HELPERS
// =============================================================================

var hundred = decimal.NewFromInt(100)

// RoundMoney converts an intermediate decimal to a storable monetary value:
// 2 decimal places, half-up. All internal math stays unrounded to avoid
// cumulative drift across stacked rules.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// sortRules orders rules by descending priority, preserving input order
// for equal priorities (ties broken by input order).
func sortRules(rules []PriceRule) []PriceRule {
	sorted := make([]PriceRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}

// selectApplicable walks rules in priority order and resolves non-stackable
// competition: stackable rules always pass through, while only the first
// competing rule of each RuleType survives.
func selectApplicable(rules []PriceRule) []PriceRule {
	won := map[RuleType]bool{}
	var out []PriceRule
	for _, r := range sortRules(rules) {
		if r.competes() {
			if won[r.RuleType] {
				continue
			}
			won[r.RuleType] = true
		}
		out = append(out, r)
	}
	return out
}
