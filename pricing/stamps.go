/*
stamps.go - Stamp activity matching

PURPOSE:
  Decides which cart items count toward a marketing stamp activity.
  Consumed by the accrual path (order completion) and the redemption
  eligibility checks.

MATCHING RULE:
  An item counts only if it is NOT comped and its product id or category
  id matches a configured target. Quantities of all matching items sum
  to the stamps earned.

SEE ALSO:
  - engine.go: price calculation (separate concern, same purity rules)
*/
package pricing

// StampTarget is the matching configuration of one stamp activity.
type StampTarget struct {
	ProductIDs  []string
	CategoryIDs []string
}

// StampItem is the minimal item view needed for matching. The ledger
// adapts its cart item snapshots into this shape.
type StampItem struct {
	ProductID  string
	CategoryID string
	Quantity   int64
	Comped     bool
}

// Matches reports whether a single item counts toward the activity.
func (t StampTarget) Matches(item StampItem) bool {
	if item.Comped {
		return false
	}
	for _, id := range t.ProductIDs {
		if id == item.ProductID {
			return true
		}
	}
	for _, id := range t.CategoryIDs {
		if id == item.CategoryID {
			return true
		}
	}
	return false
}

// CountStamps sums the quantities of all matching items.
func (t StampTarget) CountStamps(items []StampItem) int64 {
	var total int64
	for _, item := range items {
		if t.Matches(item) {
			total += item.Quantity
		}
	}
	return total
}
