package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesa/pos-edge/pricing"
)

func TestStampTarget_Matches_ByProductOrCategory(t *testing.T) {
	target := pricing.StampTarget{
		ProductIDs:  []string{"espresso"},
		CategoryIDs: []string{"pastry"},
	}

	assert.True(t, target.Matches(pricing.StampItem{ProductID: "espresso"}))
	assert.True(t, target.Matches(pricing.StampItem{ProductID: "croissant", CategoryID: "pastry"}))
	assert.False(t, target.Matches(pricing.StampItem{ProductID: "tea", CategoryID: "drinks"}))
}

func TestStampTarget_CompedItems_NeverCount(t *testing.T) {
	// GIVEN: A matching item that has been comped
	// WHEN: Matching and counting
	// THEN: The comped item earns nothing

	target := pricing.StampTarget{ProductIDs: []string{"espresso"}}

	assert.False(t, target.Matches(pricing.StampItem{ProductID: "espresso", Comped: true}))
	assert.EqualValues(t, 0, target.CountStamps([]pricing.StampItem{
		{ProductID: "espresso", Quantity: 3, Comped: true},
	}))
}

func TestStampTarget_CountStamps_SumsQuantities(t *testing.T) {
	target := pricing.StampTarget{CategoryIDs: []string{"coffee"}}

	total := target.CountStamps([]pricing.StampItem{
		{ProductID: "espresso", CategoryID: "coffee", Quantity: 2},
		{ProductID: "latte", CategoryID: "coffee", Quantity: 1},
		{ProductID: "cake", CategoryID: "pastry", Quantity: 5},
	})

	assert.EqualValues(t, 3, total)
}
