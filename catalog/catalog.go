/*
Package catalog is the product/rule/activity collaborator consumed by
the order ledger.

PURPOSE:
  Command execution needs product metadata (category, price), the
  active price rules, and stamp activity definitions. All of it is
  resolved BEFORE the ledger's write transaction begins, so no catalog
  lookup ever holds the write lock. From the ledger's perspective this
  data is read-only; administrative create/update flows live behind the
  same interface but never run inside command execution.

IMPLEMENTATIONS:
  - Memory (this file): in-memory, for tests and seeded demo setups
  - store/sqlite: durable, table-backed

SEE ALSO:
  - ledger/manager.go: pre-transaction resolution
  - pricing/rules.go: the rule model
*/
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// TYPES
// =============================================================================

// Product is the catalog metadata for one sellable item.
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CategoryID string          `json:"category_id,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Price      decimal.Decimal `json:"price"`
}

// RewardStrategy selects which eligible item a stamp redemption comps.
type RewardStrategy string

const (
	// StrategyDesignated comps a specific product id.
	StrategyDesignated RewardStrategy = "designated"
	// StrategyEconomizador comps the cheapest eligible uncomped item.
	StrategyEconomizador RewardStrategy = "economizador"
	// StrategyGeneroso comps the most expensive eligible uncomped item.
	StrategyGeneroso RewardStrategy = "generoso"
)

// StampActivity is one marketing stamp campaign.
type StampActivity struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	TargetProducts   []string       `json:"target_products,omitempty"`
	TargetCategories []string       `json:"target_categories,omitempty"`
	Cost             int64          `json:"cost"` // stamps spent per redemption
	Strategy         RewardStrategy `json:"strategy"`
	RewardProductID  string         `json:"reward_product_id,omitempty"` // designated strategy only
	ActiveFrom       time.Time      `json:"active_from"`
	ActiveTo         time.Time      `json:"active_to"`
}

// ActiveAt reports whether the activity window covers t. Zero bounds
// are open-ended.
func (a StampActivity) ActiveAt(t time.Time) bool {
	if !a.ActiveFrom.IsZero() && t.Before(a.ActiveFrom) {
		return false
	}
	if !a.ActiveTo.IsZero() && t.After(a.ActiveTo) {
		return false
	}
	return true
}

// Target adapts the activity into the pricing package's matching shape.
func (a StampActivity) Target() pricing.StampTarget {
	return pricing.StampTarget{
		ProductIDs:  a.TargetProducts,
		CategoryIDs: a.TargetCategories,
	}
}

// =============================================================================
// CATALOG INTERFACE
// =============================================================================

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrActivityNotFound = errors.New("stamp activity not found")
)

// Catalog is the read contract consumed by command execution.
type Catalog interface {
	// Product returns metadata for one product.
	Product(ctx context.Context, id string) (*Product, error)

	// ActiveRules returns every price rule whose window covers at.
	// Scope matching is the caller's concern.
	ActiveRules(ctx context.Context, at time.Time) ([]pricing.PriceRule, error)

	// Activity returns one stamp activity.
	Activity(ctx context.Context, id string) (*StampActivity, error)

	// ActiveActivities returns every stamp activity whose window covers
	// at. Consumed by the accrual path on order completion.
	ActiveActivities(ctx context.Context, at time.Time) ([]StampActivity, error)
}

// Admin is the write contract used by administrative endpoints.
type Admin interface {
	SaveProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context) ([]Product, error)
	SaveRule(ctx context.Context, r pricing.PriceRule) error
	ListRules(ctx context.Context) ([]pricing.PriceRule, error)
	SaveActivity(ctx context.Context, a StampActivity) error
	ListActivities(ctx context.Context) ([]StampActivity, error)
}

// =============================================================================
// MEMORY CATALOG - for tests and seeded setups
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	products   map[string]Product
	rules      map[string]pricing.PriceRule
	activities map[string]StampActivity
}

func NewMemory() *Memory {
	return &Memory{
		products:   make(map[string]Product),
		rules:      make(map[string]pricing.PriceRule),
		activities: make(map[string]StampActivity),
	}
}

func (m *Memory) Product(_ context.Context, id string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (m *Memory) ActiveRules(_ context.Context, at time.Time) ([]pricing.PriceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pricing.PriceRule
	for _, r := range m.rules {
		if r.ActiveAt(at) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Activity(_ context.Context, id string) (*StampActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, ErrActivityNotFound
	}
	return &a, nil
}

func (m *Memory) ActiveActivities(_ context.Context, at time.Time) ([]StampActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StampActivity
	for _, a := range m.activities {
		if a.ActiveAt(at) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) SaveProduct(_ context.Context, p Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *Memory) ListProducts(_ context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) SaveRule(_ context.Context, r pricing.PriceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *Memory) ListRules(_ context.Context) ([]pricing.PriceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pricing.PriceRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) SaveActivity(_ context.Context, a StampActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = a
	return nil
}

func (m *Memory) ListActivities(_ context.Context) ([]StampActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StampActivity, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, a)
	}
	return out, nil
}
