package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ModelPrice holds USD rates per one million tokens.
type ModelPrice struct {
	Input       decimal.Decimal
	Output      decimal.Decimal
	CachedInput decimal.Decimal
}

type pricingEntry struct {
	key   string // lowercase model identifier
	price ModelPrice
}

// PricingTable maps model identifiers to rates. It is built once at
// process start and immutable afterwards; lookups are lock-free.
type PricingTable struct {
	entries    []pricingEntry
	defaultKey string
}

// NewPricingTable creates an empty pricing table.
func NewPricingTable() *PricingTable {
	return &PricingTable{}
}

// Add registers pricing for a model. Re-adding a key appends a new
// entry; the earlier declaration still wins prefix ties.
func (t *PricingTable) Add(model string, price ModelPrice) *PricingTable {
	t.entries = append(t.entries, pricingEntry{
		key:   strings.ToLower(model),
		price: price,
	})
	return t
}

// SetDefault marks a previously added model as the fallback for
// identifiers with no exact or prefix match.
func (t *PricingTable) SetDefault(model string) *PricingTable {
	t.defaultKey = strings.ToLower(model)
	return t
}

// PriceFor resolves pricing for a model identifier. Lookup order:
// case-insensitive exact match, then case-insensitive prefix match in
// declaration order, then the default entry. Newly released model
// identifiers therefore resolve to the default's pricing instead of
// being rejected. Fails with ErrUnknownModel only when nothing matches
// and no default is configured.
func (t *PricingTable) PriceFor(model string) (ModelPrice, error) {
	key := strings.ToLower(model)

	for _, e := range t.entries {
		if e.key == key {
			return e.price, nil
		}
	}

	// First declared prefix wins. Callers must not assume this choice
	// is stable across table edits.
	for _, e := range t.entries {
		if strings.HasPrefix(key, e.key) {
			return e.price, nil
		}
	}

	if t.defaultKey != "" {
		for _, e := range t.entries {
			if e.key == t.defaultKey {
				return e.price, nil
			}
		}
	}

	return ModelPrice{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
}

func price(input, output, cachedInput float64) ModelPrice {
	return ModelPrice{
		Input:       decimal.NewFromFloat(input),
		Output:      decimal.NewFromFloat(output),
		CachedInput: decimal.NewFromFloat(cachedInput),
	}
}

// DefaultPricingTable returns the built-in table. Rates are USD per 1M
// tokens. The default entry matches the default request model.
func DefaultPricingTable() *PricingTable {
	t := NewPricingTable()

	// Anthropic
	t.Add("claude-3-5-sonnet", price(3.00, 15.00, 0.30))
	t.Add("claude-3-5-haiku", price(0.80, 4.00, 0.08))
	t.Add("claude-3-7-sonnet", price(3.00, 15.00, 0.30))
	t.Add("claude-sonnet-4", price(3.00, 15.00, 0.30))
	t.Add("claude-opus-4", price(15.00, 75.00, 1.50))

	// OpenAI
	t.Add("gpt-4o-mini", price(0.15, 0.60, 0.075))
	t.Add("gpt-4o", price(2.50, 10.00, 1.25))
	t.Add("gpt-4.1-mini", price(0.40, 1.60, 0.10))
	t.Add("gpt-4.1", price(2.00, 8.00, 0.50))
	t.Add("gpt-5", price(1.25, 10.00, 0.125))
	t.Add("o1", price(15.00, 60.00, 7.50))
	t.Add("o3", price(2.00, 8.00, 0.50))

	t.SetDefault("claude-3-5-sonnet")

	return t
}
