// Package pricing holds a small per-token-class pricing table. Pricing
// policy itself is an external concern; this table exists only so the
// reference phase helper binaries can populate TokenUsageEvent.CostUSD with
// a realistic number.
package pricing

import (
	"sync"

	"github.com/adwhq/adw-orchestrator/pkg/logger"
)

var log = logger.New("pricing")

// Rates are USD per million tokens for one model class.
type Rates struct {
	InputPerMillion         float64
	OutputPerMillion        float64
	CacheReadPerMillion     float64
	CacheCreationPerMillion float64
}

// Table maps a token class (conventionally a model name) to its Rates.
// Zero value is usable: every lookup against an empty Table returns the
// zero-cost Rates rather than panicking.
type Table struct {
	mu     sync.RWMutex
	rates  map[string]Rates
	warned map[string]bool
}

// NewTable constructs an empty Table; use WithDefaults() for the built-in
// reference rates.
func NewTable() *Table {
	return &Table{rates: map[string]Rates{}, warned: map[string]bool{}}
}

// WithDefaults returns a Table seeded with the reference rates used by the
// example phase scripts.
func WithDefaults() *Table {
	t := NewTable()
	t.Set("default", Rates{
		InputPerMillion:         3.00,
		OutputPerMillion:        15.00,
		CacheReadPerMillion:     0.30,
		CacheCreationPerMillion: 3.75,
	})
	return t
}

// Set registers or overrides the rates for class.
func (t *Table) Set(class string, r Rates) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[class] = r
}

// Rates returns the rates for class, falling back to "default" if class is
// unknown, and to the zero Rates if even "default" is unset. A class that
// has neither its own entry nor a "default" to fall back on is logged once.
func (t *Table) Rates(class string) Rates {
	t.mu.RLock()
	r, ok := t.rates[class]
	if !ok {
		r, ok = t.rates["default"]
	}
	warned := t.warned[class]
	t.mu.RUnlock()

	if !ok && !warned {
		t.mu.Lock()
		if t.warned == nil {
			t.warned = map[string]bool{}
		}
		t.warned[class] = true
		t.mu.Unlock()
		log.Printf("no pricing entry for token class %q, treating as zero-cost", class)
	}
	return r
}

// Cost computes the USD cost of a usage record for token class class.
func (t *Table) Cost(class string, inputTokens, outputTokens, cacheReadTokens, cacheCreationTokens int64) float64 {
	r := t.Rates(class)
	return float64(inputTokens)*r.InputPerMillion/1_000_000 +
		float64(outputTokens)*r.OutputPerMillion/1_000_000 +
		float64(cacheReadTokens)*r.CacheReadPerMillion/1_000_000 +
		float64(cacheCreationTokens)*r.CacheCreationPerMillion/1_000_000
}
