// Package discount works out what fraction of the list price was actually
// paid for a presentation in a given month, after the standard Drug Tariff
// discounts and any price concessions.
package discount

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Drug Tariff categories that get the generic and appliance discounts
var (
	GenericCategories   = []int{1, 11}
	ApplianceCategories = []int{5, 6, 7, 8, 10}
)

// Percentages are the discount rates, in percent of the list price
type Percentages struct {
	Generic   float64
	Appliance float64
	Brand     float64
}

// DefaultPercentages are the rates used when none are configured
var DefaultPercentages = Percentages{Generic: 20, Appliance: 9.2, Brand: 5}

// TariffFact is what the Drug Tariff says about a presentation in a month
type TariffFact struct {
	CategoryID    int
	HasConcession bool
}

// Source looks up tariff facts. Codes with no tariff price in the month
// (e.g. AMPP-level codes) are simply absent from the result.
type Source interface {
	TariffFacts(ctx context.Context, bnfCodes []string, date string) (map[string]TariffFact, error)
}

// Resolver turns tariff facts into discount fractions
type Resolver struct {
	source     Source
	byCategory map[int]float64
	fallback   float64
	cacheKey   []byte
}

// NewResolver builds a resolver with the given rates
func NewResolver(source Source, pct Percentages) *Resolver {
	r := &Resolver{
		source:     source,
		byCategory: make(map[int]float64),
		fallback:   fraction(pct.Brand),
	}
	for _, category := range GenericCategories {
		r.byCategory[category] = fraction(pct.Generic)
	}
	for _, category := range ApplianceCategories {
		r.byCategory[category] = fraction(pct.Appliance)
	}
	for _, f := range []float64{fraction(pct.Generic), fraction(pct.Appliance), fraction(pct.Brand)} {
		r.cacheKey = binary.BigEndian.AppendUint64(r.cacheKey, math.Float64bits(f))
	}
	return r
}

// CacheKey identifies the rates, so results computed with different
// percentages are memoized apart
func (r *Resolver) CacheKey() []byte {
	return r.cacheKey
}

func fraction(pct float64) float64 {
	return (100 - pct) / 100.0
}

// DefaultFraction is the fraction applied to codes without a tariff category
func (r *Resolver) DefaultFraction() float64 {
	return r.fallback
}

// DiscountsAtDate returns, for every code, the fraction of net cost that was
// actually paid on the given date. A concession means no discount at all.
func (r *Resolver) DiscountsAtDate(ctx context.Context, bnfCodes []string, date string) (map[string]float64, error) {
	facts, err := r.source.TariffFacts(ctx, bnfCodes, date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tariff facts for %s: %w", date, err)
	}

	discounts := make(map[string]float64, len(bnfCodes))
	for _, code := range bnfCodes {
		fact, ok := facts[code]
		switch {
		case ok && fact.HasConcession:
			discounts[code] = 1.0
		case ok:
			if f, known := r.byCategory[fact.CategoryID]; known {
				discounts[code] = f
			} else {
				discounts[code] = r.fallback
			}
		default:
			discounts[code] = r.fallback
		}
	}
	return discounts, nil
}
