package substitution

import (
	"context"
	"fmt"

	"github.com/giygas/ppu-savings/cache"
	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/metrics"
)

// SwapSource runs the swap query
type SwapSource interface {
	Swaps(ctx context.Context) ([]RawSwapFact, error)
}

// PrescribedCodesFunc returns the codes with any prescribing data
type PrescribedCodesFunc func() map[string]struct{}

// Provider serves the current substitution sets, rebuilding them only after
// a dm+d import changes the freshness marker or Invalidate is called (e.g.
// after the prescribing data is reloaded)
type Provider struct {
	swaps      SwapSource
	freshness  interfaces.FreshnessSource
	prescribed PrescribedCodesFunc

	sets  *cache.Freshness[*Collection]
	index *cache.Freshness[map[string]*SubstitutionSet]
}

// NewProvider creates a provider with empty caches
func NewProvider(swaps SwapSource, freshness interfaces.FreshnessSource, prescribed PrescribedCodesFunc) *Provider {
	return &Provider{
		swaps:      swaps,
		freshness:  freshness,
		prescribed: prescribed,
		sets:       cache.NewFreshness[*Collection]("substitution_sets"),
		index:      cache.NewFreshness[map[string]*SubstitutionSet]("substitution_sets_by_presentation"),
	}
}

// Sets returns the current collection
func (p *Provider) Sets(ctx context.Context) (*Collection, error) {
	return p.sets.GetOrCompute(ctx, p.freshness.FreshnessMarker, p.build)
}

// SetsByPresentation maps every substitutable presentation to its set
func (p *Provider) SetsByPresentation(ctx context.Context) (map[string]*SubstitutionSet, error) {
	return p.index.GetOrCompute(ctx, p.freshness.FreshnessMarker, func(ctx context.Context) (map[string]*SubstitutionSet, error) {
		sets, err := p.Sets(ctx)
		if err != nil {
			return nil, err
		}
		return sets.ByPresentation(), nil
	})
}

// Invalidate forces a rebuild on next access
func (p *Provider) Invalidate() {
	p.sets.Invalidate()
	p.index.Invalidate()
}

func (p *Provider) build(ctx context.Context) (*Collection, error) {
	swaps, err := p.swaps.Swaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swaps: %w", err)
	}

	collection := Build(swaps, p.prescribed())
	metrics.SubstitutionSets.Set(float64(collection.Len()))
	logging.Info("Built substitution sets", "swaps", len(swaps), "sets", collection.Len())
	return collection, nil
}
