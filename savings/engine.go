// Package savings estimates how much each organisation could save by paying
// the price-per-unit achieved by the best performing practices.
//
// For each substitution set we find, per month, the price-per-unit (PPU) of
// every standard practice, take the target centile of those PPUs, and count
// as a possible saving whatever an organisation spent above that target.
// Net costs are in pence throughout; results are reported in pounds.
package savings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/giygas/ppu-savings/cache"
	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/matrix"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/substitution"
)

var (
	ErrDateNotFound     = errors.New("date not found")
	ErrOrgNotFound      = errors.New("organisation not found")
	ErrNoMinimumSaving  = errors.New("no minimum saving configured for org type")
	ErrInvalidCentile   = errors.New("target centile must be between 0 and 100")
	ErrInvalidPeerGroup = errors.New("invalid peer group")
)

// Memo names and versions. Bump a version whenever the logic behind it
// changes such that the same inputs no longer produce the same outputs.
const (
	quantitiesMemoName = "quantities_and_net_costs_at_date"
	quantitiesMemoVer  = 2
	totalsMemoName     = "total_savings_for_org_type"
	totalsMemoVer      = 1
)

// Config controls how the target PPU is chosen and which savings count
type Config struct {
	// TargetCentile is the PPU centile, over the peer group, that every
	// organisation is compared against
	TargetCentile float64
	// PeerGroup is "standard_practice" so that only ordinary GP practices
	// set the target
	PeerGroup orgs.OrgType
	// MinSavings are per org type thresholds, in pence, below which a saving
	// is ignored when totalling
	MinSavings map[orgs.OrgType]float64
}

// DefaultConfig returns the standard configuration
func DefaultConfig() Config {
	return Config{
		TargetCentile: 10,
		PeerGroup:     orgs.OrgTypeStandardPractice,
		MinSavings: map[orgs.OrgType]float64{
			orgs.OrgTypePractice: 10 * 100,
			orgs.OrgTypeCCG:      200 * 100,
			// Picked somewhat arbitrarily, based on the CCG limit
			orgs.OrgTypeAllStandardPractices: 50000 * 100,
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.TargetCentile < 0 || c.TargetCentile > 100 || math.IsNaN(c.TargetCentile) {
		return fmt.Errorf("%w: %v", ErrInvalidCentile, c.TargetCentile)
	}
	if _, err := orgs.ParseOrgType(string(c.PeerGroup)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeerGroup, err)
	}
	for orgType, threshold := range c.MinSavings {
		if threshold < 0 {
			return fmt.Errorf("minimum saving for %s must not be negative", orgType)
		}
	}
	return nil
}

// SetsProvider serves the current substitution sets
type SetsProvider interface {
	Sets(ctx context.Context) (*substitution.Collection, error)
}

// DiscountResolver returns the fraction of net cost actually paid per code.
// CacheKey must change whenever the rates do.
type DiscountResolver interface {
	DiscountsAtDate(ctx context.Context, bnfCodes []string, date string) (map[string]float64, error)
	CacheKey() []byte
}

// Engine answers savings queries against the current data snapshot
type Engine struct {
	cfg       Config
	data      interfaces.DataStore
	sets      SetsProvider
	discounts DiscountResolver
	memo      *cache.Memo
}

// NewEngine creates an engine
func NewEngine(cfg Config, data interfaces.DataStore, sets SetsProvider, discounts DiscountResolver, memo *cache.Memo) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, data: data, sets: sets, discounts: discounts, memo: memo}, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Saving is a possible saving for one organisation within one substitution
// set. Money is in pounds.
type Saving struct {
	Date            string  `json:"date"`
	OrgID           string  `json:"org_id"`
	PricePerUnit    float64 `json:"price_per_unit"`
	PossibleSavings float64 `json:"possible_savings"`
	Quantity        float64 `json:"quantity"`
	LowestDecile    float64 `json:"lowest_decile"`
	Presentation    string  `json:"presentation"`
	FormulationSwap *string `json:"formulation_swap"`
	Name            string  `json:"name"`
}

// QuantitiesAndNetCosts holds single-column practice matrices for one set
// and date, with discounts already applied to net costs
type QuantitiesAndNetCosts struct {
	Quantities *matrix.Matrix
	NetCosts   *matrix.Matrix
}

// TargetPPU groups practices by the peer group and returns, per column, the
// PPU at the target centile. Groups with no quantity are ignored.
func TargetPPU(quantities, netCosts *matrix.Matrix, peerGroup *matrix.RowGrouper, targetCentile float64) []float64 {
	ppu := peerGroup.Sum(netCosts).Divide(peerGroup.Sum(quantities))
	return matrix.NaNPercentile(ppu, targetCentile)
}

// Savings returns, per practice, how much less would have been spent at the
// target PPU. Practices already at or below target save nothing, as does
// every practice when the target is undefined.
func Savings(quantities, netCosts *matrix.Matrix, target []float64) *matrix.Matrix {
	rows, cols := quantities.Dims()
	out := matrix.Zeros(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			saving := netCosts.At(i, j) - quantities.At(i, j)*target[j]
			if saving > 0 {
				out.Set(i, j, saving)
			}
		}
	}
	return out
}

// QuantitiesAndNetCostsAtDate sums quantities and discounted net costs over
// the set's presentations for a single month. Results are memoized by the
// content of the store and the set.
func (e *Engine) QuantitiesAndNetCostsAtDate(ctx context.Context, store *matrixstore.Store, set *substitution.SubstitutionSet, date string) (QuantitiesAndNetCosts, error) {
	col, ok := store.DateOffset(date)
	if !ok {
		return QuantitiesAndNetCosts{}, fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}

	parts := []any{store, set.CacheKey, date, e.discounts}
	return cache.Memoize(ctx, e.memo, quantitiesMemoName, quantitiesMemoVer, parts, func(ctx context.Context) (QuantitiesAndNetCosts, error) {
		discounts, err := e.discounts.DiscountsAtDate(ctx, set.Presentations, date)
		if err != nil {
			return QuantitiesAndNetCosts{}, err
		}

		var quantitySum, netCostSum matrix.Sum
		for _, p := range store.Query(set.Presentations) {
			quantitySum.Add(p.Quantity.ColumnSlice(col, col+1))
			netCostSum.Add(p.NetCost.ColumnSlice(col, col+1).Scale(discounts[p.BNFCode]))
		}

		result := QuantitiesAndNetCosts{Quantities: quantitySum.Value(), NetCosts: netCostSum.Value()}
		if result.Quantities == nil {
			result.Quantities = matrix.Zeros(store.RowCount(), 1)
			result.NetCosts = matrix.Zeros(store.RowCount(), 1)
		}
		return result, nil
	})
}

// TotalSavingsForOrgType returns a single-column matrix of total savings for
// every org in groupBy, counting only per-set savings of at least minSaving.
// Every input is explicit so the result can be memoized as a whole.
func (e *Engine) TotalSavingsForOrgType(ctx context.Context, store *matrixstore.Store, sets *substitution.Collection, date string, groupBy *matrix.RowGrouper, minSaving float64, peerGroup *matrix.RowGrouper, targetCentile float64) (*matrix.Matrix, error) {
	if _, ok := store.DateOffset(date); !ok {
		return nil, fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}

	parts := []any{store, sets, date, groupBy, minSaving, peerGroup, targetCentile, e.discounts}
	return cache.Memoize(ctx, e.memo, totalsMemoName, totalsMemoVer, parts, func(ctx context.Context) (*matrix.Matrix, error) {
		totals := matrix.Zeros(len(groupBy.IDs()), 1)
		aboveThreshold := func(v float64) bool { return v >= minSaving }

		for _, set := range sets.Values() {
			data, err := e.QuantitiesAndNetCostsAtDate(ctx, store, set, date)
			if err != nil {
				return nil, err
			}
			target := TargetPPU(data.Quantities, data.NetCosts, peerGroup, targetCentile)
			practiceSavings := Savings(data.Quantities, data.NetCosts, target)
			totals.AddWhere(groupBy.Sum(practiceSavings), aboveThreshold)
		}
		return totals, nil
	})
}

// GetSavingsForOrgs returns the savings available to each of orgIDs within
// one substitution set, largest first. Savings below minSaving (pence) are
// dropped. An unknown set id has no savings.
func (e *Engine) GetSavingsForOrgs(ctx context.Context, setID, date string, orgType orgs.OrgType, orgIDs []string, minSaving float64) ([]Saving, error) {
	sets, err := e.sets.Sets(ctx)
	if err != nil {
		return nil, err
	}
	set, ok := sets.Get(setID)
	if !ok {
		return []Saving{}, nil
	}

	store, registry := e.data.Snapshot()
	results, err := e.savingsForSet(ctx, store, registry, set, date, orgType, orgIDs, minSaving)
	if err != nil {
		return nil, err
	}
	sortSavings(results)
	return results, nil
}

// GetAllSavingsForOrgs returns savings across every substitution set, using
// the org type's minimum saving, largest first
func (e *Engine) GetAllSavingsForOrgs(ctx context.Context, date string, orgType orgs.OrgType, orgIDs []string) ([]Saving, error) {
	minSaving, err := e.minSaving(orgType)
	if err != nil {
		return nil, err
	}
	sets, err := e.sets.Sets(ctx)
	if err != nil {
		return nil, err
	}

	store, registry := e.data.Snapshot()
	results := []Saving{}
	for _, set := range sets.Values() {
		savings, err := e.savingsForSet(ctx, store, registry, set, date, orgType, orgIDs, minSaving)
		if err != nil {
			return nil, err
		}
		results = append(results, savings...)
	}
	sortSavings(results)
	return results, nil
}

// GetTotalSavingsForOrg returns the total possible saving for one org in
// pounds, from the memoized totals for its whole org type
func (e *Engine) GetTotalSavingsForOrg(ctx context.Context, date string, orgType orgs.OrgType, orgID string) (float64, error) {
	minSaving, err := e.minSaving(orgType)
	if err != nil {
		return 0, err
	}
	sets, err := e.sets.Sets(ctx)
	if err != nil {
		return 0, err
	}

	store, registry := e.data.Snapshot()
	groupBy, err := registry.RowGrouper(orgType)
	if err != nil {
		return 0, err
	}
	offset, ok := groupBy.Offset(orgID)
	if !ok {
		return 0, fmt.Errorf("%w: %s %q", ErrOrgNotFound, orgType, orgID)
	}
	if _, ok := store.DateOffset(date); !ok {
		return 0, fmt.Errorf("%w: %s", ErrDateNotFound, date)
	}
	// Nothing to substitute means nothing to save
	if sets.Len() == 0 {
		return 0, nil
	}

	peerGroup, err := registry.RowGrouper(e.cfg.PeerGroup)
	if err != nil {
		return 0, err
	}
	totals, err := e.TotalSavingsForOrgType(ctx, store, sets, date, groupBy, minSaving, peerGroup, e.cfg.TargetCentile)
	if err != nil {
		return 0, err
	}
	return totals.At(offset, 0) / 100, nil
}

func (e *Engine) savingsForSet(ctx context.Context, store *matrixstore.Store, registry *orgs.Registry, set *substitution.SubstitutionSet, date string, orgType orgs.OrgType, orgIDs []string, minSaving float64) ([]Saving, error) {
	groupBy, err := registry.RowGrouper(orgType)
	if err != nil {
		return nil, err
	}
	peerGroup, err := registry.RowGrouper(e.cfg.PeerGroup)
	if err != nil {
		return nil, err
	}

	data, err := e.QuantitiesAndNetCostsAtDate(ctx, store, set, date)
	if err != nil {
		return nil, err
	}

	quantities := groupBy.SumGroups(data.Quantities, orgIDs)
	if !quantities.Any() {
		return nil, nil
	}
	ppu := groupBy.SumGroups(data.NetCosts, orgIDs).Divide(quantities)

	target := TargetPPU(data.Quantities, data.NetCosts, peerGroup, e.cfg.TargetCentile)
	if math.IsNaN(target[0]) {
		return nil, nil
	}
	savings := groupBy.SumGroups(Savings(data.Quantities, data.NetCosts, target), orgIDs)

	var results []Saving
	for offset, orgID := range orgIDs {
		saving := savings.At(offset, 0)
		quantity := quantities.At(offset, 0)
		if saving < minSaving || quantity == 0 {
			continue
		}
		results = append(results, Saving{
			Date:            date,
			OrgID:           orgID,
			PricePerUnit:    ppu.At(offset, 0) / 100,
			PossibleSavings: saving / 100,
			Quantity:        quantity,
			LowestDecile:    target[0] / 100,
			Presentation:    set.ID,
			FormulationSwap: set.FormulationSwaps,
			Name:            set.Name,
		})
	}
	return results, nil
}

func (e *Engine) minSaving(orgType orgs.OrgType) (float64, error) {
	threshold, ok := e.cfg.MinSavings[orgType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoMinimumSaving, orgType)
	}
	return threshold, nil
}

func sortSavings(results []Saving) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PossibleSavings > results[j].PossibleSavings
	})
}
