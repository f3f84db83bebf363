package savings

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/giygas/ppu-savings/matrix"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/substitution"
)

// Prescribing is one presentation's practice-level prescribing in a single
// month, net cost discounted
type Prescribing struct {
	BNFCode  string
	Quantity *matrix.Matrix
	NetCost  *matrix.Matrix
}

// PrescribingAtDate is a set's prescribing in one month, read from a single
// data snapshot. PPUBreakdown and MeanPPU group it with that snapshot's
// registry, so a reload in between cannot mismatch rows.
type PrescribingAtDate struct {
	Presentations []Prescribing

	store    *matrixstore.Store
	registry *orgs.Registry
}

// PPUQuantity is the quantity prescribed at one (rounded) PPU
type PPUQuantity struct {
	PPU      float64 `json:"ppu"`
	Quantity float64 `json:"quantity"`
}

// PresentationBreakdown describes how one org paid for one presentation.
// PPUs are in pence.
type PresentationBreakdown struct {
	BNFCode           string        `json:"bnf_code"`
	Name              string        `json:"name"`
	MeanPPU           float64       `json:"mean_ppu"`
	IsGeneric         bool          `json:"is_generic"`
	QuantityAtEachPPU []PPUQuantity `json:"quantity_at_each_ppu"`
}

// GetPrescribing returns all prescribing on the given date of the
// presentations in a substitution set. A code that is not a set id is
// treated as a set of one. An unknown date has no prescribing.
func (e *Engine) GetPrescribing(ctx context.Context, setID, date string) (PrescribingAtDate, error) {
	sets, err := e.sets.Sets(ctx)
	if err != nil {
		return PrescribingAtDate{}, err
	}
	codes := []string{setID}
	if set, ok := sets.Get(setID); ok {
		codes = set.Presentations
	}

	store, registry := e.data.Snapshot()
	result := PrescribingAtDate{Presentations: []Prescribing{}, store: store, registry: registry}
	col, ok := store.DateOffset(date)
	if !ok {
		return result, nil
	}

	discounts, err := e.discounts.DiscountsAtDate(ctx, codes, date)
	if err != nil {
		return PrescribingAtDate{}, err
	}

	for _, p := range store.Query(codes) {
		result.Presentations = append(result.Presentations, Prescribing{
			BNFCode:  p.BNFCode,
			Quantity: p.Quantity.ColumnSlice(col, col+1),
			NetCost:  p.NetCost.ColumnSlice(col, col+1).Scale(discounts[p.BNFCode]),
		})
	}
	return result, nil
}

// PPUBreakdown shows how much of each presentation the org prescribed at
// each price-per-unit. PPUs are rounded to the nearest penny, so 10 units at
// 9.9p and 5 units at 10.1p are reported as 15 units at 10p. Presentations
// are ordered by mean PPU, then name.
func (e *Engine) PPUBreakdown(prescribing PrescribingAtDate, orgType orgs.OrgType, orgID string) ([]PresentationBreakdown, error) {
	presentations := []PresentationBreakdown{}
	if prescribing.registry == nil {
		return presentations, nil
	}
	groupBy, err := prescribing.registry.RowGrouper(orgType)
	if err != nil {
		return nil, err
	}

	codes := make([]string, len(prescribing.Presentations))
	for i, p := range prescribing.Presentations {
		codes[i] = p.BNFCode
	}
	names := prescribing.store.NamesForCodes(codes)

	for _, p := range prescribing.Presentations {
		quantities := column(groupBy.GetGroup(p.Quantity, orgID))
		netCosts := column(groupBy.GetGroup(p.NetCost, orgID))

		quantityAt := make(map[float64]float64)
		var totalQuantity, totalNetCost float64
		for i := range quantities {
			totalQuantity += quantities[i]
			totalNetCost += netCosts[i]
			// 0/0 and x/0 give NaN and infinities, neither of which is a price
			ppu := math.RoundToEven(netCosts[i] / quantities[i])
			if math.IsNaN(ppu) || math.IsInf(ppu, 0) {
				continue
			}
			quantityAt[ppu] += quantities[i]
		}
		if len(quantityAt) == 0 {
			continue
		}

		ppuValues := make([]float64, 0, len(quantityAt))
		for ppu := range quantityAt {
			ppuValues = append(ppuValues, ppu)
		}
		sort.Float64s(ppuValues)

		breakdown := PresentationBreakdown{
			BNFCode:   p.BNFCode,
			Name:      names[p.BNFCode],
			MeanPPU:   totalNetCost / totalQuantity,
			IsGeneric: substitution.IsGeneric(p.BNFCode),
		}
		if breakdown.Name == "" {
			breakdown.Name = fmt.Sprintf("%s (unknown)", p.BNFCode)
		}
		for _, ppu := range ppuValues {
			breakdown.QuantityAtEachPPU = append(breakdown.QuantityAtEachPPU, PPUQuantity{PPU: ppu, Quantity: quantityAt[ppu]})
		}
		presentations = append(presentations, breakdown)
	}

	sort.SliceStable(presentations, func(i, j int) bool {
		if presentations[i].MeanPPU != presentations[j].MeanPPU {
			return presentations[i].MeanPPU < presentations[j].MeanPPU
		}
		return presentations[i].Name < presentations[j].Name
	})
	return presentations, nil
}

// MeanPPU returns the org's mean price-per-unit (pence) across all the
// prescribing, and false when it prescribed none
func (e *Engine) MeanPPU(prescribing PrescribingAtDate, orgType orgs.OrgType, orgID string) (float64, bool, error) {
	if prescribing.registry == nil {
		return 0, false, nil
	}
	groupBy, err := prescribing.registry.RowGrouper(orgType)
	if err != nil {
		return 0, false, err
	}

	var totalQuantity, totalNetCost float64
	for _, p := range prescribing.Presentations {
		totalQuantity += groupBy.SumOneGroup(p.Quantity, orgID)[0]
		totalNetCost += groupBy.SumOneGroup(p.NetCost, orgID)[0]
	}
	if totalQuantity > 0 {
		return totalNetCost / totalQuantity, true, nil
	}
	return 0, false, nil
}

func column(m *matrix.Matrix) []float64 {
	rows, _ := m.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out
}
