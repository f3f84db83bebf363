package substitution

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GenericMarker is the dm+d product segment identifying a generic presentation
const GenericMarker = "AA"

// SwapColumns are the columns a swap query must return, in RawSwapFact order
var SwapColumns = []string{
	"code",
	"name",
	"formulation",
	"alternative_code",
	"alternative_name",
	"alternative_formulation",
}

// ErrColumnMismatch reports a query result that does not contain exactly one
// column for a required name
var ErrColumnMismatch = errors.New("column mismatch")

// RawSwapFact is one row of the swap query: a pairwise substitution
// hypothesis between two presentations
type RawSwapFact struct {
	Code                   string
	Name                   string
	Formulation            string
	AlternativeCode        string
	AlternativeName        string
	AlternativeFormulation string
}

// IsGeneric reports whether a BNF code carries the generic product marker
func IsGeneric(bnfCode string) bool {
	return len(bnfCode) >= 11 && bnfCode[9:11] == GenericMarker
}

// RepresentativeCode picks the code whose name represents a group: generic
// codes sort before branded ones, ties broken lexically
func RepresentativeCode(codes []string) string {
	sorted := append([]string(nil), codes...)
	sort.Slice(sorted, func(i, j int) bool {
		gi, gj := IsGeneric(sorted[i]), IsGeneric(sorted[j])
		if gi != gj {
			return gi
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0]
}

// Build turns swap facts into substitution sets, ignoring any code without
// prescribing data. Groups left empty by that filter are dropped.
func Build(swaps []RawSwapFact, prescribed map[string]struct{}) *Collection {
	pairs := make([]Pair[string], 0, len(swaps))
	formulations := make(map[string]string)
	names := make(map[string]string)

	for _, swap := range swaps {
		pairs = append(pairs, Pair[string]{A: swap.Code, B: swap.AlternativeCode})
		formulations[swap.Code] = swap.Formulation
		formulations[swap.AlternativeCode] = swap.AlternativeFormulation
		names[swap.Code] = swap.Name
		names[swap.AlternativeCode] = swap.AlternativeName
	}

	var sets []*SubstitutionSet
	for _, group := range GroupsFromPairs(pairs) {
		var codes []string
		for _, code := range group {
			if _, ok := prescribed[code]; ok {
				codes = append(codes, code)
			}
		}
		if len(codes) == 0 {
			continue
		}

		primary := RepresentativeCode(codes)
		sets = append(sets, NewSubstitutionSet(primary, codes, names[primary], formulationSwaps(codes, formulations)))
	}

	return NewCollection(sets)
}

func formulationSwaps(codes []string, formulations map[string]string) *string {
	distinct := make(map[string]struct{})
	for _, code := range codes {
		if f := formulations[code]; f != "" {
			distinct[f] = struct{}{}
		}
	}
	if len(distinct) <= 1 {
		return nil
	}

	labels := make([]string, 0, len(distinct))
	for f := range distinct {
		labels = append(labels, f)
	}
	sort.Strings(labels)
	description := strings.Join(labels, " / ")
	return &description
}

// ColumnIndices finds each wanted column (case-insensitively) among the
// result columns. Every wanted name must match exactly one column.
func ColumnIndices(columns []string, wanted []string) ([]int, error) {
	all := make(map[string][]int, len(columns))
	for i, name := range columns {
		key := strings.ToLower(name)
		all[key] = append(all[key], i)
	}

	indices := make([]int, 0, len(wanted))
	for _, name := range wanted {
		matches := all[strings.ToLower(name)]
		if len(matches) != 1 {
			return nil, fmt.Errorf("%w: %q matched %d columns", ErrColumnMismatch, name, len(matches))
		}
		indices = append(indices, matches[0])
	}
	return indices, nil
}

// SwapFromRow maps a raw result row onto a RawSwapFact using indices from
// ColumnIndices(columns, SwapColumns)
func SwapFromRow(row []string, indices []int) RawSwapFact {
	return RawSwapFact{
		Code:                   row[indices[0]],
		Name:                   row[indices[1]],
		Formulation:            row[indices[2]],
		AlternativeCode:        row[indices[3]],
		AlternativeName:        row[indices[4]],
		AlternativeFormulation: row[indices[5]],
	}
}
