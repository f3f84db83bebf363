// Package matrixstore holds prescribing data as one practice-by-month matrix
// per presentation, for quantity and for net cost (in pence).
package matrixstore

import (
	"errors"
	"sort"

	"github.com/giygas/ppu-savings/matrix"
)

var (
	ErrUnknownDate     = errors.New("unknown date")
	ErrUnknownPractice = errors.New("unknown practice")
)

// DateFormat is the layout of the ISO dates used as column labels
const DateFormat = "2006-01-02"

// Presentation is the prescribing of one BNF code. Rows follow the store's
// practice offsets and columns its dates.
type Presentation struct {
	BNFCode  string
	Quantity *matrix.Matrix
	NetCost  *matrix.Matrix
}

// Store is an immutable snapshot of prescribing data
type Store struct {
	dates           []string
	dateOffsets     map[string]int
	practiceOffsets map[string]int
	presentations   map[string]Presentation
	names           map[string]string
	cacheKey        []byte
}

// Dates returns the column dates in ascending order
func (s *Store) Dates() []string {
	return append([]string(nil), s.dates...)
}

// LatestDate returns the most recent date, or "" for an empty store
func (s *Store) LatestDate() string {
	if len(s.dates) == 0 {
		return ""
	}
	return s.dates[len(s.dates)-1]
}

// DateOffset returns the column for an ISO date
func (s *Store) DateOffset(date string) (int, bool) {
	offset, ok := s.dateOffsets[date]
	return offset, ok
}

// PracticeOffsets returns a copy of the practice code to row mapping
func (s *Store) PracticeOffsets() map[string]int {
	out := make(map[string]int, len(s.practiceOffsets))
	for code, offset := range s.practiceOffsets {
		out[code] = offset
	}
	return out
}

// RowCount is the number of practice rows in every matrix
func (s *Store) RowCount() int {
	return len(s.practiceOffsets)
}

// PrescribedCodes returns every BNF code with prescribing data
func (s *Store) PrescribedCodes() map[string]struct{} {
	out := make(map[string]struct{}, len(s.presentations))
	for code := range s.presentations {
		out[code] = struct{}{}
	}
	return out
}

// Query returns the prescribing for the given codes, in ascending code
// order. Codes without prescribing are omitted.
func (s *Store) Query(codes []string) []Presentation {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	var out []Presentation
	for i, code := range sorted {
		if i > 0 && code == sorted[i-1] {
			continue
		}
		if p, ok := s.presentations[code]; ok {
			out = append(out, p)
		}
	}
	return out
}

// NamesForCodes returns presentation names for the codes that have one
func (s *Store) NamesForCodes(codes []string) map[string]string {
	out := make(map[string]string, len(codes))
	for _, code := range codes {
		if name, ok := s.names[code]; ok {
			out[code] = name
		}
	}
	return out
}

// CacheKey is a digest of the store's full content, so memoized results
// computed from an older snapshot are never reused
func (s *Store) CacheKey() []byte {
	return s.cacheKey
}
