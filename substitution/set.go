// Package substitution defines "substitution sets": groups of presentations
// which can, in our opinion, be reasonably substituted for one another.
//
// Sets are built from pairs of substitutable presentations found in dm+d.
// Sometimes a substitution involves a change of formulation (e.g. tablets to
// capsules) which we want to highlight, so each pair also carries the
// formulation of both presentations.
package substitution

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// SubstitutionSet is a group of interchangeable presentations. Values are
// immutable once built.
type SubstitutionSet struct {
	// ID is the lexically smallest generic BNF code in the set, but callers
	// should treat it as an opaque identifier
	ID string `json:"id"`
	// Presentations holds the BNF codes in the set, sorted and unique
	Presentations []string `json:"presentations"`
	// Name is the name of the representative presentation
	Name string `json:"name"`
	// FormulationSwaps is e.g. "Cap / Tab" when the set spans formulations,
	// nil otherwise
	FormulationSwaps *string `json:"formulation_swaps"`
	// CacheKey depends only on Presentations
	CacheKey []byte `json:"-"`
}

// NewSubstitutionSet builds a set, sorting and de-duplicating presentations
func NewSubstitutionSet(id string, presentations []string, name string, formulationSwaps *string) *SubstitutionSet {
	sorted := uniqueSorted(presentations)
	return &SubstitutionSet{
		ID:               id,
		Presentations:    sorted,
		Name:             name,
		FormulationSwaps: formulationSwaps,
		CacheKey:         presentationsDigest(sorted),
	}
}

// Contains reports whether code is one of the set's presentations
func (s *SubstitutionSet) Contains(code string) bool {
	idx := sort.SearchStrings(s.Presentations, code)
	return idx < len(s.Presentations) && s.Presentations[idx] == code
}

// FormulationSwapsOrEmpty is a display helper
func (s *SubstitutionSet) FormulationSwapsOrEmpty() string {
	if s.FormulationSwaps == nil {
		return ""
	}
	return *s.FormulationSwaps
}

func presentationsDigest(presentations []string) []byte {
	hash := sha256.New()
	var buf [8]byte
	for _, code := range presentations {
		binary.BigEndian.PutUint64(buf[:], uint64(len(code)))
		hash.Write(buf[:])
		hash.Write([]byte(code))
	}
	return hash.Sum(nil)
}

func uniqueSorted(codes []string) []string {
	out := append([]string(nil), codes...)
	sort.Strings(out)
	n := 0
	for i, code := range out {
		if i > 0 && code == out[n-1] {
			continue
		}
		out[n] = code
		n++
	}
	return out[:n]
}

// Collection maps set ids to sets, preserving insertion order, and carries
// a cache key derived from the members' cache keys
type Collection struct {
	ids      []string
	sets     map[string]*SubstitutionSet
	cacheKey []byte
}

// NewCollection builds a collection. Later sets with a duplicate id replace
// earlier ones but keep the original position.
func NewCollection(sets []*SubstitutionSet) *Collection {
	c := &Collection{sets: make(map[string]*SubstitutionSet, len(sets))}
	for _, set := range sets {
		if _, exists := c.sets[set.ID]; !exists {
			c.ids = append(c.ids, set.ID)
		}
		c.sets[set.ID] = set
	}

	hash := sha256.New()
	for _, id := range c.ids {
		hash.Write(c.sets[id].CacheKey)
	}
	c.cacheKey = hash.Sum(nil)
	return c
}

// Get returns the set with the given id
func (c *Collection) Get(id string) (*SubstitutionSet, bool) {
	set, ok := c.sets[id]
	return set, ok
}

// IDs returns set ids in insertion order
func (c *Collection) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Values returns the sets in insertion order
func (c *Collection) Values() []*SubstitutionSet {
	out := make([]*SubstitutionSet, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.sets[id]
	}
	return out
}

// Len returns the number of sets
func (c *Collection) Len() int {
	return len(c.ids)
}

// CacheKey changes iff the member sets or any member's presentations change
func (c *Collection) CacheKey() []byte {
	return c.cacheKey
}

// ByPresentation maps every presentation to the set containing it
func (c *Collection) ByPresentation() map[string]*SubstitutionSet {
	index := make(map[string]*SubstitutionSet)
	for _, id := range c.ids {
		set := c.sets[id]
		for _, code := range set.Presentations {
			index[code] = set
		}
	}
	return index
}
