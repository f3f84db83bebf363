package matrix

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// GroupMember assigns a matrix row to a group
type GroupMember struct {
	Row     int
	GroupID string
}

// RowGrouper sums matrix rows by group (e.g. practices by CCG). A row may
// belong to any number of groups, including none.
type RowGrouper struct {
	ids      []string
	offsets  map[string]int
	rows     [][]int
	cacheKey []byte
}

// NewRowGrouper builds a grouper. Group ids are ordered lexically and rows
// within a group keep ascending row order.
func NewRowGrouper(definition []GroupMember) *RowGrouper {
	byGroup := make(map[string][]int)
	for _, member := range definition {
		byGroup[member.GroupID] = append(byGroup[member.GroupID], member.Row)
	}

	ids := make([]string, 0, len(byGroup))
	for id := range byGroup {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := &RowGrouper{
		ids:     ids,
		offsets: make(map[string]int, len(ids)),
		rows:    make([][]int, len(ids)),
	}

	hash := sha256.New()
	var buf [8]byte
	for offset, id := range ids {
		rows := byGroup[id]
		sort.Ints(rows)
		g.offsets[id] = offset
		g.rows[offset] = rows

		binary.BigEndian.PutUint64(buf[:], uint64(len(id)))
		hash.Write(buf[:])
		hash.Write([]byte(id))
		binary.BigEndian.PutUint64(buf[:], uint64(len(rows)))
		hash.Write(buf[:])
		for _, row := range rows {
			binary.BigEndian.PutUint64(buf[:], uint64(row))
			hash.Write(buf[:])
		}
	}
	g.cacheKey = hash.Sum(nil)

	return g
}

// IDs returns the group ids in result-row order
func (g *RowGrouper) IDs() []string {
	return append([]string(nil), g.ids...)
}

// Offset returns the result row for a group id
func (g *RowGrouper) Offset(id string) (int, bool) {
	offset, ok := g.offsets[id]
	return offset, ok
}

// Offsets returns a copy of the id to result-row mapping
func (g *RowGrouper) Offsets() map[string]int {
	out := make(map[string]int, len(g.offsets))
	for id, offset := range g.offsets {
		out[id] = offset
	}
	return out
}

// CacheKey identifies the grouping definition
func (g *RowGrouper) CacheKey() []byte {
	return g.cacheKey
}

// Sum returns one row per group, in IDs order
func (g *RowGrouper) Sum(m *Matrix) *Matrix {
	_, cols := m.Dims()
	out := Zeros(len(g.ids), cols)
	for offset := range g.ids {
		g.sumInto(out.Row(offset), m, offset)
	}
	return out
}

// SumGroups returns one row per requested id, in the requested order. Ids not
// known to the grouper produce a zero row.
func (g *RowGrouper) SumGroups(m *Matrix, ids []string) *Matrix {
	_, cols := m.Dims()
	out := Zeros(len(ids), cols)
	for i, id := range ids {
		if offset, ok := g.offsets[id]; ok {
			g.sumInto(out.Row(i), m, offset)
		}
	}
	return out
}

// SumOneGroup returns the column totals for a single group
func (g *RowGrouper) SumOneGroup(m *Matrix, id string) []float64 {
	_, cols := m.Dims()
	out := make([]float64, cols)
	if offset, ok := g.offsets[id]; ok {
		g.sumInto(out, m, offset)
	}
	return out
}

// GetGroup returns the member rows of a group in their original order
func (g *RowGrouper) GetGroup(m *Matrix, id string) *Matrix {
	_, cols := m.Dims()
	offset, ok := g.offsets[id]
	if !ok {
		return Zeros(0, cols)
	}
	rows := g.rows[offset]
	out := Zeros(len(rows), cols)
	for i, row := range rows {
		copy(out.Row(i), m.Row(row))
	}
	return out
}

func (g *RowGrouper) sumInto(dst []float64, m *Matrix, offset int) {
	for _, row := range g.rows[offset] {
		for j, v := range m.Row(row) {
			dst[j] += v
		}
	}
}
