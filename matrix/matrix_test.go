package matrix

import (
	"math"
	"reflect"
	"testing"
)

func basicRows() *Matrix {
	return FromRows([][]float64{
		{1, 2, 3, 4},
		{2, 3, 4, 5},
		{3, 4, 5, 6},
		{4, 5, 6, 7},
	})
}

func evenOddDefinition() []GroupMember {
	return []GroupMember{{0, "even"}, {1, "odd"}, {2, "even"}, {3, "odd"}}
}

func TestRowGrouperSum(t *testing.T) {
	grouper := NewRowGrouper(evenOddDefinition())
	got := grouper.Sum(basicRows()).Rows()

	expected := [][]float64{
		{4, 6, 8, 10},
		{6, 8, 10, 12},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if ids := grouper.IDs(); !reflect.DeepEqual(ids, []string{"even", "odd"}) {
		t.Errorf("Expected ids [even odd], got %v", ids)
	}
	if offsets := grouper.Offsets(); !reflect.DeepEqual(offsets, map[string]int{"even": 0, "odd": 1}) {
		t.Errorf("Unexpected offsets %v", offsets)
	}
}

func TestRowGrouperSumGroups(t *testing.T) {
	grouper := NewRowGrouper(evenOddDefinition())
	got := grouper.SumGroups(basicRows(), []string{"odd", "missing", "even"}).Rows()

	expected := [][]float64{
		{6, 8, 10, 12},
		{0, 0, 0, 0},
		{4, 6, 8, 10},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestRowGrouperSumOneGroupAndGetGroup(t *testing.T) {
	grouper := NewRowGrouper(evenOddDefinition())

	if got := grouper.SumOneGroup(basicRows(), "even"); !reflect.DeepEqual(got, []float64{4, 6, 8, 10}) {
		t.Errorf("Unexpected group sum %v", got)
	}

	got := grouper.GetGroup(basicRows(), "even").Rows()
	expected := [][]float64{{1, 2, 3, 4}, {3, 4, 5, 6}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestRowGrouperEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		definition []GroupMember
		expected   [][]float64
	}{
		{
			name:       "empty definition",
			definition: nil,
			expected:   [][]float64{},
		},
		{
			name:       "rows in multiple groups",
			definition: []GroupMember{{0, "all"}, {1, "all"}, {0, "first"}},
			expected:   [][]float64{{3, 5, 7, 9}, {1, 2, 3, 4}},
		},
		{
			name:       "rows outside any group",
			definition: []GroupMember{{3, "last"}},
			expected:   [][]float64{{4, 5, 6, 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRowGrouper(tt.definition).Sum(basicRows()).Rows()
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRowGrouperCacheKey(t *testing.T) {
	a := NewRowGrouper(evenOddDefinition())
	b := NewRowGrouper([]GroupMember{{3, "odd"}, {2, "even"}, {1, "odd"}, {0, "even"}})
	c := NewRowGrouper([]GroupMember{{0, "even"}, {1, "odd"}})

	if !reflect.DeepEqual(a.CacheKey(), b.CacheKey()) {
		t.Error("Equivalent definitions should share a cache key")
	}
	if reflect.DeepEqual(a.CacheKey(), c.CacheKey()) {
		t.Error("Different definitions should not share a cache key")
	}
}

func TestNaNPercentile(t *testing.T) {
	nan := math.NaN()
	m := FromRows([][]float64{
		{1, nan, nan},
		{2, 10, nan},
		{3, nan, nan},
		{4, 20, nan},
	})

	got := NaNPercentile(m, 10)

	if math.Abs(got[0]-1.3) > 1e-12 {
		t.Errorf("Expected 1.3, got %v", got[0])
	}
	if math.Abs(got[1]-11) > 1e-12 {
		t.Errorf("Expected 11, got %v", got[1])
	}
	if !math.IsNaN(got[2]) {
		t.Errorf("Expected NaN for all-NaN column, got %v", got[2])
	}
}

func TestPercentileBounds(t *testing.T) {
	values := []float64{5, 1, 3}
	if got := percentile(append([]float64(nil), values...), 0); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
	if got := percentile(append([]float64(nil), values...), 100); got != 5 {
		t.Errorf("Expected 5, got %v", got)
	}
	if got := percentile(append([]float64(nil), values...), 50); got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
	if got := percentile(nil, 50); !math.IsNaN(got) {
		t.Errorf("Expected NaN, got %v", got)
	}
}

func TestDivideYieldsNaNOnZero(t *testing.T) {
	costs := FromRows([][]float64{{10}, {5}, {0}})
	quantities := FromRows([][]float64{{2}, {0}, {0}})

	ppu := costs.Divide(quantities)

	if ppu.At(0, 0) != 5 {
		t.Errorf("Expected 5, got %v", ppu.At(0, 0))
	}
	if !math.IsNaN(ppu.At(1, 0)) || !math.IsNaN(ppu.At(2, 0)) {
		t.Error("Expected NaN for zero quantities")
	}
}

func TestSumAndHelpers(t *testing.T) {
	var sum Sum
	if sum.Value() != nil {
		t.Error("Empty sum should be nil")
	}

	sum.Add(FromRows([][]float64{{1, 2}}))
	sum.Add(FromRows([][]float64{{3, 4}}))
	if got := sum.Value().Rows(); !reflect.DeepEqual(got, [][]float64{{4, 6}}) {
		t.Errorf("Unexpected sum %v", got)
	}

	m := basicRows()
	if got := m.ColumnSlice(1, 2).Rows(); !reflect.DeepEqual(got, [][]float64{{2}, {3}, {4}, {5}}) {
		t.Errorf("Unexpected column slice %v", got)
	}
	if Zeros(2, 2).Any() {
		t.Error("Zero matrix should not report any values")
	}

	totals := Zeros(1, 3)
	totals.AddWhere(FromRows([][]float64{{5, 50, 500}}), func(v float64) bool { return v >= 50 })
	if got := totals.Rows(); !reflect.DeepEqual(got, [][]float64{{0, 50, 500}}) {
		t.Errorf("Unexpected masked add %v", got)
	}
}

func TestEmptyShapes(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
	}{
		{"no rows", 0, 3},
		{"no columns", 2, 0},
		{"nothing", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Zeros(tt.rows, tt.cols)
			m.AddInPlace(m.Clone())
			m.AddWhere(Zeros(tt.rows, tt.cols), func(float64) bool { return true })

			for _, got := range []*Matrix{m.Clone(), m.Scale(2), m.Divide(m), m.ColumnSlice(0, tt.cols)} {
				if r, c := got.Dims(); r != tt.rows || c != tt.cols {
					t.Errorf("Dims = %dx%d, want %dx%d", r, c, tt.rows, tt.cols)
				}
			}
			if m.Any() {
				t.Error("Empty matrix should not report any values")
			}
			if got := len(m.Rows()); got != tt.rows {
				t.Errorf("Rows returned %d rows, want %d", got, tt.rows)
			}
		})
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		m    *Matrix
	}{
		{"values with NaN", FromRows([][]float64{{1.5, math.NaN()}, {0, -2}})},
		{"no rows", Zeros(0, 4)},
		{"no columns", Zeros(3, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.m.MarshalBinary()
			if err != nil {
				t.Fatalf("MarshalBinary: %v", err)
			}
			var got Matrix
			if err := got.UnmarshalBinary(encoded); err != nil {
				t.Fatalf("UnmarshalBinary: %v", err)
			}

			wantRows, wantCols := tt.m.Dims()
			if r, c := got.Dims(); r != wantRows || c != wantCols {
				t.Fatalf("Dims = %dx%d, want %dx%d", r, c, wantRows, wantCols)
			}
			for i := 0; i < wantRows; i++ {
				for j := 0; j < wantCols; j++ {
					want, have := tt.m.At(i, j), got.At(i, j)
					if math.Float64bits(want) != math.Float64bits(have) {
						t.Errorf("At(%d, %d) = %v, want %v", i, j, have, want)
					}
				}
			}
		})
	}

	var m Matrix
	if err := m.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Error("Expected an error for truncated data")
	}
}

func TestScaleLeavesSourceUntouched(t *testing.T) {
	m := FromRows([][]float64{{1, 2}, {3, 4}})
	scaled := m.Scale(0.5)

	if got := scaled.Rows(); !reflect.DeepEqual(got, [][]float64{{0.5, 1}, {1.5, 2}}) {
		t.Errorf("Unexpected scaled values %v", got)
	}
	if got := m.Rows(); !reflect.DeepEqual(got, [][]float64{{1, 2}, {3, 4}}) {
		t.Errorf("Source was modified: %v", got)
	}
}

// benchmarkMatrix is roughly one presentation across every practice for a
// few years of months
func benchmarkMatrix(rows, cols int) *Matrix {
	m := Zeros(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if (i+j)%7 == 0 {
				m.Set(i, j, math.NaN())
				continue
			}
			m.Set(i, j, float64((i*31+j*17)%997)/10)
		}
	}
	return m
}

func BenchmarkNaNPercentile(b *testing.B) {
	m := benchmarkMatrix(8000, 60)
	b.ResetTimer()
	for b.Loop() {
		NaNPercentile(m, 10)
	}
}

func BenchmarkRowGrouperSum(b *testing.B) {
	m := benchmarkMatrix(8000, 60)
	definition := make([]GroupMember, 8000)
	for i := range definition {
		definition[i] = GroupMember{i, string(rune('A' + i%26))}
	}
	grouper := NewRowGrouper(definition)
	b.ResetTimer()
	for b.Loop() {
		grouper.Sum(m)
	}
}
