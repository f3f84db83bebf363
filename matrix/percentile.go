package matrix

import (
	"math"
	"sort"
)

// NaNPercentile returns, for each column of m, the q-th percentile (0-100) of
// its non-NaN values using linear interpolation between closest ranks. A column
// with no numeric values yields NaN.
func NaNPercentile(m *Matrix, q float64) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	values := make([]float64, 0, rows)
	for j := 0; j < cols; j++ {
		values = values[:0]
		for i := 0; i < rows; i++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		out[j] = percentile(values, q)
	}
	return out
}

// percentile sorts values in place
func percentile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	pos := q / 100 * float64(n-1)
	lo := math.Floor(pos)
	lower := int(lo)
	if lower >= n-1 {
		return values[n-1]
	}
	if lower < 0 {
		return values[0]
	}
	return lerp(values[lower], values[lower+1], pos-lo)
}

// lerp interpolates from whichever end is closer, so results match the usual
// linear percentile bit for bit
func lerp(a, b, t float64) float64 {
	diff := b - a
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}
