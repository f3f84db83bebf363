// Package matrix provides the dense numeric matrices used for prescribing
// aggregation. Rows are practices (or organisations after grouping) and
// columns are dates.
package matrix

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense float64 matrix. gonum rejects zero-length dimensions, so
// an empty matrix keeps its shape with a nil backing.
type Matrix struct {
	rows  int
	cols  int
	dense *mat.Dense
}

// Zeros returns a rows x cols matrix filled with zeros
func Zeros(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("matrix: negative dimensions %dx%d", rows, cols))
	}
	m := &Matrix{rows: rows, cols: cols}
	if rows > 0 && cols > 0 {
		m.dense = mat.NewDense(rows, cols, nil)
	}
	return m
}

// FromRows builds a matrix from a slice of equal-length rows
func FromRows(rows [][]float64) *Matrix {
	if len(rows) == 0 {
		return Zeros(0, 0)
	}
	m := Zeros(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			panic(fmt.Sprintf("matrix: row %d has %d columns, expected %d", i, len(row), m.cols))
		}
		copy(m.Row(i), row)
	}
	return m
}

func wrap(d *mat.Dense) *Matrix {
	r, c := d.Dims()
	return &Matrix{rows: r, cols: c, dense: d}
}

// Dims returns the number of rows and columns
func (m *Matrix) Dims() (int, int) {
	return m.rows, m.cols
}

// At returns the value at row i, column j
func (m *Matrix) At(i, j int) float64 {
	return m.dense.At(i, j)
}

// Set stores v at row i, column j
func (m *Matrix) Set(i, j int, v float64) {
	m.dense.Set(i, j, v)
}

// Row returns a view of row i. Writes to the slice modify the matrix.
func (m *Matrix) Row(i int) []float64 {
	if m.dense == nil {
		if i < 0 || i >= m.rows {
			panic(fmt.Sprintf("matrix: row %d out of range for %d rows", i, m.rows))
		}
		return []float64{}
	}
	return m.dense.RawRowView(i)
}

// Rows returns a copy of the matrix as a slice of rows
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = append([]float64(nil), m.Row(i)...)
	}
	return out
}

// Clone returns a deep copy
func (m *Matrix) Clone() *Matrix {
	if m.dense == nil {
		return Zeros(m.rows, m.cols)
	}
	var d mat.Dense
	d.CloneFrom(m.dense)
	return wrap(&d)
}

// ColumnSlice returns a new matrix holding columns [from, to)
func (m *Matrix) ColumnSlice(from, to int) *Matrix {
	if from < 0 || to > m.cols || from > to {
		panic(fmt.Sprintf("matrix: column slice [%d:%d] out of range for %d columns", from, to, m.cols))
	}
	if m.rows == 0 || from == to {
		return Zeros(m.rows, to-from)
	}
	var d mat.Dense
	d.CloneFrom(m.dense.Slice(0, m.rows, from, to))
	return wrap(&d)
}

// Scale returns a new matrix with every value multiplied by f
func (m *Matrix) Scale(f float64) *Matrix {
	if m.dense == nil {
		return Zeros(m.rows, m.cols)
	}
	var d mat.Dense
	d.Scale(f, m.dense)
	return wrap(&d)
}

// AddInPlace adds other to m element-wise
func (m *Matrix) AddInPlace(other *Matrix) {
	m.mustMatch(other)
	if m.dense == nil {
		return
	}
	m.dense.Add(m.dense, other.dense)
}

// AddWhere adds other to m only where mask holds for the value in other
func (m *Matrix) AddWhere(other *Matrix, mask func(float64) bool) {
	m.mustMatch(other)
	if m.dense == nil {
		return
	}
	var masked mat.Dense
	masked.Apply(func(_, _ int, v float64) float64 {
		if mask(v) {
			return v
		}
		return 0
	}, other.dense)
	m.dense.Add(m.dense, &masked)
}

// Any reports whether any value is non-zero. NaN counts as non-zero.
func (m *Matrix) Any() bool {
	for i := 0; i < m.rows; i++ {
		for _, v := range m.Row(i) {
			if v != 0 {
				return true
			}
		}
	}
	return false
}

// Divide returns m / other element-wise. A zero denominator yields NaN rather
// than an infinity so that downstream percentiles can ignore it.
func (m *Matrix) Divide(other *Matrix) *Matrix {
	m.mustMatch(other)
	if m.dense == nil {
		return Zeros(m.rows, m.cols)
	}
	var d mat.Dense
	d.DivElem(m.dense, other.dense)
	out := wrap(&d)
	for i := 0; i < m.rows; i++ {
		row := out.Row(i)
		for j, den := range other.Row(i) {
			if den == 0 {
				row[j] = math.NaN()
			}
		}
	}
	return out
}

func (m *Matrix) mustMatch(other *Matrix) {
	if m.rows != other.rows || m.cols != other.cols {
		panic(fmt.Sprintf("matrix: shape mismatch %dx%d vs %dx%d", m.rows, m.cols, other.rows, other.cols))
	}
}

// Sum accumulates matrices of identical shape
type Sum struct {
	value *Matrix
}

// Add adds m to the running total
func (s *Sum) Add(m *Matrix) {
	if s.value == nil {
		s.value = m.Clone()
		return
	}
	s.value.AddInPlace(m)
}

// Value returns the total, or nil if nothing was added
func (s *Sum) Value() *Matrix {
	return s.value
}

const shapeHeaderSize = 16

// MarshalBinary encodes the shape followed by gonum's encoding of the values,
// which is omitted for an empty matrix
func (m *Matrix) MarshalBinary() ([]byte, error) {
	buf := make([]byte, shapeHeaderSize)
	binary.BigEndian.PutUint64(buf[0:], uint64(m.rows))
	binary.BigEndian.PutUint64(buf[8:], uint64(m.cols))
	if m.dense == nil {
		return buf, nil
	}
	values, err := m.dense.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("matrix: %w", err)
	}
	return append(buf, values...), nil
}

// UnmarshalBinary is the inverse of MarshalBinary
func (m *Matrix) UnmarshalBinary(data []byte) error {
	if len(data) < shapeHeaderSize {
		return fmt.Errorf("matrix: encoded data too short (%d bytes)", len(data))
	}
	rows := int(binary.BigEndian.Uint64(data[0:]))
	cols := int(binary.BigEndian.Uint64(data[8:]))
	if rows < 0 || cols < 0 {
		return fmt.Errorf("matrix: encoded shape %dx%d is invalid", rows, cols)
	}

	values := data[shapeHeaderSize:]
	if rows == 0 || cols == 0 {
		if len(values) != 0 {
			return fmt.Errorf("matrix: empty %dx%d matrix carries %d value bytes", rows, cols, len(values))
		}
		m.rows, m.cols, m.dense = rows, cols, nil
		return nil
	}

	var d mat.Dense
	if err := d.UnmarshalBinary(values); err != nil {
		return fmt.Errorf("matrix: %w", err)
	}
	if r, c := d.Dims(); r != rows || c != cols {
		return fmt.Errorf("matrix: encoded values are %dx%d, header says %dx%d", r, c, rows, cols)
	}
	m.rows, m.cols, m.dense = rows, cols, &d
	return nil
}
