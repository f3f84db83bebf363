package matrixstore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/giygas/ppu-savings/matrix"
)

// PrescribingRow is one practice's prescribing of one presentation in one
// month. NetCost is in pence.
type PrescribingRow struct {
	BNFCode  string
	Practice string
	Date     string
	Quantity float64
	NetCost  float64
}

// Builder accumulates prescribing rows into a Store. Rows for the same
// (code, practice, date) are summed.
type Builder struct {
	dates           []string
	dateOffsets     map[string]int
	practiceOffsets map[string]int
	quantity        map[string]*matrix.Matrix
	netCost         map[string]*matrix.Matrix
	names           map[string]string
}

// NewBuilder creates a builder for the given months and practices. Dates are
// sorted; practices get rows in ascending code order.
func NewBuilder(dates []string, practices []string) (*Builder, error) {
	sortedDates := uniqueSorted(dates)
	for _, date := range sortedDates {
		if _, err := time.Parse(DateFormat, date); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
	}

	b := &Builder{
		dates:           sortedDates,
		dateOffsets:     make(map[string]int, len(sortedDates)),
		practiceOffsets: make(map[string]int),
		quantity:        make(map[string]*matrix.Matrix),
		netCost:         make(map[string]*matrix.Matrix),
		names:           make(map[string]string),
	}
	for offset, date := range sortedDates {
		b.dateOffsets[date] = offset
	}
	for offset, code := range uniqueSorted(practices) {
		b.practiceOffsets[code] = offset
	}
	return b, nil
}

// Add accumulates one row
func (b *Builder) Add(row PrescribingRow) error {
	col, ok := b.dateOffsets[row.Date]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDate, row.Date)
	}
	practice, ok := b.practiceOffsets[row.Practice]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPractice, row.Practice)
	}

	quantity, ok := b.quantity[row.BNFCode]
	if !ok {
		quantity = matrix.Zeros(len(b.practiceOffsets), len(b.dates))
		b.quantity[row.BNFCode] = quantity
		b.netCost[row.BNFCode] = matrix.Zeros(len(b.practiceOffsets), len(b.dates))
	}
	netCost := b.netCost[row.BNFCode]

	quantity.Set(practice, col, quantity.At(practice, col)+row.Quantity)
	netCost.Set(practice, col, netCost.At(practice, col)+row.NetCost)
	return nil
}

// SetName records the display name of a presentation
func (b *Builder) SetName(bnfCode, name string) {
	b.names[bnfCode] = name
}

// Build freezes the accumulated data. The builder must not be used again.
func (b *Builder) Build() *Store {
	s := &Store{
		dates:           b.dates,
		dateOffsets:     b.dateOffsets,
		practiceOffsets: b.practiceOffsets,
		presentations:   make(map[string]Presentation, len(b.quantity)),
		names:           b.names,
	}
	for code, quantity := range b.quantity {
		s.presentations[code] = Presentation{BNFCode: code, Quantity: quantity, NetCost: b.netCost[code]}
	}
	s.cacheKey = b.digest()
	return s
}

func (b *Builder) digest() []byte {
	hash := sha256.New()
	var buf [8]byte
	writeString := func(v string) {
		binary.BigEndian.PutUint64(buf[:], uint64(len(v)))
		hash.Write(buf[:])
		hash.Write([]byte(v))
	}
	writeMatrix := func(m *matrix.Matrix) {
		rows, cols := m.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				binary.BigEndian.PutUint64(buf[:], math.Float64bits(m.At(i, j)))
				hash.Write(buf[:])
			}
		}
	}

	for _, date := range b.dates {
		writeString(date)
	}
	practices := make([]string, len(b.practiceOffsets))
	for code, offset := range b.practiceOffsets {
		practices[offset] = code
	}
	for _, code := range practices {
		writeString(code)
	}

	codes := make([]string, 0, len(b.quantity))
	for code := range b.quantity {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		writeString(code)
		writeMatrix(b.quantity[code])
		writeMatrix(b.netCost[code])
	}
	return hash.Sum(nil)
}

func uniqueSorted(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i > 0 && v == out[n-1] {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}
