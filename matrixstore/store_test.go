package matrixstore

import (
	"bytes"
	"errors"
	"testing"
)

func buildTestStore(t *testing.T, rows []PrescribingRow) *Store {
	t.Helper()
	b, err := NewBuilder([]string{"2026-08-01", "2026-07-01"}, []string{"P2", "P1", "P3"})
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	for _, row := range rows {
		if err := b.Add(row); err != nil {
			t.Fatalf("Add(%+v) failed: %v", row, err)
		}
	}
	b.SetName("0204000C0AAAAAA", "Acebutolol 100mg capsules")
	return b.Build()
}

func TestBuilderLayout(t *testing.T) {
	store := buildTestStore(t, nil)

	if got := store.Dates(); len(got) != 2 || got[0] != "2026-07-01" || got[1] != "2026-08-01" {
		t.Errorf("expected ascending dates, got %v", got)
	}
	if offset, ok := store.DateOffset("2026-08-01"); !ok || offset != 1 {
		t.Errorf("DateOffset(2026-08-01) = %d, %v", offset, ok)
	}
	if _, ok := store.DateOffset("2026-09-01"); ok {
		t.Error("unexpected offset for unknown date")
	}
	if store.LatestDate() != "2026-08-01" {
		t.Errorf("LatestDate() = %q", store.LatestDate())
	}

	offsets := store.PracticeOffsets()
	for code, want := range map[string]int{"P1": 0, "P2": 1, "P3": 2} {
		if offsets[code] != want {
			t.Errorf("practice %s: offset %d, want %d", code, offsets[code], want)
		}
	}
	if store.RowCount() != 3 {
		t.Errorf("RowCount() = %d, want 3", store.RowCount())
	}
}

func TestBuilderAccumulates(t *testing.T) {
	store := buildTestStore(t, []PrescribingRow{
		{BNFCode: "0204000C0AAAAAA", Practice: "P1", Date: "2026-08-01", Quantity: 10, NetCost: 100},
		{BNFCode: "0204000C0AAAAAA", Practice: "P1", Date: "2026-08-01", Quantity: 5, NetCost: 40},
		{BNFCode: "0204000C0BBAAAA", Practice: "P3", Date: "2026-07-01", Quantity: 2, NetCost: 90},
	})

	results := store.Query([]string{"0204000C0BBAAAA", "0204000C0AAAAAA", "0204000C0AAAAAA", "missing"})
	if len(results) != 2 {
		t.Fatalf("expected 2 presentations, got %d", len(results))
	}
	if results[0].BNFCode != "0204000C0AAAAAA" {
		t.Errorf("expected ascending code order, got %s first", results[0].BNFCode)
	}
	if q := results[0].Quantity.At(0, 1); q != 15 {
		t.Errorf("summed quantity = %v, want 15", q)
	}
	if c := results[0].NetCost.At(0, 1); c != 140 {
		t.Errorf("summed net cost = %v, want 140", c)
	}
	if q := results[1].Quantity.At(2, 0); q != 2 {
		t.Errorf("quantity for P3 = %v, want 2", q)
	}

	prescribed := store.PrescribedCodes()
	if len(prescribed) != 2 {
		t.Errorf("expected 2 prescribed codes, got %v", prescribed)
	}

	names := store.NamesForCodes([]string{"0204000C0AAAAAA", "0204000C0BBAAAA"})
	if len(names) != 1 || names["0204000C0AAAAAA"] != "Acebutolol 100mg capsules" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestBuilderRejectsUnknownKeys(t *testing.T) {
	b, err := NewBuilder([]string{"2026-08-01"}, []string{"P1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		row  PrescribingRow
		want error
	}{
		{"unknown date", PrescribingRow{BNFCode: "X", Practice: "P1", Date: "2026-09-01"}, ErrUnknownDate},
		{"unknown practice", PrescribingRow{BNFCode: "X", Practice: "P9", Date: "2026-08-01"}, ErrUnknownPractice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Add(tt.row); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewBuilderRejectsInvalidDate(t *testing.T) {
	if _, err := NewBuilder([]string{"2026-13-01"}, nil); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestCacheKeyTracksContent(t *testing.T) {
	row := PrescribingRow{BNFCode: "0204000C0AAAAAA", Practice: "P1", Date: "2026-08-01", Quantity: 10, NetCost: 100}

	a := buildTestStore(t, []PrescribingRow{row})
	b := buildTestStore(t, []PrescribingRow{row})
	if !bytes.Equal(a.CacheKey(), b.CacheKey()) {
		t.Error("identical content should give identical cache keys")
	}

	row.NetCost = 101
	c := buildTestStore(t, []PrescribingRow{row})
	if bytes.Equal(a.CacheKey(), c.CacheKey()) {
		t.Error("changed net cost should change the cache key")
	}
}
