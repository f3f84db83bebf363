package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/substitution"
	"github.com/giygas/ppu-savings/validation"
)

// mockSchedulerDataStore for testing scheduler
type mockSchedulerDataStore struct {
	store       *matrixstore.Store
	registry    *orgs.Registry
	lastUpdated time.Time
	updating    bool
	updateCount int
}

func (m *mockSchedulerDataStore) MatrixStore() *matrixstore.Store { return m.store }
func (m *mockSchedulerDataStore) Registry() *orgs.Registry        { return m.registry }
func (m *mockSchedulerDataStore) Snapshot() (*matrixstore.Store, *orgs.Registry) {
	return m.store, m.registry
}
func (m *mockSchedulerDataStore) GetLastUpdated() time.Time     { return m.lastUpdated }
func (m *mockSchedulerDataStore) IsUpdating() bool              { return m.updating }
func (m *mockSchedulerDataStore) GetServerStartTime() time.Time { return time.Time{} }

func (m *mockSchedulerDataStore) UpdateData(store *matrixstore.Store, registry *orgs.Registry) {
	m.store = store
	m.registry = registry
	m.lastUpdated = time.Now()
	m.updateCount++
}

func (m *mockSchedulerDataStore) BeginUpdate() bool {
	if m.updating {
		return false
	}
	m.updating = true
	return true
}

func (m *mockSchedulerDataStore) EndUpdate() {
	m.updating = false
}

// mockLoader serves a fixed two-practice snapshot
type mockLoader struct {
	storeErr     error
	practicesErr error
	loadCount    int
}

func (m *mockLoader) LoadMatrixStore(context.Context) (*matrixstore.Store, error) {
	m.loadCount++
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	builder, err := matrixstore.NewBuilder([]string{"2026-08-01"}, []string{"P1", "P2"})
	if err != nil {
		return nil, err
	}
	if err := builder.Add(matrixstore.PrescribingRow{
		BNFCode: "0601022B0AAABAB", Practice: "P1", Date: "2026-08-01", Quantity: 28, NetCost: 120,
	}); err != nil {
		return nil, err
	}
	builder.SetName("0601022B0AAABAB", "Metformin 500mg tablets")
	return builder.Build(), nil
}

func (m *mockLoader) Practices(context.Context) ([]orgs.Practice, error) {
	if m.practicesErr != nil {
		return nil, m.practicesErr
	}
	return []orgs.Practice{
		{Code: "P1", Setting: 4, CCG: "00K"},
		{Code: "P2", Setting: 4, CCG: "00K"},
	}, nil
}

type mockSets struct {
	invalidated int
	built       int
	err         error
}

func (m *mockSets) Invalidate() { m.invalidated++ }

func (m *mockSets) Sets(context.Context) (*substitution.Collection, error) {
	m.built++
	if m.err != nil {
		return nil, m.err
	}
	return substitution.NewCollection(nil), nil
}

func newTestScheduler(loader *mockLoader, sets *mockSets) (*Scheduler, *mockSchedulerDataStore) {
	dataStore := &mockSchedulerDataStore{}
	return NewScheduler(dataStore, loader, sets, validation.NewDataValidator(), ""), dataStore
}

func TestScheduler_SuccessfulUpdate(t *testing.T) {
	loader := &mockLoader{}
	sets := &mockSets{}
	scheduler, dataStore := newTestScheduler(loader, sets)

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Unexpected error during start: %v", err)
	}
	defer scheduler.Stop()

	if dataStore.updateCount != 1 {
		t.Errorf("Expected 1 update, got %d", dataStore.updateCount)
	}
	if dataStore.store.RowCount() != 2 {
		t.Errorf("Expected 2 practice rows, got %d", dataStore.store.RowCount())
	}
	if dataStore.registry.Len() != 2 {
		t.Errorf("Expected 2 registered practices, got %d", dataStore.registry.Len())
	}
	if !dataStore.registry.HasOrg(orgs.OrgTypeCCG, "00K") {
		t.Error("Expected registry to be built against the new store")
	}
	if sets.invalidated != 1 || sets.built != 1 {
		t.Errorf("Expected sets invalidated and rebuilt once, got %d and %d", sets.invalidated, sets.built)
	}
	if dataStore.updating {
		t.Error("Expected update flag to be released")
	}
}

func TestScheduler_LoadFailure(t *testing.T) {
	tests := []struct {
		name   string
		loader *mockLoader
	}{
		{"prescribing", &mockLoader{storeErr: errors.New("connection refused")}},
		{"practices", &mockLoader{practicesErr: errors.New("relation does not exist")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sets := &mockSets{}
			scheduler, dataStore := newTestScheduler(tt.loader, sets)

			if err := scheduler.Start(); err == nil {
				t.Fatal("Expected error when loading fails")
			}
			if dataStore.updateCount != 0 {
				t.Errorf("Expected no snapshot installed, got %d updates", dataStore.updateCount)
			}
			if sets.invalidated != 0 {
				t.Error("Expected sets left alone after a failed load")
			}
			if dataStore.updating {
				t.Error("Expected update flag to be released after failure")
			}
		})
	}
}

func TestScheduler_WarmFailureKeepsSnapshot(t *testing.T) {
	sets := &mockSets{err: errors.New("swaps query failed")}
	scheduler, dataStore := newTestScheduler(&mockLoader{}, sets)

	if err := scheduler.updateData(); err != nil {
		t.Fatalf("Expected warm failure to be tolerated, got %v", err)
	}
	if dataStore.updateCount != 1 {
		t.Errorf("Expected snapshot installed, got %d updates", dataStore.updateCount)
	}
	if sets.invalidated != 1 {
		t.Errorf("Expected sets invalidated, got %d", sets.invalidated)
	}
}

func TestScheduler_ConcurrentUpdatePrevention(t *testing.T) {
	loader := &mockLoader{}
	scheduler, dataStore := newTestScheduler(loader, &mockSets{})

	dataStore.updating = true

	if err := scheduler.updateData(); err != nil {
		t.Errorf("Expected skipped update to return nil, got %v", err)
	}
	if loader.loadCount != 0 {
		t.Errorf("Expected no load while another update runs, got %d", loader.loadCount)
	}
	if dataStore.updateCount != 0 {
		t.Errorf("Expected no updates, got %d", dataStore.updateCount)
	}
}

func TestScheduler_InvalidRefreshTimes(t *testing.T) {
	dataStore := &mockSchedulerDataStore{}
	scheduler := NewScheduler(dataStore, &mockLoader{}, &mockSets{}, validation.NewDataValidator(), "25:99")

	if err := scheduler.Start(); err == nil {
		scheduler.Stop()
		t.Fatal("Expected error for invalid refresh times")
	}
	if dataStore.updateCount != 1 {
		t.Errorf("Expected the initial load to run before scheduling, got %d updates", dataStore.updateCount)
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	scheduler := NewScheduler(&mockSchedulerDataStore{}, &mockLoader{}, &mockSets{}, validation.NewDataValidator(), "")
	if scheduler.refreshTimes != DefaultRefreshTimes {
		t.Errorf("Expected default refresh times, got %q", scheduler.refreshTimes)
	}
}
