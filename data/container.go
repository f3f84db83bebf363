// Package data provides thread-safe storage of the current prescribing
// snapshot, with atomic swaps for zero-downtime refreshes.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// snapshot pairs a matrix store with the registry built from its offsets so
// both are always swapped together
type snapshot struct {
	store    *matrixstore.Store
	registry *orgs.Registry
}

// DataContainer holds all the data with atomic pointers for zero-downtime updates
type DataContainer struct {
	current         atomic.Pointer[snapshot]
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with an empty snapshot
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	builder, _ := matrixstore.NewBuilder(nil, nil)
	empty := builder.Build()
	dc.current.Store(&snapshot{store: empty, registry: orgs.NewRegistry(nil, empty.PracticeOffsets())})
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// MatrixStore returns the current prescribing snapshot
func (dc *DataContainer) MatrixStore() *matrixstore.Store {
	return dc.current.Load().store
}

// Registry returns the practice registry matching MatrixStore
func (dc *DataContainer) Registry() *orgs.Registry {
	return dc.current.Load().registry
}

// Snapshot returns the store and registry from the same update
func (dc *DataContainer) Snapshot() (*matrixstore.Store, *orgs.Registry) {
	current := dc.current.Load()
	return current.store, current.registry
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData atomically replaces the snapshot
func (dc *DataContainer) UpdateData(store *matrixstore.Store, registry *orgs.Registry) {
	if store == nil || registry == nil {
		logging.Error("Refusing to install an incomplete snapshot")
		return
	}
	dc.current.Store(&snapshot{store: store, registry: registry})
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
