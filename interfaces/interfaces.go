// Package interfaces defines the contracts shared between the savings
// service's packages, so that each can be tested against hand-written mocks.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
)

// MemoBackend stores encoded memo entries by key
type MemoBackend interface {
	// Get returns the stored value and whether it was found
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value; a zero ttl means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DataStore holds the current prescribing snapshot and practice registry.
// Snapshots are swapped atomically so readers never see a partial update.
type DataStore interface {
	MatrixStore() *matrixstore.Store
	Registry() *orgs.Registry
	// Snapshot returns a store and the registry built for it together
	Snapshot() (*matrixstore.Store, *orgs.Registry)
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateData(store *matrixstore.Store, registry *orgs.Registry)
	BeginUpdate() bool
	EndUpdate()
}

// PrescribingLoader reads a full prescribing snapshot from the database
type PrescribingLoader interface {
	LoadMatrixStore(ctx context.Context) (*matrixstore.Store, error)
	Practices(ctx context.Context) ([]orgs.Practice, error)
}

// FreshnessSource reports the dm+d freshness marker: the highest price
// record id, which changes whenever new drug data is imported
type FreshnessSource interface {
	FreshnessMarker(ctx context.Context) (int64, error)
}

// DataValidator checks request parameters and reports on the quality of
// freshly loaded data
type DataValidator interface {
	ValidateInput(input string) error
	ValidateBNFCode(code string) error
	// ValidateDate accepts YYYY-MM or YYYY-MM-DD and returns the first of
	// the month as YYYY-MM-DD
	ValidateDate(date string) (string, error)
	ValidateOrgType(orgType string) (orgs.OrgType, error)
	ValidateOrgID(orgType orgs.OrgType, id string) error
	ReportDataQuality(store *matrixstore.Store, practices []orgs.Practice) *DataQualityReport
}

// DataQualityReport summarises inconsistencies between the prescribing
// data and the practice register. Code lists are truncated to the first 10.
type DataQualityReport struct {
	PracticesWithoutRegisterEntry     int
	PracticesWithoutRegisterEntryList []string
	StandardPracticesWithoutCCG       int
	StandardPracticesWithoutCCGList   []string
	PresentationsWithoutName          int
	PresentationsWithoutNameList      []string
	DatesWithoutPrescribing           []string
}

// Scheduler defines the contract for job scheduling
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler defines the contract for the HTTP endpoint handlers
type HTTPHandler interface {
	ServePricePerUnit(w http.ResponseWriter, r *http.Request)
	ServePPUBreakdown(w http.ResponseWriter, r *http.Request)
	ServeTotalSavings(w http.ResponseWriter, r *http.Request)
	ServeSubstitutionSets(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status and the HTTP status
	// code to report it with
	HealthCheck() (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled update time
	CalculateNextUpdate() time.Time
}
