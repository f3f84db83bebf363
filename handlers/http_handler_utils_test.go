package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/giygas/ppu-savings/data"
	"github.com/giygas/ppu-savings/matrixstore"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/savings"
	"github.com/giygas/ppu-savings/substitution"
	"github.com/giygas/ppu-savings/validation"
)

// ============================================================================
// TEST DATA FACTORY
// ============================================================================

// createDataContainer loads three practices in two CCGs with two months of
// prescribing
func createDataContainer(t testing.TB) *data.DataContainer {
	t.Helper()

	builder, err := matrixstore.NewBuilder([]string{"2026-07-01", "2026-08-01"}, []string{"A81001", "A81002", "B82001"})
	if err != nil {
		t.Fatal(err)
	}
	rows := []matrixstore.PrescribingRow{
		{BNFCode: "0601022B0AAABAB", Practice: "A81001", Date: "2026-08-01", Quantity: 56, NetCost: 240},
		{BNFCode: "0601022B0BBAAAB", Practice: "A81002", Date: "2026-08-01", Quantity: 28, NetCost: 900},
		{BNFCode: "0601022B0AAABAB", Practice: "B82001", Date: "2026-07-01", Quantity: 84, NetCost: 300},
	}
	for _, row := range rows {
		if err := builder.Add(row); err != nil {
			t.Fatal(err)
		}
	}
	store := builder.Build()

	practices := []orgs.Practice{
		{Code: "A81001", Setting: 4, CCG: "00K"},
		{Code: "A81002", Setting: 4, CCG: "00K"},
		{Code: "B82001", Setting: 4, CCG: "01A"},
	}

	dc := data.NewDataContainer()
	dc.UpdateData(store, orgs.NewRegistry(practices, store.PracticeOffsets()))
	dc.SetServerStartTime(time.Now().Add(-90 * time.Minute))
	return dc
}

func testSets() *substitution.Collection {
	return substitution.NewCollection([]*substitution.SubstitutionSet{
		substitution.NewSubstitutionSet("0601022B0AAABAB", []string{"0601022B0AAABAB", "0601022B0BBAAAB"}, "Metformin 500mg tablets", nil),
		substitution.NewSubstitutionSet("0407010H0AAAMAM", []string{"0407010H0AAAMAM", "0407010H0BBAAAM"}, "Paracetamol 500mg tablets", nil),
	})
}

// ============================================================================
// MOCKS
// ============================================================================

type call struct {
	method    string
	setID     string
	date      string
	orgType   orgs.OrgType
	orgIDs    []string
	minSaving float64
}

// mockEngine records calls and returns canned results
type mockEngine struct {
	savings     []savings.Saving
	total       float64
	prescribing savings.PrescribingAtDate
	breakdown   []savings.PresentationBreakdown
	meanPPU     float64
	hasMean     bool
	err         error
	calls       []call
}

func (m *mockEngine) GetAllSavingsForOrgs(_ context.Context, date string, orgType orgs.OrgType, orgIDs []string) ([]savings.Saving, error) {
	m.calls = append(m.calls, call{method: "all", date: date, orgType: orgType, orgIDs: orgIDs})
	return m.savings, m.err
}

func (m *mockEngine) GetSavingsForOrgs(_ context.Context, setID, date string, orgType orgs.OrgType, orgIDs []string, minSaving float64) ([]savings.Saving, error) {
	m.calls = append(m.calls, call{method: "set", setID: setID, date: date, orgType: orgType, orgIDs: orgIDs, minSaving: minSaving})
	return m.savings, m.err
}

func (m *mockEngine) GetTotalSavingsForOrg(_ context.Context, date string, orgType orgs.OrgType, orgID string) (float64, error) {
	m.calls = append(m.calls, call{method: "total", date: date, orgType: orgType, orgIDs: []string{orgID}})
	return m.total, m.err
}

func (m *mockEngine) GetPrescribing(_ context.Context, setID, date string) (savings.PrescribingAtDate, error) {
	m.calls = append(m.calls, call{method: "prescribing", setID: setID, date: date})
	return m.prescribing, m.err
}

func (m *mockEngine) PPUBreakdown(_ savings.PrescribingAtDate, orgType orgs.OrgType, orgID string) ([]savings.PresentationBreakdown, error) {
	return m.breakdown, nil
}

func (m *mockEngine) MeanPPU(_ savings.PrescribingAtDate, _ orgs.OrgType, _ string) (float64, bool, error) {
	return m.meanPPU, m.hasMean, nil
}

type mockSetsProvider struct {
	sets *substitution.Collection
	err  error
}

func (m *mockSetsProvider) Sets(context.Context) (*substitution.Collection, error) {
	return m.sets, m.err
}

type mockHealthChecker struct {
	status     string
	httpStatus int
}

func (m *mockHealthChecker) HealthCheck() (string, map[string]any, int) {
	return m.status, map[string]any{"practices": 3}, m.httpStatus
}

func (m *mockHealthChecker) CalculateNextUpdate() time.Time {
	return time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
}

// newTestHandler wires a handler over the factory data and the given engine
func newTestHandler(t testing.TB, engine *mockEngine) *HTTPHandlerImpl {
	t.Helper()
	return NewHTTPHandler(
		engine,
		&mockSetsProvider{sets: testSets()},
		createDataContainer(t),
		validation.NewDataValidator(),
		&mockHealthChecker{status: "healthy", httpStatus: http.StatusOK},
	).(*HTTPHandlerImpl)
}

// ============================================================================
// HELPERS
// ============================================================================

func serve(handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}
