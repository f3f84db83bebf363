package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/savings"
	"github.com/giygas/ppu-savings/substitution"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// minSetSaving is the threshold, in pence, for savings within a single set.
// Anything that rounds to nothing is left out.
const minSetSaving = 1

// SavingsEngine answers savings queries; satisfied by *savings.Engine
type SavingsEngine interface {
	GetAllSavingsForOrgs(ctx context.Context, date string, orgType orgs.OrgType, orgIDs []string) ([]savings.Saving, error)
	GetSavingsForOrgs(ctx context.Context, setID, date string, orgType orgs.OrgType, orgIDs []string, minSaving float64) ([]savings.Saving, error)
	GetTotalSavingsForOrg(ctx context.Context, date string, orgType orgs.OrgType, orgID string) (float64, error)
	GetPrescribing(ctx context.Context, setID, date string) (savings.PrescribingAtDate, error)
	PPUBreakdown(prescribing savings.PrescribingAtDate, orgType orgs.OrgType, orgID string) ([]savings.PresentationBreakdown, error)
	MeanPPU(prescribing savings.PrescribingAtDate, orgType orgs.OrgType, orgID string) (float64, bool, error)
}

// SetsProvider serves the current substitution sets
type SetsProvider interface {
	Sets(ctx context.Context) (*substitution.Collection, error)
}

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	engine        SavingsEngine
	sets          SetsProvider
	dataStore     interfaces.DataStore
	validator     interfaces.DataValidator
	healthChecker interfaces.HealthChecker
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(engine SavingsEngine, sets SetsProvider, dataStore interfaces.DataStore, validator interfaces.DataValidator, healthChecker interfaces.HealthChecker) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		engine:        engine,
		sets:          sets,
		dataStore:     dataStore,
		validator:     validator,
		healthChecker: healthChecker,
	}
}

// orgQuery holds the validated date and organisation of a request
type orgQuery struct {
	Date    string       `json:"date"`
	OrgType orgs.OrgType `json:"org_type"`
	OrgID   string       `json:"entity_code"`
}

// parseOrgQuery reads date, org_type and entity_code. A missing date means
// the latest month loaded.
func (h *HTTPHandlerImpl) parseOrgQuery(r *http.Request) (orgQuery, int, error) {
	params := r.URL.Query()
	store, registry := h.dataStore.Snapshot()

	var q orgQuery
	date := params.Get("date")
	if date == "" {
		date = store.LatestDate()
		if date == "" {
			return q, http.StatusServiceUnavailable, fmt.Errorf("no prescribing data loaded yet")
		}
	}
	normalized, err := h.validator.ValidateDate(date)
	if err != nil {
		return q, http.StatusBadRequest, err
	}
	q.Date = normalized

	orgTypeParam := params.Get("org_type")
	if orgTypeParam == "" {
		return q, http.StatusBadRequest, fmt.Errorf("missing org_type")
	}
	orgType, err := h.validator.ValidateOrgType(orgTypeParam)
	if err != nil {
		return q, http.StatusBadRequest, err
	}
	q.OrgType = orgType

	q.OrgID = strings.ToUpper(strings.TrimSpace(params.Get("entity_code")))
	if err := h.validator.ValidateOrgID(q.OrgType, q.OrgID); err != nil {
		return q, http.StatusBadRequest, err
	}
	if !registry.HasOrg(q.OrgType, q.OrgID) {
		return q, http.StatusNotFound, fmt.Errorf("%w: %s %q", savings.ErrOrgNotFound, q.OrgType, q.OrgID)
	}

	return q, http.StatusOK, nil
}

// parseSet reads and validates the set parameter, returning "" if absent
func (h *HTTPHandlerImpl) parseSet(r *http.Request) (string, error) {
	set := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("set")))
	if set == "" {
		return "", nil
	}
	if err := h.validator.ValidateBNFCode(set); err != nil {
		return "", err
	}
	return set, nil
}

// ServePricePerUnit returns the possible savings for one organisation,
// largest first. With a set, only that substitution set is considered.
func (h *HTTPHandlerImpl) ServePricePerUnit(w http.ResponseWriter, r *http.Request) {
	q, code, err := h.parseOrgQuery(r)
	if err != nil {
		logging.Warn("Unusual user input", "query", r.URL.RawQuery, "error", err)
		RespondWithError(w, code, err.Error())
		return
	}
	set, err := h.parseSet(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var results []savings.Saving
	if set == "" {
		results, err = h.engine.GetAllSavingsForOrgs(r.Context(), q.Date, q.OrgType, []string{q.OrgID})
	} else {
		results, err = h.engine.GetSavingsForOrgs(r.Context(), set, q.Date, q.OrgType, []string{q.OrgID}, minSetSaving)
	}
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}
	if results == nil {
		results = []savings.Saving{}
	}

	RespondWithJSON(w, http.StatusOK, results)
}

// BreakdownResponse is the body of /price-per-unit/breakdown. MeanPPU is
// nil when the organisation prescribed none of the set.
type BreakdownResponse struct {
	orgQuery
	Set           string                          `json:"set"`
	MeanPPU       *float64                        `json:"mean_ppu"`
	Presentations []savings.PresentationBreakdown `json:"presentations"`
}

// ServePPUBreakdown shows how much of each presentation in a set the
// organisation prescribed at each price-per-unit
func (h *HTTPHandlerImpl) ServePPUBreakdown(w http.ResponseWriter, r *http.Request) {
	q, code, err := h.parseOrgQuery(r)
	if err != nil {
		logging.Warn("Unusual user input", "query", r.URL.RawQuery, "error", err)
		RespondWithError(w, code, err.Error())
		return
	}
	set, err := h.parseSet(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if set == "" {
		RespondWithError(w, http.StatusBadRequest, "missing set")
		return
	}

	prescribing, err := h.engine.GetPrescribing(r.Context(), set, q.Date)
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}
	breakdown, err := h.engine.PPUBreakdown(prescribing, q.OrgType, q.OrgID)
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}
	response := BreakdownResponse{orgQuery: q, Set: set, Presentations: breakdown}
	mean, ok, err := h.engine.MeanPPU(prescribing, q.OrgType, q.OrgID)
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}
	if ok {
		response.MeanPPU = &mean
	}

	RespondWithJSON(w, http.StatusOK, response)
}

// TotalSavingsResponse is the body of /savings/total. Money is in pounds.
type TotalSavingsResponse struct {
	orgQuery
	TotalSavings float64 `json:"total_savings"`
}

// ServeTotalSavings returns the organisation's total possible saving
func (h *HTTPHandlerImpl) ServeTotalSavings(w http.ResponseWriter, r *http.Request) {
	q, code, err := h.parseOrgQuery(r)
	if err != nil {
		logging.Warn("Unusual user input", "query", r.URL.RawQuery, "error", err)
		RespondWithError(w, code, err.Error())
		return
	}

	total, err := h.engine.GetTotalSavingsForOrg(r.Context(), q.Date, q.OrgType, q.OrgID)
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, TotalSavingsResponse{orgQuery: q, TotalSavings: total})
}

// ServeSubstitutionSets lists the current substitution sets, optionally
// filtered by a case-insensitive name search in q
func (h *HTTPHandlerImpl) ServeSubstitutionSets(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("q")
	if search != "" {
		if err := h.validator.ValidateInput(search); err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		search = strings.ToLower(search)
	}

	collection, err := h.sets.Sets(r.Context())
	if err != nil {
		respondWithEngineError(w, r, err)
		return
	}

	results := []*substitution.SubstitutionSet{}
	for _, set := range collection.Values() {
		if search == "" || strings.Contains(strings.ToLower(set.Name), search) {
			results = append(results, set)
		}
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"count": len(results),
		"sets":  results,
	})
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status string         `json:"status"`
	Uptime string         `json:"uptime"`
	Data   map[string]any `json:"data"`
	System map[string]any `json:"system"`
}

// HealthCheck returns service health with the checker's HTTP status
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.healthChecker.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Duration(0)
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		uptime = time.Since(start)
	}

	RespondWithJSON(w, httpStatus, HealthResponse{
		Status: status,
		Uptime: formatUptimeHuman(uptime),
		Data:   data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	})
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
