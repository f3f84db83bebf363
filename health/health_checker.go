// Package health reports whether the savings service has fresh data and can
// reach its backing services.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
)

const pingTimeout = 2 * time.Second

// Pinger is a backing service that can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a named backing service. When a required dependency is down
// the service cannot answer savings queries; an optional one only degrades it.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Required bool
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore    interfaces.DataStore
	refreshTimes []time.Duration
	dependencies []Dependency
	now          func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies.
// refreshTimes are offsets from midnight, as returned by
// config.ParseRefreshTimes.
func NewHealthChecker(dataStore interfaces.DataStore, refreshTimes []time.Duration, dependencies ...Dependency) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore:    dataStore,
		refreshTimes: refreshTimes,
		dependencies: dependencies,
		now:          time.Now,
	}
}

// HealthCheck returns HTTP-specific health data. Used by /health.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	store := h.dataStore.MatrixStore()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := h.now().Sub(lastUpdate)
	requiredDown, optionalDown, dependencies := h.pingDependencies()

	switch {
	case store.RowCount() == 0 || len(store.Dates()) == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case requiredDown:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 24*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && dataAge > 6*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case optionalDown:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"latest_date":    store.LatestDate(),
		"months":         len(store.Dates()),
		"practices":      store.RowCount(),
		"presentations":  len(store.PrescribedCodes()),
		"is_updating":    isUpdating,
		"next_update":    h.CalculateNextUpdate().Format(time.RFC3339),
		"dependencies":   dependencies,
	}

	return status, data, httpStatus
}

func (h *HealthCheckerImpl) pingDependencies() (requiredDown, optionalDown bool, results map[string]string) {
	results = make(map[string]string, len(h.dependencies))
	for _, dep := range h.dependencies {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		err := dep.Pinger.Ping(ctx)
		cancel()

		if err == nil {
			results[dep.Name] = "up"
			continue
		}
		results[dep.Name] = "down"
		if dep.Required {
			requiredDown = true
		} else {
			optionalDown = true
		}
	}
	return requiredDown, optionalDown, results
}

// CalculateNextUpdate returns the next scheduled update time
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	return nextUpdateAfter(h.now(), h.refreshTimes)
}

// nextUpdateAfter finds the first refresh time strictly after now, rolling
// over to the earliest time tomorrow
func nextUpdateAfter(now time.Time, refreshTimes []time.Duration) time.Time {
	if len(refreshTimes) == 0 {
		return time.Time{}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	earliest := refreshTimes[0]
	var next time.Time
	for _, offset := range refreshTimes {
		if offset < earliest {
			earliest = offset
		}
		candidate := midnight.Add(offset)
		if candidate.After(now) && (next.IsZero() || candidate.Before(next)) {
			next = candidate
		}
	}
	if next.IsZero() {
		return midnight.AddDate(0, 0, 1).Add(earliest)
	}
	return next
}
