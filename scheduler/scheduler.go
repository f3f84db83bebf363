// Package scheduler reloads the prescribing snapshot on a fixed daily
// schedule and keeps the substitution sets warm after each reload.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/metrics"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/substitution"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	// DefaultRefreshTimes are the daily reload times, in gocron's At format
	DefaultRefreshTimes = "06:00;18:00"
	staleAfter          = 25 * time.Hour
	loadTimeout         = 10 * time.Minute
)

// SetsRefresher is satisfied by *substitution.Provider
type SetsRefresher interface {
	Invalidate()
	Sets(ctx context.Context) (*substitution.Collection, error)
}

// Scheduler handles data updates and staleness monitoring
type Scheduler struct {
	dataStore    interfaces.DataStore
	loader       interfaces.PrescribingLoader
	sets         SetsRefresher
	validator    interfaces.DataValidator
	refreshTimes string
	scheduler    *gocron.Scheduler
	stop         chan struct{}
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// An empty refreshTimes uses DefaultRefreshTimes.
func NewScheduler(dataStore interfaces.DataStore, loader interfaces.PrescribingLoader, sets SetsRefresher, validator interfaces.DataValidator, refreshTimes string) *Scheduler {
	if refreshTimes == "" {
		refreshTimes = DefaultRefreshTimes
	}
	return &Scheduler{
		dataStore:    dataStore,
		loader:       loader,
		sets:         sets,
		validator:    validator,
		refreshTimes: refreshTimes,
		scheduler:    gocron.NewScheduler(time.Local),
		stop:         make(chan struct{}),
	}
}

// Start performs the initial load, then schedules the daily reloads and the
// hourly staleness check
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(s.refreshTimes).Do(func() {
		if err := s.updateData(); err != nil {
			logging.Error("Failed to update data", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "error", err, "refresh_times", s.refreshTimes)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.scheduler.StartAsync()
	s.startHealthMonitoring()

	return nil
}

// Stop stops the scheduler and the staleness monitor. It must be called at
// most once.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	close(s.stop)
}

// updateData reloads the matrix store and practice register, swaps them in,
// then rebuilds the substitution sets against the new prescribing data
func (s *Scheduler) updateData() error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		metrics.DataRefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.dataStore.EndUpdate()

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	logging.Info("Starting prescribing data update")
	start := time.Now()

	store, err := s.loader.LoadMatrixStore(ctx)
	if err != nil {
		metrics.DataRefreshTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to load prescribing: %w", err)
	}

	practices, err := s.loader.Practices(ctx)
	if err != nil {
		metrics.DataRefreshTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to load practices: %w", err)
	}

	s.logDataQuality(s.validator.ReportDataQuality(store, practices))

	registry := orgs.NewRegistry(practices, store.PracticeOffsets())
	s.dataStore.UpdateData(store, registry)

	// The sets only contain presentations with prescribing, so they are
	// stale as soon as the store changes
	s.sets.Invalidate()
	collection, err := s.sets.Sets(ctx)
	if err != nil {
		// The snapshot is installed; sets are rebuilt on the next request
		logging.Warn("Failed to warm substitution sets", "error", err)
	} else {
		logging.Info("Substitution sets warmed", "sets", collection.Len())
	}

	metrics.DataRefreshTotal.WithLabelValues("success").Inc()
	logging.Info("Prescribing data update completed",
		"duration", time.Since(start).String(),
		"dates", len(store.Dates()),
		"practices", registry.Len(),
		"rows", store.RowCount(),
	)

	return nil
}

func (s *Scheduler) logDataQuality(report *interfaces.DataQualityReport) {
	if report.PracticesWithoutRegisterEntry > 0 {
		logging.Warn("Practices with prescribing but no register entry",
			"count", report.PracticesWithoutRegisterEntry,
			"codes", report.PracticesWithoutRegisterEntryList,
		)
	}
	if report.StandardPracticesWithoutCCG > 0 {
		logging.Warn("Standard practices without a CCG",
			"count", report.StandardPracticesWithoutCCG,
			"codes", report.StandardPracticesWithoutCCGList,
		)
	}
	if report.PresentationsWithoutName > 0 {
		logging.Warn("Presentations without a name",
			"count", report.PresentationsWithoutName,
			"codes", report.PresentationsWithoutNameList,
		)
	}
	if len(report.DatesWithoutPrescribing) > 0 {
		logging.Warn("Months without any prescribing", "dates", report.DatesWithoutPrescribing)
	}
}

// startHealthMonitoring warns when the data has not been refreshed recently
func (s *Scheduler) startHealthMonitoring() {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				lastUpdate := s.dataStore.GetLastUpdated()
				if time.Since(lastUpdate) > staleAfter {
					logging.Warn("Data hasn't been updated in over 25 hours", "last_updated", lastUpdate)
				}
			case <-s.stop:
				return
			}
		}
	}()
}
