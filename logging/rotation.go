package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// WeeklyWriter writes to one log file per ISO week (savings-2026-W42.log),
// starting a numbered continuation file when the size limit is reached, and
// removes files older than the retention period when it rotates.
type WeeklyWriter struct {
	dir         string
	retention   time.Duration
	maxFileSize int64
	now         func() time.Time

	mu       sync.Mutex
	file     *os.File
	week     string
	sequence int
	size     int64
}

// NewWeeklyWriter creates a writer. A zero maxFileSize disables size rotation.
func NewWeeklyWriter(dir string, retentionWeeks int, maxFileSize int64) *WeeklyWriter {
	return &WeeklyWriter{
		dir:         dir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
	}
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (w *WeeklyWriter) fileName() string {
	if w.sequence == 0 {
		return fmt.Sprintf("savings-%s.log", w.week)
	}
	return fmt.Sprintf("savings-%s_%02d.log", w.week, w.sequence)
}

// Write implements io.Writer
func (w *WeeklyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	week := weekKey(w.now())
	switch {
	case w.file == nil || week != w.week:
		w.week = week
		w.sequence = 0
		if err := w.open(); err != nil {
			return 0, err
		}
		w.cleanup()
	case w.maxFileSize > 0 && w.size+int64(len(p)) > w.maxFileSize && w.size > 0:
		w.sequence++
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// open closes the current file and opens (or appends to) the file for the
// current week and sequence. Caller holds the lock.
func (w *WeeklyWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	for {
		path := filepath.Join(w.dir, w.fileName())
		info, err := os.Stat(path)
		if err == nil && w.maxFileSize > 0 && info.Size() >= w.maxFileSize {
			w.sequence++
			continue
		}

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		w.file = file
		w.size = 0
		if info != nil {
			w.size = info.Size()
		}
		return nil
	}
}

// cleanup removes log files last modified before the retention cutoff
func (w *WeeklyWriter) cleanup() {
	if w.retention <= 0 {
		return
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	cutoff := w.now().Add(-w.retention)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "savings-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(w.dir, name))
	}
}

// Close closes the current file
func (w *WeeklyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
