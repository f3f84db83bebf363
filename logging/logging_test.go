package logging

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWeeklyWriterNamesFileByISOWeek(t *testing.T) {
	tempDir := t.TempDir()
	w := NewWeeklyWriter(tempDir, 4, 0)
	w.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }
	defer w.Close()

	if _, err := w.Write([]byte("first line\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tempDir, "savings-2026-W42.log"))
	if err != nil {
		t.Fatalf("expected weekly log file: %v", err)
	}
	if string(content) != "first line\n" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestWeeklyWriterRotatesOnNewWeek(t *testing.T) {
	tempDir := t.TempDir()
	current := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	w := NewWeeklyWriter(tempDir, 0, 0)
	w.now = func() time.Time { return current }
	defer w.Close()

	w.Write([]byte("week 42\n"))
	current = current.Add(7 * 24 * time.Hour)
	w.Write([]byte("week 43\n"))

	for name, want := range map[string]string{
		"savings-2026-W42.log": "week 42\n",
		"savings-2026-W43.log": "week 43\n",
	} {
		content, err := os.ReadFile(filepath.Join(tempDir, name))
		if err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
		if string(content) != want {
			t.Errorf("%s: got %q, want %q", name, content, want)
		}
	}
}

func TestWeeklyWriterRotatesOnSize(t *testing.T) {
	tempDir := t.TempDir()
	w := NewWeeklyWriter(tempDir, 0, 10)
	w.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }
	defer w.Close()

	w.Write([]byte("12345678\n"))
	w.Write([]byte("abcdefgh\n"))

	if _, err := os.Stat(filepath.Join(tempDir, "savings-2026-W42.log")); err != nil {
		t.Errorf("expected base file: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(tempDir, "savings-2026-W42_01.log"))
	if err != nil {
		t.Fatalf("expected continuation file: %v", err)
	}
	if string(content) != "abcdefgh\n" {
		t.Errorf("unexpected continuation content %q", content)
	}
}

func TestWeeklyWriterCleansUpOldFiles(t *testing.T) {
	tempDir := t.TempDir()
	old := filepath.Join(tempDir, "savings-2020-W01.log")
	unrelated := filepath.Join(tempDir, "notes.txt")
	for _, path := range []string{old, unrelated} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-60 * 24 * time.Hour)
	os.Chtimes(old, stale, stale)
	os.Chtimes(unrelated, stale, stale)

	w := NewWeeklyWriter(tempDir, 2, 0)
	defer w.Close()
	w.Write([]byte("trigger\n"))

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed", old)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Errorf("unrelated file should be kept: %v", err)
	}
}

func TestSetupLoggerWritesJSONToFile(t *testing.T) {
	tempDir := t.TempDir()
	logger, closer := SetupLogger(Options{Dir: tempDir, Level: "info"})
	if closer == nil {
		t.Fatal("expected a closer when a directory is configured")
	}

	logger.Debug("hidden")
	logger.Info("visible", "org_type", "ccg")
	closer.Close()

	entries, err := os.ReadDir(tempDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v (err %v)", entries, err)
	}
	content, _ := os.ReadFile(filepath.Join(tempDir, entries[0].Name()))
	if !strings.Contains(string(content), `"msg":"visible"`) || !strings.Contains(string(content), `"org_type":"ccg"`) {
		t.Errorf("expected JSON record, got %s", content)
	}
	if strings.Contains(string(content), "hidden") {
		t.Errorf("debug record should be filtered at info level")
	}
}

func TestRequestLogger(t *testing.T) {
	var logOutput strings.Builder
	logger := slog.New(slog.NewTextHandler(&logOutput, &slog.HandlerOptions{Level: slog.LevelInfo}))

	status := http.StatusOK
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte("ok"))
	}))

	t.Run("probes are not logged", func(t *testing.T) {
		for _, path := range []string{"/health", "/metrics"} {
			logOutput.Reset()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
			if logOutput.Len() != 0 {
				t.Errorf("expected no logs for %s, got %s", path, logOutput.String())
			}
		}
	})

	t.Run("queries are logged with request id", func(t *testing.T) {
		logOutput.Reset()
		req := httptest.NewRequest(http.MethodGet, "/price-per-unit?date=2026-08-01&org_type=ccg", nil)
		req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		logs := logOutput.String()
		for _, want := range []string{"request_id=req-42", "path=/price-per-unit", "status_code=200", "bytes_written=2", "org_type=ccg"} {
			if !strings.Contains(logs, want) {
				t.Errorf("expected %q in logs, got %s", want, logs)
			}
		}
	})

	t.Run("savings parameters are structured", func(t *testing.T) {
		logOutput.Reset()
		target := "/price-per-unit/breakdown?date=2026-08&org_type=practice&entity_code=A81001&set=0601022B0AAABAB&utm_source=mail&x=1"
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))

		logs := logOutput.String()
		for _, want := range []string{
			"query.date=2026-08",
			"query.org_type=practice",
			"query.entity_code=A81001",
			"query.set=0601022B0AAABAB",
			"query.other_params=2",
		} {
			if !strings.Contains(logs, want) {
				t.Errorf("expected %q in logs, got %s", want, logs)
			}
		}
		if strings.Contains(logs, "utm_source") {
			t.Errorf("unknown parameters should not be logged, got %s", logs)
		}
	})

	t.Run("requests without parameters have no query group", func(t *testing.T) {
		logOutput.Reset()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/substitution-sets", nil))
		if strings.Contains(logOutput.String(), "query") {
			t.Errorf("expected no query attributes, got %s", logOutput.String())
		}
	})

	t.Run("server errors are logged at error level", func(t *testing.T) {
		logOutput.Reset()
		status = http.StatusInternalServerError
		defer func() { status = http.StatusOK }()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/savings/total", nil))

		if !strings.Contains(logOutput.String(), "level=ERROR") {
			t.Errorf("expected error level, got %s", logOutput.String())
		}
	})
}
