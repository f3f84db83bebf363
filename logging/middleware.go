package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// queryAttrs are the request parameters worth a structured attribute. Any
// other parameters are counted, not logged.
var queryAttrs = []string{"date", "org_type", "entity_code", "set", "q"}

// Requests slower than this are logged at warn level
const slowRequestThreshold = 5 * time.Second

// RequestLogger logs one line per savings request with the organisation and
// set asked about. Health probes and metric scrapes are skipped.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = "unknown"
			}

			attrs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
			}
			if query, ok := requestQuery(r); ok {
				attrs = append(attrs, query)
			}
			attrs = append(attrs,
				"remote_addr", r.RemoteAddr,
				"status_code", rec.status,
				"bytes_written", rec.bytes,
				"duration_ms", duration.Milliseconds(),
			)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case duration > slowRequestThreshold:
				level = slog.LevelWarn
			case rec.status >= http.StatusBadRequest:
				attrs = append(attrs, "user_agent", r.UserAgent())
			}
			logger.Log(r.Context(), level, "HTTP request", attrs...)
		})
	}
}

// requestQuery groups the known parameters under "query", reporting false
// for a request without parameters
func requestQuery(r *http.Request) (slog.Attr, bool) {
	if r.URL.RawQuery == "" {
		return slog.Attr{}, false
	}

	params := r.URL.Query()

	var attrs []any
	for _, name := range queryAttrs {
		if value := params.Get(name); value != "" {
			attrs = append(attrs, name, value)
		}
		params.Del(name)
	}
	if len(params) > 0 {
		attrs = append(attrs, "other_params", len(params))
	}
	return slog.Group("query", attrs...), len(attrs) > 0
}

// statusRecorder captures the status code and body size
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)
	w.bytes += n
	return n, err
}
