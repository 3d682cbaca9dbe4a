package http

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/qrbn-app/qurban-crypto-app/internal/metrics"
)

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		logger.Printf(
			"request method=%s path=%s status=%d duration=%s",
			r.Method,
			r.URL.Path,
			rec.status,
			elapsed,
		)
		metrics.HTTPLatency.WithLabelValues(r.Method, routeLabel(r.URL.Path)).Observe(elapsed.Seconds())
	})
}

// routeLabel collapses resource IDs out of the path so the latency metric
// keeps a bounded label set.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch parts[0] {
	case "pools", "purchases", "buyers":
		if len(parts) >= 2 {
			parts[1] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
