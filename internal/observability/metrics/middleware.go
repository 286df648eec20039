package metrics

import (
	"log/slog"
	"net/http"
	"time"
)

// statusWriter captures the status code an ops handler writes. The ops
// surface serves only /healthz JSON and the /metrics text exposition, so the
// richer ResponseWriter side-interfaces (hijacking, server push) are not
// forwarded; Flush is kept because the exposition writer streams.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Instrument wraps the ops-surface mux: every request is counted and timed
// on rec (falling back to the default recorder when nil) and emitted as one
// structured log line when logger is non-nil.
func Instrument(rec *Recorder, logger *slog.Logger, next http.Handler) http.Handler {
	if rec == nil {
		rec = Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		rec.ObserveRequest(r.Method, r.URL.Path, sw.status, duration)
		if logger != nil {
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		}
	})
}
