package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/logger"
)

const slowRequestThreshold = 500 * time.Millisecond

// Timing adds a Server-Timing header for browser DevTools and logs slow
// requests. The header carries the time until the response headers were
// written.
func Timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocket(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &timingResponseWriter{ResponseWriter: w, start: start, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if duration := time.Since(start); duration > slowRequestThreshold {
			logger.Warn(r.Context(), "slow request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
		}
	})
}

// timingResponseWriter sets Server-Timing just before the header goes out.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.statusCode = code
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "total;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
