package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// bufferedWriter holds a response back until its validator is known.
type bufferedWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) flush() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(w.status)
	w.ResponseWriter.Write(w.body.Bytes())
}

// entityTag is a strong validator over the response body.
func entityTag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + base64.RawURLEncoding.EncodeToString(sum[:12]) + `"`
}

// matchesETag evaluates an If-None-Match header against etag. Weak
// comparison applies, as RFC 9110 requires for GET.
func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// ETag tags successful GET responses and answers matching If-None-Match
// requests with 304. Pollers of a settled task get an empty reply.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || isWebSocket(r) || isArtifact(r) || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		bw := &bufferedWriter{ResponseWriter: w}
		next.ServeHTTP(bw, r)

		if bw.status != 0 && bw.status != http.StatusOK {
			bw.flush()
			return
		}

		etag := entityTag(bw.body.Bytes())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")

		if inm := r.Header.Get("If-None-Match"); inm != "" && matchesETag(inm, etag) {
			w.Header().Del("Content-Type")
			w.Header().Del("Content-Length")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		bw.flush()
	})
}
