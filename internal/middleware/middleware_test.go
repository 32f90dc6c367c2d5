package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler("{}"), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler("{}"))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("expected origin echoed, got %q", got)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rr.Code)
		}
		if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
			t.Error("expected PATCH to be allowed")
		}
	})
}

func TestETag(t *testing.T) {
	h := ETag(okHandler(`{"data":[]}`))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/formats", nil))
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}
	if rr.Body.String() != `{"data":[]}` {
		t.Errorf("body not passed through: %q", rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/formats", nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rr.Code)
	}
}

func TestETag_SkipsErrorsAndArtifacts(t *testing.T) {
	failing := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{}}`))
	}))
	rr := httptest.NewRecorder()
	failing.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/x", nil))
	if rr.Code != http.StatusNotFound || rr.Header().Get("ETag") != "" {
		t.Errorf("expected untagged 404, got %d etag=%q", rr.Code, rr.Header().Get("ETag"))
	}

	rr = httptest.NewRecorder()
	ETag(okHandler("bytes")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/x/artifact", nil))
	if rr.Header().Get("ETag") != "" {
		t.Error("artifact downloads should not be buffered for ETag")
	}
}

func TestGzip(t *testing.T) {
	body := strings.Repeat(`{"id":"x"}`, 100)
	h := Gzip(okHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("expected gzip encoding")
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != body {
		t.Error("decompressed body mismatch")
	}
}

func TestGzip_SkipsArtifacts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/x/artifact", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	Gzip(okHandler("RIFF")).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "" || rr.Body.String() != "RIFF" {
		t.Error("artifact should be sent uncompressed")
	}
}

func TestGzip_OnlyCompressibleTypes(t *testing.T) {
	binary := Gzip(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/webm")
		w.Write([]byte("payload"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/other", nil)
	req.Header.Set("Accept-Encoding", "br, gzip;q=0.8")
	rr := httptest.NewRecorder()
	binary.ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "" || rr.Body.String() != "payload" {
		t.Error("non-text bodies should pass through")
	}
	if rr.Header().Get("Vary") != "Accept-Encoding" {
		t.Errorf("expected Vary header, got %q", rr.Header().Get("Vary"))
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"deflate, GZIP;q=0.5", true},
		{"br", false},
		{"", false},
		{"x-gzip-ish", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Accept-Encoding", tt.header)
		if got := acceptsGzip(r); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestMatchesETag(t *testing.T) {
	etag := `"abc"`
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"abd"`, false},
	}
	for _, tt := range tests {
		if got := matchesETag(tt.header, etag); got != tt.want {
			t.Errorf("matchesETag(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestETagThroughGzip(t *testing.T) {
	h := Chain(okHandler(strings.Repeat("{}", 50)), Gzip, ETag)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	etag := rr.Header().Get("ETag")
	if etag == "" || rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected tagged gzip response, got etag=%q encoding=%q", etag, rr.Header().Get("Content-Encoding"))
	}

	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Errorf("expected empty 304, got %d with %d bytes", rr.Code, rr.Body.Len())
	}
	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("304 must not be compressed")
	}
}

func TestTiming(t *testing.T) {
	rr := httptest.NewRecorder()
	Timing(okHandler("{}")).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	if !strings.HasPrefix(rr.Header().Get("Server-Timing"), "total;dur=") {
		t.Errorf("expected Server-Timing header, got %q", rr.Header().Get("Server-Timing"))
	}
}
