package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/download"
)

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("GET", "/api/v1/search", 200, 100*time.Millisecond)
	m.RecordRequest("GET", "/api/v1/search", 200, 150*time.Millisecond)
	m.RecordRequest("GET", "/api/v1/search", 500, 50*time.Millisecond)

	// Request the metrics handler
	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "mediagrab_http_requests_total") {
		t.Error("expected mediagrab_http_requests_total metric")
	}
	if !strings.Contains(body, "mediagrab_http_request_duration_seconds") {
		t.Error("expected mediagrab_http_request_duration_seconds metric")
	}
}

func TestMetrics_Uptime(t *testing.T) {
	m := New()

	// Wait a bit to ensure uptime is > 0
	time.Sleep(10 * time.Millisecond)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	if !strings.Contains(body, "mediagrab_uptime_seconds") {
		t.Error("expected mediagrab_uptime_seconds metric")
	}
}

func TestMetrics_EndpointNormalization(t *testing.T) {
	m := New()

	// These should be normalized to the same endpoint
	m.RecordRequest("GET", "/api/v1/tasks/123e4567-e89b-12d3-a456-426614174000", 200, 10*time.Millisecond)
	m.RecordRequest("GET", "/api/v1/tasks/550e8400-e29b-41d4-a716-446655440000", 200, 10*time.Millisecond)

	handler := m.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	body := w.Body.String()

	// Should have normalized the UUID to {id}
	if !strings.Contains(body, "/api/v1/tasks/{id}") {
		t.Errorf("expected normalized endpoint /api/v1/tasks/{id}, got:\n%s", body)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrappedHandler := MetricsMiddleware(m)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// Check that metrics were recorded
	metricsHandler := m.Handler()
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsW := httptest.NewRecorder()

	metricsHandler(metricsW, metricsReq)

	body := metricsW.Body.String()

	if !strings.Contains(body, "/api/v1/test") {
		t.Errorf("expected endpoint /api/v1/test in metrics, got:\n%s", body)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/v1/tasks":                          "/api/v1/tasks",
		"/api/v1/tasks/abc/cancel":               "/api/v1/tasks/{id}/cancel",
		"/api/v1/search":                         "/api/v1/search",
		"/api/v1/search/trending":                "/api/v1/search/trending",
		"/api/v1/search/yt_0001/recommendations": "/api/v1/search/{id}/recommendations",
		"/api/v1/validate/sources":               "/api/v1/validate/sources",
	}
	for path, want := range tests {
		if got := normalizeEndpoint(path); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMetricsMiddleware_StatusClass(t *testing.T) {
	m := New()
	h := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil))

	want := `mediagrab_http_requests_total{endpoint="/api/v1/tasks/{id}",method="GET",status_class="4xx"} 1`
	if body := scrape(t, m); !strings.Contains(body, want) {
		t.Errorf("missing %q in:\n%s", want, body)
	}
}

func TestHistogram_Cumulative(t *testing.T) {
	h := newHistogram([]float64{1, 5})
	for _, v := range []float64{0.5, 1, 3, 9} {
		h.Observe(v)
	}

	var sb strings.Builder
	h.write(&sb, "x", []string{`k="v"`})
	for _, want := range []string{
		`x_bucket{k="v",le="1"} 2`,
		`x_bucket{k="v",le="5"} 3`,
		`x_bucket{k="v",le="+Inf"} 4`,
		`x_count{k="v"} 4`,
	} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("missing %q in:\n%s", want, sb.String())
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestMetrics_Sample(t *testing.T) {
	m := New()
	n := 0
	m.Sample("things", "Things", func() float64 { n++; return float64(n) })

	if body := scrape(t, m); !strings.Contains(body, "mediagrab_things 1\n") {
		t.Errorf("expected sampled gauge, got:\n%s", body)
	}
	if body := scrape(t, m); !strings.Contains(body, "mediagrab_things 2\n") {
		t.Errorf("expected sampler to run per scrape, got:\n%s", body)
	}
}

type fakeSource struct {
	fn     func(download.Event)
	active int
	stats  download.Stats
}

func (f *fakeSource) OnUpdate(_ string, fn func(download.Event)) func() {
	f.fn = fn
	return func() { f.fn = nil }
}

func (f *fakeSource) ActiveRuns() int { return f.active }
func (f *fakeSource) Stats() download.Stats { return f.stats }

func TestMetrics_ObserveTasks(t *testing.T) {
	m := New()
	src := &fakeSource{active: 2, stats: download.Stats{download.StatusRunning: 2, download.StatusCompleted: 1}}
	stop := m.ObserveTasks(src)

	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Second)
	seq := uint64(0)
	emit := func(kind download.EventKind, task download.Task) {
		seq++
		src.fn(download.Event{Seq: seq, Kind: kind, Task: task})
	}

	emit(download.EventUpdated, download.Task{ID: "a", Status: download.StatusPending})
	emit(download.EventUpdated, download.Task{ID: "a", Status: download.StatusRunning, Progress: 10})
	emit(download.EventUpdated, download.Task{ID: "a", Status: download.StatusRunning, Progress: 20})
	emit(download.EventUpdated, download.Task{
		ID: "a", Status: download.StatusCompleted, Progress: 100,
		Artifact:  &download.ArtifactRef{Size: 1024},
		StartedAt: &started, CompletedAt: &finished,
	})
	emit(download.EventRemoved, download.Task{ID: "a", Status: download.StatusCompleted})

	body := scrape(t, m)
	for _, want := range []string{
		`mediagrab_task_transitions_total{status="pending"} 1`,
		`mediagrab_task_transitions_total{status="running"} 1`,
		`mediagrab_task_transitions_total{status="completed"} 1`,
		"mediagrab_tasks_removed_total 1",
		"mediagrab_artifact_bytes_total 1024",
		"mediagrab_task_run_duration_seconds_count 1",
		`mediagrab_task_run_duration_seconds_bucket{le="5"} 1`,
		"mediagrab_active_runs 2",
		"mediagrab_tasks_running 2",
		"mediagrab_tasks_completed 1",
		"mediagrab_tasks_failed 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}

	stop()
	if src.fn != nil {
		t.Error("expected stop to unsubscribe")
	}
}

func TestMetrics_ConcurrentRecord(t *testing.T) {
	m := New()
	done := make(chan struct{})
	for i := range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := range 100 {
				m.RecordRequest("GET", fmt.Sprintf("/api/v1/tasks/%d", j), 200+i, time.Millisecond)
				m.RecordTransition("running")
			}
		}()
	}
	for range 8 {
		<-done
	}

	body := scrape(t, m)
	if !strings.Contains(body, `mediagrab_http_requests_total{endpoint="/api/v1/tasks/{id}",method="GET",status_class="2xx"} 800`) {
		t.Errorf("expected 800 requests, got:\n%s", body)
	}
	if !strings.Contains(body, `mediagrab_task_transitions_total{status="running"} 800`) {
		t.Errorf("expected 800 transitions, got:\n%s", body)
	}
}
