package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const prefix = "mediagrab_"

// labelSep joins label values into a map key. It cannot occur in a path.
const labelSep = "\xff"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	runBuckets     = []float64{1, 2, 5, 10, 15, 30, 60, 120, 300}
)

// Histogram counts observations into fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // per bucket, not cumulative
	count  uint64
	sum    float64
}

func newHistogram(bounds []float64) *Histogram {
	return &Histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

func (h *Histogram) write(sb *strings.Builder, name string, labels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cumulative uint64
	for i, bound := range h.bounds {
		cumulative += h.counts[i]
		fmt.Fprintf(sb, "%s_bucket%s %d\n", name, braces(append(labels, fmt.Sprintf("le=\"%g\"", bound))), cumulative)
	}
	fmt.Fprintf(sb, "%s_bucket%s %d\n", name, braces(append(labels, `le="+Inf"`)), h.count)
	fmt.Fprintf(sb, "%s_sum%s %f\n", name, braces(labels), h.sum)
	fmt.Fprintf(sb, "%s_count%s %d\n", name, braces(labels), h.count)
}

func braces(pairs []string) string {
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// family is a metric name with a fixed set of label names. Each distinct
// combination of label values gets its own child.
type family[T any] struct {
	name   string
	help   string
	kind   string
	labels []string
	newT   func() *T

	mu       sync.RWMutex
	children map[string]*T
}

func newFamily[T any](name, help, kind string, newT func() *T, labels ...string) *family[T] {
	return &family[T]{name: name, help: help, kind: kind, labels: labels, newT: newT, children: make(map[string]*T)}
}

func (f *family[T]) with(values ...string) *T {
	key := strings.Join(values, labelSep)

	f.mu.RLock()
	child := f.children[key]
	f.mu.RUnlock()
	if child != nil {
		return child
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if child = f.children[key]; child == nil {
		child = f.newT()
		f.children[key] = child
	}
	return child
}

func (f *family[T]) pairs(key string) []string {
	if len(f.labels) == 0 {
		return nil
	}
	values := strings.Split(key, labelSep)
	pairs := make([]string, len(f.labels))
	for i, label := range f.labels {
		pairs[i] = fmt.Sprintf("%s=%q", label, values[i])
	}
	return pairs
}

func (f *family[T]) write(sb *strings.Builder, each func(sb *strings.Builder, name string, labels []string, child *T)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.children) == 0 {
		return
	}

	header(sb, f.name, f.help, f.kind)
	for _, key := range sortedKeys(f.children) {
		each(sb, prefix+f.name, f.pairs(key), f.children[key])
	}
	sb.WriteString("\n")
}

type counter = family[atomic.Uint64]

func newCounter(name, help string, labels ...string) *counter {
	return newFamily(name, help, "counter", func() *atomic.Uint64 { return new(atomic.Uint64) }, labels...)
}

func writeCounter(sb *strings.Builder, name string, labels []string, c *atomic.Uint64) {
	fmt.Fprintf(sb, "%s%s %d\n", name, braces(labels), c.Load())
}

func writeHistogram(sb *strings.Builder, name string, labels []string, h *Histogram) {
	h.write(sb, name, labels)
}

// Metrics holds request and task metrics and renders them in the Prometheus
// text format.
type Metrics struct {
	requests *counter
	latency  *family[Histogram]

	transitions   *counter
	removed       *counter
	artifactBytes *counter
	runDuration   *family[Histogram]

	mu         sync.RWMutex
	lastStatus map[string]string // task id -> last seen status
	samplers   map[string]sampler

	startTime time.Time
}

type sampler struct {
	help string
	fn   func() float64
}

// New creates a new Metrics instance
func New() *Metrics {
	latency := func() *Histogram { return newHistogram(latencyBuckets) }
	runTime := func() *Histogram { return newHistogram(runBuckets) }

	m := &Metrics{
		requests:      newCounter("http_requests_total", "HTTP requests by route and status class", "endpoint", "method", "status_class"),
		latency:       newFamily("http_request_duration_seconds", "HTTP request latency", "histogram", latency, "endpoint", "method"),
		transitions:   newCounter("task_transitions_total", "Task status transitions", "status"),
		removed:       newCounter("tasks_removed_total", "Tasks removed or cleared"),
		artifactBytes: newCounter("artifact_bytes_total", "Bytes of artifacts produced"),
		runDuration:   newFamily("task_run_duration_seconds", "Run time of completed tasks", "histogram", runTime),
		lastStatus:    make(map[string]string),
		samplers:      make(map[string]sampler),
		startTime:     time.Now(),
	}
	// Unlabelled series are always exported, even at zero.
	m.removed.with()
	m.artifactBytes.with()
	m.runDuration.with()
	return m
}

var defaultMetrics = New()

// Default returns the process-wide metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records one served request.
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	endpoint := normalizeEndpoint(path)
	class := fmt.Sprintf("%dxx", statusCode/100)

	m.requests.with(endpoint, method, class).Add(1)
	m.latency.with(endpoint, method).Observe(duration.Seconds())
}

// idParents are collections whose next path segment is an identifier.
var idParents = map[string]bool{"tasks": true, "search": true}

// literalChildren are fixed routes under an id parent.
var literalChildren = map[string]bool{"trending": true}

// normalizeEndpoint replaces task and catalog ids with {id} so each route is
// one series.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" && idParents[parts[i-1]] && !literalChildren[parts[i]] {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// RecordTransition counts a task entering status.
func (m *Metrics) RecordTransition(status string) {
	m.transitions.with(status).Add(1)
}

// RecordRemoval counts a removed task.
func (m *Metrics) RecordRemoval() {
	m.removed.with().Add(1)
}

// RecordArtifact records a produced artifact and how long its run took.
func (m *Metrics) RecordArtifact(size int64, run time.Duration) {
	m.artifactBytes.with().Add(uint64(size))
	m.runDuration.with().Observe(run.Seconds())
}

// Sample registers a gauge read from fn on every scrape. name is used
// without the metric prefix.
func (m *Metrics) Sample(name, help string, fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samplers[name] = sampler{help: help, fn: fn}
}

func sortedKeys[V any](set map[string]V) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func header(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s%s %s\n", prefix, name, kind)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(m.render()))
	}
}

func (m *Metrics) render() string {
	var sb strings.Builder

	header(&sb, "uptime_seconds", "Time since the server started", "gauge")
	fmt.Fprintf(&sb, "%suptime_seconds %f\n\n", prefix, time.Since(m.startTime).Seconds())

	m.mu.RLock()
	samplers := make(map[string]sampler, len(m.samplers))
	for k, v := range m.samplers {
		samplers[k] = v
	}
	m.mu.RUnlock()

	// Samplers may take their own locks, so they run outside ours.
	for _, name := range sortedKeys(samplers) {
		s := samplers[name]
		header(&sb, name, s.help, "gauge")
		fmt.Fprintf(&sb, "%s%s %g\n\n", prefix, name, s.fn())
	}

	m.transitions.write(&sb, writeCounter)
	m.removed.write(&sb, writeCounter)
	m.artifactBytes.write(&sb, writeCounter)
	m.runDuration.write(&sb, writeHistogram)
	m.requests.write(&sb, writeCounter)
	m.latency.write(&sb, writeHistogram)

	return sb.String()
}

// MetricsMiddleware records the route, status and latency of every request.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			m.RecordRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	w.status = http.StatusSwitchingProtocols
	w.written = true
	return hj.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
