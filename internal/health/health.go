package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/logger"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// RunCounter reports how many simulations are in flight.
type RunCounter interface {
	ActiveRuns() int
}

// Probe checks one external dependency, such as a Redis ping.
type Probe func(ctx context.Context) error

type dependency struct {
	name     string
	probe    Probe
	optional bool
}

// Checker reports liveness and readiness of the service.
type Checker struct {
	engine  RunCounter
	version string
	timeout time.Duration
	started time.Time
	log     *logger.Logger

	mu   sync.RWMutex
	deps []dependency
}

// CheckerConfig holds configuration for the health checker
type CheckerConfig struct {
	Engine  RunCounter
	Version string
	Timeout time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		engine:  cfg.Engine,
		version: cfg.Version,
		timeout: timeout,
		started: time.Now(),
		log:     logger.Default().WithComponent("health"),
	}
}

// Add registers a dependency for readiness. A failing optional dependency
// degrades the service; a failing required one makes it unhealthy.
func (c *Checker) Add(name string, probe Probe, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = append(c.deps, dependency{name: name, probe: probe, optional: optional})
}

func (c *Checker) engineHealth() ComponentHealth {
	if c.engine == nil {
		return ComponentHealth{Status: StatusUnhealthy, Message: "engine not configured"}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d active runs", c.engine.ActiveRuns()),
	}
}

func (c *Checker) run(ctx context.Context, dep dependency) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := dep.probe(ctx)
	result := ComponentHealth{Status: StatusHealthy, Duration: time.Since(start).String()}
	if err == nil {
		return result
	}

	c.log.Warn(ctx, "dependency check failed", map[string]interface{}{
		"dependency": dep.name,
		"error":      err.Error(),
	})
	result.Message = dep.name + " unreachable"
	result.Status = StatusUnhealthy
	if dep.optional {
		result.Status = StatusDegraded
	}
	return result
}

func (c *Checker) response() *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
	}
}

// Live reports that the process is serving. Dependencies are not probed.
func (c *Checker) Live(ctx context.Context) *HealthResponse {
	return c.response()
}

// Ready probes the engine and every registered dependency concurrently. The
// overall status is the worst component status.
func (c *Checker) Ready(ctx context.Context) *HealthResponse {
	resp := c.response()
	resp.Components = map[string]ComponentHealth{"engine": c.engineHealth()}

	c.mu.RLock()
	deps := append([]dependency(nil), c.deps...)
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(deps))
	var wg sync.WaitGroup
	for i, dep := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, dep)
		}()
	}
	wg.Wait()

	for i, dep := range deps {
		resp.Components[dep.name] = results[i]
	}
	for _, comp := range resp.Components {
		if comp.Status.severity() > resp.Status.severity() {
			resp.Status = comp.Status
		}
	}
	return resp
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

func write(w http.ResponseWriter, r *http.Request, resp *HealthResponse) {
	// Degraded still accepts traffic
	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, resp)
}

// LivenessHandler handles GET /health/live
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	write(w, r, h.checker.Live(r.Context()))
}

// ReadinessHandler handles GET /health/ready
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	write(w, r, h.checker.Ready(r.Context()))
}

// HealthHandler handles GET /health; ?deep=true runs the readiness checks.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
