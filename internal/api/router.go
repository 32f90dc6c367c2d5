package api

import (
	"net/http"

	"github.com/openmusicplayer/mediagrab/internal/download"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/health"
	"github.com/openmusicplayer/mediagrab/internal/logger"
	"github.com/openmusicplayer/mediagrab/internal/metrics"
	"github.com/openmusicplayer/mediagrab/internal/middleware"
	"github.com/openmusicplayer/mediagrab/internal/search"
	"github.com/openmusicplayer/mediagrab/internal/validators"
	"github.com/openmusicplayer/mediagrab/internal/websocket"
)

// Dependencies are the components the router exposes. Tasks is required;
// nil optional handlers leave their routes unregistered.
type Dependencies struct {
	Tasks       *download.Service
	Search      *search.Handlers
	Validators  *validators.Handlers
	WebSocket   *websocket.Handler
	Health      *health.Handler
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

type Router struct {
	mux  *http.ServeMux
	deps *Dependencies

	taskHandlers *TaskHandlers
}

func NewRouter(deps *Dependencies) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		deps:         deps,
		taskHandlers: NewTaskHandlers(deps.Tasks),
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the router wrapped in the full middleware stack.
func (r *Router) Handler() http.Handler {
	stack := []func(http.Handler) http.Handler{
		apperrors.RequestIDMiddleware,
		logger.RecoveryMiddleware,
		logger.LoggingMiddleware,
	}
	if r.deps.Metrics != nil {
		stack = append(stack, metrics.MetricsMiddleware(r.deps.Metrics))
	}
	stack = append(stack,
		middleware.CORS(r.deps.CORSOrigins),
		middleware.Timing,
		middleware.Gzip,
		middleware.ETag,
	)
	return middleware.Chain(r, stack...)
}

func (r *Router) handle(pattern string, h apperrors.Handler) {
	r.mux.HandleFunc(pattern, apperrors.HandleFunc(h))
}

func (r *Router) setupRoutes() {
	// Health check
	if h := r.deps.Health; h != nil {
		r.mux.HandleFunc("GET /health", h.HealthHandler)
		r.mux.HandleFunc("GET /health/live", h.LivenessHandler)
		r.mux.HandleFunc("GET /health/ready", h.ReadinessHandler)
	} else {
		r.mux.HandleFunc("GET /health", healthHandler)
	}

	if r.deps.Metrics != nil {
		r.mux.HandleFunc("GET /metrics", r.deps.Metrics.Handler())
	}

	// Tasks
	th := r.taskHandlers
	r.handle("POST /api/v1/tasks", th.CreateTask)
	r.handle("GET /api/v1/tasks", th.ListTasks)
	r.handle("DELETE /api/v1/tasks", th.ClearTasks)
	r.handle("GET /api/v1/tasks/{id}", th.GetTask)
	r.handle("PATCH /api/v1/tasks/{id}", th.UpdateTask)
	r.handle("DELETE /api/v1/tasks/{id}", th.DeleteTask)
	r.handle("POST /api/v1/tasks/{id}/cancel", th.CancelTask)
	r.handle("POST /api/v1/tasks/{id}/retry", th.RetryTask)
	r.handle("GET /api/v1/tasks/{id}/artifact", th.GetArtifact)
	r.handle("GET /api/v1/info", th.Inspect)
	r.handle("GET /api/v1/formats", th.Formats)

	// Search
	if s := r.deps.Search; s != nil {
		r.handle("GET /api/v1/search", s.Search)
		r.handle("GET /api/v1/search/trending", s.Trending)
		r.handle("GET /api/v1/search/{id}/recommendations", s.Recommendations)
	}

	// Validation
	if v := r.deps.Validators; v != nil {
		r.handle("POST /api/v1/validate/url", v.ValidateURL)
		r.handle("GET /api/v1/validate/url", v.ValidateURLQuery)
		r.handle("GET /api/v1/validate/sources", v.GetSupportedSources)
	}

	// Progress stream
	if ws := r.deps.WebSocket; ws != nil {
		r.mux.HandleFunc("GET /api/v1/ws", ws.ServeWS)
	}

	r.mux.HandleFunc("/", notFound)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.NotFound("route"))
}
