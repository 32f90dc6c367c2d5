package validators

import (
	"net/http"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

// Handlers provides HTTP handlers for URL validation
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// ValidateURLRequest is the request body for URL validation
type ValidateURLRequest struct {
	URL string `json:"url"`
}

// SupportedSourcesResponse is the response for listing supported sources
type SupportedSourcesResponse struct {
	Sources   []SourceType `json:"sources"`
	Platforms []Platform   `json:"platforms"`
}

// ValidateURL handles POST /api/v1/validate/url
func (h *Handlers) ValidateURL(w http.ResponseWriter, r *http.Request) error {
	var req ValidateURLRequest
	if err := apperrors.DecodeJSON(r, &req); err != nil {
		return err
	}
	return h.validate(w, r, req.URL)
}

// ValidateURLQuery handles GET /api/v1/validate/url?url=...
func (h *Handlers) ValidateURLQuery(w http.ResponseWriter, r *http.Request) error {
	return h.validate(w, r, r.URL.Query().Get("url"))
}

func (h *Handlers) validate(w http.ResponseWriter, r *http.Request, url string) error {
	if url == "" {
		return apperrors.ValidationError("url is required")
	}

	result := h.registry.Validate(url)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, result)
	return nil
}

// GetSupportedSources handles GET /api/v1/validate/sources
func (h *Handlers) GetSupportedSources(w http.ResponseWriter, r *http.Request) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, SupportedSourcesResponse{
		Sources:   h.registry.Sources(),
		Platforms: Platforms,
	})
	return nil
}
