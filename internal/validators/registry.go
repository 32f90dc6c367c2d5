package validators

import (
	"strings"
	"sync"
)

// SourceType identifies the platform a URL belongs to
type SourceType string

const (
	SourceYouTube    SourceType = "youtube"
	SourceSoundCloud SourceType = "soundcloud"
	SourceVimeo      SourceType = "vimeo"
	SourceFacebook   SourceType = "facebook"
	SourceInstagram  SourceType = "instagram"
	SourceTikTok     SourceType = "tiktok"
	SourceUnknown    SourceType = "unknown"
)

// ValidationResult describes a checked URL. Valid means the URL is well
// formed; Supported means a registered platform claimed it.
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Supported  bool       `json:"supported"`
	SourceType SourceType `json:"source_type"`
	Platform   string     `json:"platform,omitempty"`
	MediaID    string     `json:"media_id,omitempty"`
	URL        string     `json:"url"`
	Canonical  string     `json:"canonical_url,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Validator checks URLs of a single source.
type Validator interface {
	SourceType() SourceType
	CanHandle(url string) bool
	Validate(url string) ValidationResult
}

// Registry dispatches a URL to the first validator that claims it.
// Registering a second validator for a source replaces the first in place.
type Registry struct {
	mu       sync.RWMutex
	order    []SourceType
	bySource map[SourceType]Validator
}

func NewRegistry() *Registry {
	return &Registry{bySource: make(map[SourceType]Validator)}
}

// Register adds v, or replaces the validator already serving its source.
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := v.SourceType()
	if _, exists := r.bySource[src]; !exists {
		r.order = append(r.order, src)
	}
	r.bySource[src] = v
}

// Validate checks raw. A well formed URL on an unknown platform is valid but
// not supported.
func (r *Registry) Validate(raw string) ValidationResult {
	raw = strings.TrimSpace(raw)

	r.mu.RLock()
	for _, src := range r.order {
		if v := r.bySource[src]; v.CanHandle(raw) {
			r.mu.RUnlock()
			return v.Validate(raw)
		}
	}
	r.mu.RUnlock()

	result := ValidationResult{SourceType: SourceUnknown, URL: raw}
	if IsValidURL(raw) {
		result.Valid = true
	} else {
		result.Error = "invalid URL format"
	}
	return result
}

// Sources lists the registered sources in registration order.
func (r *Registry) Sources() []SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SourceType(nil), r.order...)
}

// DefaultRegistry creates a registry with a validator per known platform
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range Platforms {
		r.Register(NewPlatformValidator(p))
	}
	return r
}
