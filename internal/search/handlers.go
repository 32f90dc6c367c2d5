package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Cache stores encoded responses. Implemented by cache.Cache.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

type PaginatedResponse struct {
	Data   []Result `json:"data"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

type Handlers struct {
	catalog  *Catalog
	cache    Cache
	cacheTTL time.Duration
}

func NewHandlers(catalog *Catalog) *Handlers {
	return &Handlers{catalog: catalog}
}

// UseCache enables response caching for search and trending.
func (h *Handlers) UseCache(c Cache, ttl time.Duration) {
	h.cache = c
	h.cacheTTL = ttl
}

// Search handles GET /api/v1/search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	filters := Filters{
		Platform: q.Get("platform"),
		Duration: q.Get("duration"),
		SortBy:   q.Get("sort"),
	}
	if !ValidDuration(filters.Duration) {
		return apperrors.ValidationError("duration must be one of short, medium, long")
	}
	if !ValidSort(filters.SortBy) {
		return apperrors.ValidationError("sort must be one of relevance, date, views, duration")
	}

	limit, offset := parsePagination(r)
	results := h.cached(r.Context(), "search:"+canonicalQuery(q), func() []Result {
		return h.catalog.Search(q.Get("q"), filters)
	})

	h.writePage(w, r, results, limit, offset)
	return nil
}

// Trending handles GET /api/v1/search/trending
func (h *Handlers) Trending(w http.ResponseWriter, r *http.Request) error {
	platform := r.URL.Query().Get("platform")
	results := h.cached(r.Context(), "trending:"+platform, func() []Result {
		return h.catalog.Trending(platform)
	})

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]any{
		"data":  results,
		"total": len(results),
	})
	return nil
}

// Recommendations handles GET /api/v1/search/{id}/recommendations
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) error {
	results, err := h.catalog.Recommendations(r.PathValue("id"))
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]any{
		"data":  results,
		"total": len(results),
	})
	return nil
}

func (h *Handlers) cached(ctx context.Context, key string, compute func() []Result) []Result {
	if h.cache == nil {
		return compute()
	}

	var results []Result
	if h.cache.GetJSON(ctx, key, &results) {
		return results
	}
	results = compute()
	// A failed write only costs a recompute next time.
	_ = h.cache.SetJSON(ctx, key, results, h.cacheTTL)
	return results
}

func (h *Handlers) writePage(w http.ResponseWriter, r *http.Request, results []Result, limit, offset int) {
	total := len(results)
	start := min(offset, total)
	end := min(start+limit, total)

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, PaginatedResponse{
		Data:   results[start:end],
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// canonicalQuery keys the cache on the filtering parameters only.
func canonicalQuery(q url.Values) string {
	keep := url.Values{}
	for _, k := range []string{"q", "platform", "duration", "sort"} {
		if v := q.Get(k); v != "" {
			keep.Set(k, v)
		}
	}
	return keep.Encode()
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	offset = 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
