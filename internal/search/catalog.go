package search

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

// Result is one entry of the mock index.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Duration    string `json:"duration"`
	Thumbnail   string `json:"thumbnail"`
	URL         string `json:"url"`
	Platform    string `json:"platform"`
	Views       string `json:"views,omitempty"`
	Author      string `json:"author"`
	UploadDate  string `json:"upload_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Duration buckets
const (
	DurationShort  = "short"  // under 4 minutes
	DurationMedium = "medium" // 4 to 20 minutes
	DurationLong   = "long"   // 20 minutes and up
)

// Sort orders
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortViews     = "views"
	SortDuration  = "duration"
)

const (
	trendingLimit        = 6
	recommendationsLimit = 4
)

// Filters narrow and order a search. Zero values apply no filter and keep
// catalog order.
type Filters struct {
	Platform string
	Duration string
	SortBy   string
}

// Catalog is a fixed, read-only result set. Every method returns fresh
// slices; the catalog itself is never reordered.
type Catalog struct {
	results []Result
}

// NewCatalog creates a catalog over results.
func NewCatalog(results []Result) *Catalog {
	return &Catalog{results: slices.Clone(results)}
}

// DefaultCatalog returns the built-in mock index.
func DefaultCatalog() *Catalog {
	return NewCatalog(mockResults)
}

// Get returns the result with id.
func (c *Catalog) Get(id string) (Result, error) {
	for _, r := range c.results {
		if r.ID == id {
			return r, nil
		}
	}
	return Result{}, apperrors.NotFound("search result")
}

// Search matches results containing any whitespace separated term of query
// in the title, author or description, then applies filters.
func (c *Catalog) Search(query string, f Filters) []Result {
	terms := strings.Fields(fold(query))

	out := make([]Result, 0, len(c.results))
	for _, r := range c.results {
		if len(terms) > 0 && !matchesAny(r, terms) {
			continue
		}
		if !matchesPlatform(r, f.Platform) || !matchesDuration(r, f.Duration) {
			continue
		}
		out = append(out, r)
	}

	sortResults(out, f.SortBy)
	return out
}

// Trending returns the most viewed results, optionally for one platform.
// The platform filter is applied after the top results are picked.
func (c *Catalog) Trending(platform string) []Result {
	out := slices.Clone(c.results)
	sortResults(out, SortViews)
	if len(out) > trendingLimit {
		out = out[:trendingLimit]
	}
	return slices.DeleteFunc(out, func(r Result) bool { return !matchesPlatform(r, platform) })
}

// Recommendations returns up to four other results that share a platform or
// an author with the result id.
func (c *Catalog) Recommendations(id string) ([]Result, error) {
	base, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, recommendationsLimit)
	for _, r := range c.results {
		if r.ID == base.ID {
			continue
		}
		if r.Platform == base.Platform || r.Author == base.Author {
			out = append(out, r)
		}
		if len(out) == recommendationsLimit {
			break
		}
	}
	return out, nil
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func matchesAny(r Result, terms []string) bool {
	title, author, desc := fold(r.Title), fold(r.Author), fold(r.Description)
	for _, term := range terms {
		if strings.Contains(title, term) || strings.Contains(author, term) || strings.Contains(desc, term) {
			return true
		}
	}
	return false
}

func matchesPlatform(r Result, platform string) bool {
	if platform == "" || strings.EqualFold(platform, "all") {
		return true
	}
	return strings.EqualFold(r.Platform, platform)
}

func matchesDuration(r Result, bucket string) bool {
	secs := artifact.ParseDuration(r.Duration)
	switch bucket {
	case DurationShort:
		return secs < 240
	case DurationMedium:
		return secs >= 240 && secs < 1200
	case DurationLong:
		return secs >= 1200
	default:
		return true
	}
}

// ValidDuration reports whether bucket is empty or a known bucket.
func ValidDuration(bucket string) bool {
	switch bucket {
	case "", DurationShort, DurationMedium, DurationLong:
		return true
	}
	return false
}

// ValidSort reports whether sortBy is empty or a known order.
func ValidSort(sortBy string) bool {
	switch sortBy {
	case "", SortRelevance, SortDate, SortViews, SortDuration:
		return true
	}
	return false
}

func sortResults(results []Result, sortBy string) {
	switch sortBy {
	case SortDate:
		slices.SortStableFunc(results, func(a, b Result) int {
			return parseDate(b.UploadDate).Compare(parseDate(a.UploadDate))
		})
	case SortViews:
		slices.SortStableFunc(results, func(a, b Result) int {
			return compareFloat(ParseViews(b.Views), ParseViews(a.Views))
		})
	case SortDuration:
		slices.SortStableFunc(results, func(a, b Result) int {
			return artifact.ParseDuration(a.Duration) - artifact.ParseDuration(b.Duration)
		})
	}
}

// ParseViews reads counts like "10.2M", "850K" or "1200".
func ParseViews(views string) float64 {
	views = strings.TrimSpace(views)
	mult := 1.0
	switch {
	case strings.HasSuffix(views, "M"):
		mult, views = 1e6, strings.TrimSuffix(views, "M")
	case strings.HasSuffix(views, "K"):
		mult, views = 1e3, strings.TrimSuffix(views, "K")
	}
	n, err := strconv.ParseFloat(views, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
