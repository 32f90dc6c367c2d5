package download

import (
	"github.com/openmusicplayer/mediagrab/internal/artifact"
	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
	"github.com/openmusicplayer/mediagrab/internal/validators"
)

// MediaInfo is the mock metadata shown before a task is submitted.
type MediaInfo struct {
	ID        string                  `json:"id"`
	URL       string                  `json:"url"`
	Title     string                  `json:"title"`
	Platform  string                  `json:"platform,omitempty"`
	Duration  string                  `json:"duration"`
	Thumbnail string                  `json:"thumbnail"`
	Formats   []artifact.FormatOption `json:"formats"`
}

const thumbnailURL = "https://images.pexels.com/photos/1105666/pexels-photo-1105666.jpeg?auto=compress&cs=tinysrgb&w=400"

// Inspect returns mock media information for url. Nothing is fetched.
func (s *Service) Inspect(url string) (*MediaInfo, error) {
	if !validators.IsValidURL(url) {
		return nil, apperrors.ValidationError("url must be an absolute URL with a scheme and host")
	}

	id := validators.ExtractMediaID(url)
	return &MediaInfo{
		ID:        id,
		URL:       url,
		Title:     "Demo Video - " + id,
		Platform:  validators.PlatformOf(url),
		Duration:  artifact.DefaultDuration,
		Thumbnail: thumbnailURL,
		Formats:   artifact.Options(),
	}, nil
}
