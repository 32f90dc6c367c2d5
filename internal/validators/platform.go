package validators

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform is a known media site, matched by host substring.
type Platform struct {
	Source  SourceType `json:"source"`
	Name    string     `json:"name"`
	Domains []string   `json:"domains"`
}

// Platforms is checked in order; the first domain hit wins.
var Platforms = []Platform{
	{SourceYouTube, "YouTube", []string{"youtube.com", "youtu.be"}},
	{SourceSoundCloud, "SoundCloud", []string{"soundcloud.com"}},
	{SourceVimeo, "Vimeo", []string{"vimeo.com"}},
	{SourceFacebook, "Facebook", []string{"facebook.com", "fb.com"}},
	{SourceInstagram, "Instagram", []string{"instagram.com"}},
	{SourceTikTok, "TikTok", []string{"tiktok.com"}},
}

// DefaultMediaID is returned when no id can be found in a URL.
const DefaultMediaID = "demo-video"

var mediaIDPattern = regexp.MustCompile(`(?:v=|/)([\w-]{11})`)

// IsValidURL reports whether raw parses as an absolute URL with a scheme and
// a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// PlatformOf returns the display name of the platform raw belongs to, or ""
// when it matches none. Unknown platforms are still allowed to download.
func PlatformOf(raw string) string {
	if p, ok := lookupPlatform(raw); ok {
		return p.Name
	}
	return ""
}

func lookupPlatform(raw string) (Platform, bool) {
	lower := strings.ToLower(raw)
	for _, p := range Platforms {
		for _, d := range p.Domains {
			if strings.Contains(lower, d) {
				return p, true
			}
		}
	}
	return Platform{}, false
}

// ExtractMediaID pulls an 11 character id following "v=" or "/" out of raw.
func ExtractMediaID(raw string) string {
	if m := mediaIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return DefaultMediaID
}

// PlatformValidator validates URLs for one entry of Platforms.
type PlatformValidator struct {
	platform Platform
}

// NewPlatformValidator creates a validator for p.
func NewPlatformValidator(p Platform) *PlatformValidator {
	return &PlatformValidator{platform: p}
}

// SourceType returns the source type for this validator
func (v *PlatformValidator) SourceType() SourceType {
	return v.platform.Source
}

// CanHandle returns true if the URL belongs to this platform
func (v *PlatformValidator) CanHandle(raw string) bool {
	p, ok := lookupPlatform(raw)
	return ok && p.Source == v.platform.Source
}

// Validate checks the URL and extracts the media id when there is one
func (v *PlatformValidator) Validate(raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	result := ValidationResult{
		SourceType: v.platform.Source,
		Platform:   v.platform.Name,
		URL:        raw,
	}

	if !IsValidURL(raw) {
		result.Error = "invalid URL format"
		return result
	}

	result.Valid = true
	result.Supported = true
	if id := ExtractMediaID(raw); id != DefaultMediaID {
		result.MediaID = id
		if v.platform.Source == SourceYouTube {
			result.Canonical = "https://www.youtube.com/watch?v=" + id
		}
	}
	return result
}
