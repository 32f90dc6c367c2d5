package artifact

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

// Format is an output container requested by the client.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatMP3, FormatMP4, FormatWebM}

const (
	mib          = 1024 * 1024
	fallbackSize = 10 * mib
)

type formatSpec struct {
	kind      string
	mimeType  string
	extension string
	qualities []string
	sizes     map[string]int64
}

// The first quality of each format is its default.
var formatSpecs = map[Format]formatSpec{
	FormatMP3: {
		kind:      "audio",
		mimeType:  "audio/wav",
		extension: ".wav",
		qualities: []string{"320", "256", "192", "128"},
		sizes: map[string]int64{
			"320": 15 * mib / 2,
			"256": 6 * mib,
			"192": 9 * mib / 2,
			"128": 3 * mib,
		},
	},
	FormatMP4: {
		kind:      "video",
		mimeType:  "video/mp4",
		extension: ".mp4",
		qualities: []string{"1080", "720", "480", "360"},
		sizes: map[string]int64{
			"1080": 50 * mib,
			"720":  25 * mib,
			"480":  15 * mib,
			"360":  8 * mib,
		},
	},
	FormatWebM: {
		kind:      "video",
		mimeType:  "video/webm",
		extension: ".webm",
		qualities: []string{"1080", "720", "480"},
		sizes: map[string]int64{
			"1080": 40 * mib,
			"720":  20 * mib,
			"480":  12 * mib,
		},
	},
}

// ParseFormat maps a client string to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formatSpecs[f]; !ok {
		return "", apperrors.ValidationError(fmt.Sprintf("unsupported format %q", s)).
			WithDetails(map[string]any{"supported": Formats})
	}
	return f, nil
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formatSpecs[f]
	return ok
}

// Kind is "audio" or "video".
func (f Format) Kind() string { return formatSpecs[f].kind }

// MIMEType of the synthesized payload.
func (f Format) MIMEType() string { return formatSpecs[f].mimeType }

// Extension of the synthesized payload, including the dot.
func (f Format) Extension() string { return formatSpecs[f].extension }

// Qualities returns the allowed quality tags, best first.
func (f Format) Qualities() []string {
	return slices.Clone(formatSpecs[f].qualities)
}

// DefaultQuality is the best quality the format offers.
func (f Format) DefaultQuality() string {
	q := formatSpecs[f].qualities
	if len(q) == 0 {
		return ""
	}
	return q[0]
}

// QualityLabel renders a quality tag the way clients display it.
func (f Format) QualityLabel(quality string) string {
	if f.Kind() == "audio" {
		return quality + "kbps"
	}
	return quality + "p"
}

// ValidateQuality checks quality against the allowed set for f.
func ValidateQuality(f Format, quality string) error {
	spec, ok := formatSpecs[f]
	if !ok {
		return apperrors.ValidationError(fmt.Sprintf("unsupported format %q", f))
	}
	if !slices.Contains(spec.qualities, quality) {
		return apperrors.ValidationError(fmt.Sprintf("quality %q is not available for %s", quality, f)).
			WithDetails(map[string]any{"allowed": spec.qualities})
	}
	return nil
}

// EstimatedSize returns the nominal byte size for a format and quality.
// Unknown combinations fall back to 10 MiB.
func EstimatedSize(f Format, quality string) int64 {
	if size, ok := formatSpecs[f].sizes[quality]; ok {
		return size
	}
	return fallbackSize
}

// SizeLabel is the human readable form of EstimatedSize.
func SizeLabel(f Format, quality string) string {
	return humanize.IBytes(uint64(EstimatedSize(f, quality)))
}

// QualityOption describes one selectable quality for a format.
type QualityOption struct {
	Quality string `json:"quality"`
	Label   string `json:"label"`
	Size    string `json:"size"`
}

// FormatOption describes a format and all of its qualities.
type FormatOption struct {
	Format    Format          `json:"format"`
	Kind      string          `json:"kind"`
	MIMEType  string          `json:"mime_type"`
	Extension string          `json:"extension"`
	Qualities []QualityOption `json:"qualities"`
}

// Options returns the full format table for display.
func Options() []FormatOption {
	out := make([]FormatOption, 0, len(Formats))
	for _, f := range Formats {
		opt := FormatOption{
			Format:    f,
			Kind:      f.Kind(),
			MIMEType:  f.MIMEType(),
			Extension: f.Extension(),
		}
		for _, q := range f.Qualities() {
			opt.Qualities = append(opt.Qualities, QualityOption{
				Quality: q,
				Label:   f.QualityLabel(q),
				Size:    SizeLabel(f, q),
			})
		}
		out = append(out, opt)
	}
	return out
}
