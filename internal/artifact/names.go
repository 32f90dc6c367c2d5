package artifact

import (
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

const (
	maxFilenameRunes       = 100
	DefaultDuration        = "3:45"
	fallbackDurationSecond = 30
)

// SanitizeFilename strips characters that are invalid in file names,
// collapses whitespace runs to a single underscore and truncates the result
// to 100 runes. Applying it twice gives the same result as applying it once.
func SanitizeFilename(name string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range name {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}

	out := []rune(norm.NFC.String(b.String()))
	if len(out) > maxFilenameRunes {
		out = out[:maxFilenameRunes]
	}
	return string(out)
}

// MaxDurationSeconds is the longest duration a task may declare.
const MaxDurationSeconds = 24 * 60 * 60

var (
	errDurationFormat = errors.New("duration must be M:SS or H:MM:SS")
	errDurationZero   = errors.New("duration must be at least 0:01")
	errDurationRange  = fmt.Errorf("duration must not exceed %s", FormatDuration(MaxDurationSeconds))
)

func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, errDurationFormat
	}

	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, errDurationFormat
		}
		if n > MaxDurationSeconds {
			return 0, errDurationRange
		}
		total = total*60 + n
		if total > MaxDurationSeconds {
			return 0, errDurationRange
		}
	}
	if total == 0 {
		return 0, errDurationZero
	}
	return total, nil
}

// ParseDuration converts "M:SS" or "H:MM:SS" to seconds. Anything it cannot
// read yields 30 seconds; anything longer than a day yields a day.
func ParseDuration(s string) int {
	seconds, err := parseClock(s)
	switch {
	case err == nil:
		return seconds
	case errors.Is(err, errDurationRange):
		return MaxDurationSeconds
	default:
		return fallbackDurationSecond
	}
}

// ValidateDuration rejects a duration ParseDuration would have to replace.
func ValidateDuration(s string) error {
	if _, err := parseClock(s); err != nil {
		return apperrors.ValidationError(err.Error()).WithDetails(map[string]any{"duration": s})
	}
	return nil
}

// FormatDuration renders seconds as "M:SS", or "H:MM:SS" from one hour up.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// DefaultTitle is used when a task is submitted without a title.
func DefaultTitle(f Format) string {
	return "Downloaded Media - " + strings.ToUpper(string(f))
}

// ContentDisposition builds an attachment header for filename. Names outside
// ASCII are sent in the RFC 2231 filename* form browsers decode.
func ContentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
