// Package progress turns free-form chapter text from the bookmarks file into
// a numeric reading position.
package progress

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// DefaultVolumeMultiplier is the chapters-per-volume estimate used when only
// a volume number is known.
const DefaultVolumeMultiplier = 5

// ErrUnparseable is returned alongside a zero value when the text holds no
// chapter or volume number. It is a warning, not a failure.
var ErrUnparseable = errors.New("could not extract chapter number")

var (
	numeralPattern = regexp.MustCompile(`\d+\.?\d*`)
	volumePattern  = regexp.MustCompile(`\bvol(?:ume)?\s*\.?\s*(\d+)`)
)

// Normalize extracts the first chapter numeral in text ("Chapter 12.5" → 12.5).
// Numbers that belong to a volume marker do not count as chapters: text with
// only "Vol. N" yields N * volumeMultiplier. A non-positive multiplier falls
// back to DefaultVolumeMultiplier.
func Normalize(text string, volumeMultiplier float64) (float64, error) {
	if volumeMultiplier <= 0 {
		volumeMultiplier = DefaultVolumeMultiplier
	}

	cleaned := strings.ToLower(strings.TrimSpace(text))
	volume := volumePattern.FindStringSubmatch(cleaned)
	rest := volumePattern.ReplaceAllString(cleaned, " ")

	if token := numeralPattern.FindString(rest); token != "" {
		if v, err := strconv.ParseFloat(strings.TrimSuffix(token, "."), 64); err == nil {
			return v, nil
		}
	}

	if volume != nil {
		if v, err := strconv.ParseFloat(volume[1], 64); err == nil {
			return v * volumeMultiplier, nil
		}
	}

	return 0, ErrUnparseable
}

// Chapter truncates a normalized value to the integer progress the catalog
// accepts.
func Chapter(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}
