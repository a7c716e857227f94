package usage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Range selects the window for usage stats.
type Range string

const (
	RangeToday Range = "today"
	Range7d    Range = "7d"
	Range30d   Range = "30d"
)

var ErrInvalidRange = errors.New("invalid range")

// ParseRange accepts today, 7d and 30d. An empty string means today.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return RangeToday, nil
	case RangeToday, Range7d, Range30d:
		return r, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of today, 7d, 30d", ErrInvalidRange, s)
	}
}

// Since returns the inclusive start of the window ending at now. "today"
// starts at UTC midnight; unknown ranges are treated as today.
func (r Range) Since(now time.Time) time.Time {
	now = now.UTC()
	switch r {
	case Range7d:
		return now.AddDate(0, 0, -7)
	case Range30d:
		return now.AddDate(0, 0, -30)
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// CountWords is a whitespace-split estimate.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Minutes converts milliseconds to minutes rounded to two decimals.
func Minutes(totalMs int64) float64 {
	return math.Round(float64(totalMs)/60000*100) / 100
}
