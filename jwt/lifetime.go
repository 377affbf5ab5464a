package jwt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var lifetimeUnits = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"w":       7 * 24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
	"y":       365 * 24 * time.Hour,
	"year":    365 * 24 * time.Hour,
	"years":   365 * 24 * time.Hour,
}

// ParseLifetime parses a token lifetime written as value+unit ("15 minutes", "7d",
// "1 day") or as a Go duration ("15m", "168h"). The result must be positive.
func ParseLifetime(s string) (time.Duration, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, fmt.Errorf("empty lifetime")
	}

	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("lifetime %q must be positive", s)
		}
		return d, nil
	}

	split := strings.IndexFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) })
	if split <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	value, err := strconv.Atoi(raw[:split])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid lifetime value %q", s)
	}
	unit, ok := lifetimeUnits[strings.ToLower(strings.TrimSpace(raw[split:]))]
	if !ok {
		return 0, fmt.Errorf("unknown lifetime unit in %q", s)
	}

	if int64(value) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("lifetime %q is out of range", s)
	}
	return time.Duration(value) * unit, nil
}
