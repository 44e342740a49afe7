package credentials

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Never is the expiry string for tokens that do not expire.
const Never = "never"

// ParseExpiry parses a token expiry string: "<n>h", "<n>d", or
// "never". The empty string means never. Any other value is a
// validation error.
func ParseExpiry(s string) (d time.Duration, never bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || s == Never {
		return 0, true, nil
	}
	if len(s) < 2 {
		return 0, false, errors.Errorf("invalid expiry %q: expected <n>h, <n>d or never", s)
	}
	unit := s[len(s)-1]
	n, convErr := strconv.Atoi(s[:len(s)-1])
	if convErr != nil || n <= 0 {
		return 0, false, errors.Errorf("invalid expiry %q: expected <n>h, <n>d or never", s)
	}
	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, false, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, false, nil
	}
	return 0, false, errors.Errorf("invalid expiry %q: expected <n>h, <n>d or never", s)
}

// FormatExpiry is the inverse of ParseExpiry for representable
// durations. Durations on a whole-day boundary format as days.
func FormatExpiry(d time.Duration, never bool) string {
	if never {
		return Never
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	return fmt.Sprintf("%dh", int(d/time.Hour))
}
