package trigger

import (
	"fmt"
	"strings"
	"time"
)

// ParseSpec parses a schedule string from config into a Spec.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "0 7 * * 1-5"
//   - Interval duration: "60s", "2h30m"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
func ParseSpec(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return Cron(expr), nil
	}
	for _, pfx := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, pfx) {
			v := strings.TrimSpace(s[len(pfx):])
			d, err := time.ParseDuration(v)
			if err != nil {
				return Spec{}, fmt.Errorf("invalid interval %q: %w", v, err)
			}
			if d <= 0 {
				return Spec{}, fmt.Errorf("interval must be > 0")
			}
			return Every(d), nil
		}
	}

	// Heuristic: whitespace means cron fields.
	if strings.ContainsAny(s, " \t") {
		return Cron(s), nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Every(d), nil
	}

	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *' or duration like '60s')", raw)
}

// ParseHHMM parses a "HH:MM" wall-clock string (used for daily summary time
// and market open/close bounds).
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := atoi2(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := atoi2(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func atoi2(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid number %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
