// Package schedule parses the recurrence expressions used by schedule
// triggers and computes their next firing time. Intervals and a small
// daily/weekly grammar are supported; full crontab syntax is not.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Spec is a parsed schedule expression.
type Spec struct {
	// Every is a fixed interval; when set the calendar fields are
	// ignored.
	Every time.Duration

	Hour    int
	Minute  int
	Weekday *time.Weekday // nil = daily
}

// Parse parses a schedule expression. Supported forms:
//   - "every:DUR"         → fixed interval, e.g. "every:15m"
//   - "daily"             → every day at 00:00 UTC
//   - "daily:HH:MM"       → every day at HH:MM UTC
//   - "HH:MM"             → shorthand for daily:HH:MM
//   - "weekly:Day"        → every Day at 00:00 UTC (e.g. "weekly:fri")
//   - "weekly:Day:HH:MM"  → every Day at HH:MM UTC
func Parse(expr string) (Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Spec{}, fmt.Errorf("schedule: empty expression")
	}

	switch {
	case strings.HasPrefix(expr, "every:"):
		d, err := time.ParseDuration(strings.TrimPrefix(expr, "every:"))
		if err != nil {
			return Spec{}, fmt.Errorf("schedule: interval: %w", err)
		}
		if d < time.Second {
			return Spec{}, fmt.Errorf("schedule: interval %s below 1s", d)
		}
		return Spec{Every: d}, nil

	case expr == "daily":
		return Spec{}, nil

	case strings.HasPrefix(expr, "daily:"):
		h, m, err := parseHHMM(strings.TrimPrefix(expr, "daily:"))
		if err != nil {
			return Spec{}, fmt.Errorf("schedule: %w", err)
		}
		return Spec{Hour: h, Minute: m}, nil

	case strings.HasPrefix(expr, "weekly:"):
		rest := strings.TrimPrefix(expr, "weekly:")
		parts := strings.SplitN(rest, ":", 2)
		day, err := parseWeekday(parts[0])
		if err != nil {
			return Spec{}, fmt.Errorf("schedule: %w", err)
		}
		h, m := 0, 0
		if len(parts) == 2 {
			h, m, err = parseHHMM(parts[1])
			if err != nil {
				return Spec{}, fmt.Errorf("schedule: %w", err)
			}
		}
		return Spec{Hour: h, Minute: m, Weekday: &day}, nil

	default:
		h, m, err := parseHHMM(expr)
		if err != nil {
			return Spec{}, fmt.Errorf("schedule: unrecognized expression %q", expr)
		}
		return Spec{Hour: h, Minute: m}, nil
	}
}

// NextAfter returns the next firing time strictly after t.
func (s Spec) NextAfter(t time.Time) time.Time {
	if s.Every > 0 {
		return t.Add(s.Every)
	}

	t = t.UTC()
	candidate := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)

	if s.Weekday == nil {
		if !candidate.After(t) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate
	}

	for i := range 8 {
		check := candidate.AddDate(0, 0, i)
		if check.Weekday() == *s.Weekday && check.After(t) {
			return check
		}
	}
	return candidate.AddDate(0, 0, 7)
}

// Validate checks that an expression is syntactically valid.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	return h, m, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
}
