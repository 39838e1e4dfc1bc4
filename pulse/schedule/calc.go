package schedule

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teranos/pulse/errors"
)

// Schedule kinds
const (
	KindEvery = "every" // recurring interval
	KindAt    = "at"    // one-shot instant
)

// FallbackDelay is used when a stored schedule cannot be parsed, so a bad row
// degrades to "try again soon" instead of stopping the loop.
const FallbackDelay = 60 * time.Second

var intervalRe = regexp.MustCompile(`(?i)^(\d+)([smhd])$`)

var unitSeconds = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 3600,
	"d": 86400,
}

var presets = map[string]time.Duration{
	"@hourly": time.Hour,
	"@daily":  24 * time.Hour,
}

// Schedule is a parsed schedule string
type Schedule struct {
	Kind     string
	Expr     string        // original text
	Interval time.Duration // KindEvery
	At       time.Time     // KindAt
}

// ParseSchedule accepts <N><s|m|h|d>, @hourly, @daily or an RFC3339 instant
func ParseSchedule(s string) (Schedule, error) {
	s = strings.TrimSpace(s)

	if d, ok := presets[strings.ToLower(s)]; ok {
		return Schedule{Kind: KindEvery, Expr: s, Interval: d}, nil
	}

	if m := intervalRe.FindStringSubmatch(s); m != nil {
		unit := unitSeconds[strings.ToLower(m[2])]
		amount, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && amount <= 0 {
			return Schedule{}, errors.NewInvalidInputError("schedule %q: interval must be positive", s)
		}
		// time.Duration counts nanoseconds in an int64
		if err != nil || amount > math.MaxInt64/int64(time.Second)/unit {
			return Schedule{}, errors.NewInvalidInputError("schedule %q: interval is too large", s)
		}
		secs := amount * unit
		return Schedule{Kind: KindEvery, Expr: s, Interval: time.Duration(secs) * time.Second}, nil
	}

	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return Schedule{Kind: KindAt, Expr: s, At: at}, nil
	}

	return Schedule{}, errors.WithHint(
		errors.NewInvalidInputError("invalid schedule %q", s),
		"use an interval like 30s, 15m, 2h, 1d, a preset (@hourly, @daily) or an RFC3339 instant")
}

// String returns the schedule as it was written
func (s Schedule) String() string {
	return s.Expr
}

// Next returns the next due instant after from.
// Intervals are evaluated with cron's constant-delay schedule, which works at
// whole-second resolution like the stored timestamps.
func (s Schedule) Next(from time.Time) time.Time {
	if s.Kind == KindAt {
		return s.At
	}
	return cron.Every(s.Interval).Next(from)
}

// ComputeNextRun returns the next due instant for a stored schedule string.
// Unparsable schedules fall back to from + FallbackDelay.
func ComputeNextRun(schedule string, from time.Time) time.Time {
	s, err := ParseSchedule(schedule)
	if err != nil {
		return from.Add(FallbackDelay)
	}
	return s.Next(from)
}

// IsDue reports whether a stored nextRunAt is at or before now.
// Absent or unparsable values are never due.
func IsDue(now time.Time, nextRunAt string) bool {
	if nextRunAt == "" {
		return false
	}
	next, err := parseTime(nextRunAt)
	if err != nil {
		return false
	}
	return !next.After(now)
}
