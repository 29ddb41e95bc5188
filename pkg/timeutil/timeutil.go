// Package timeutil resolves the engine's calendar timezone and computes day
// boundaries in it. A user's "day" for streak purposes starts at local
// midnight of the configured zone, not UTC.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a zone name. Besides IANA names it accepts fixed
// offsets ("UTC+5", "UTC-03:30") for hosts without tzdata, and maps
// "Asia/Almaty" to AlmatyTZ when tzdata is missing.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}
	if name == "Asia/Almaty" {
		return AlmatyTZ, nil
	}

	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "UTC") || len(upper) < 5 {
		return nil, fmt.Errorf("unknown time zone %q", name)
	}
	offset, err := parseOffset(upper[3:])
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return time.FixedZone(upper, offset), nil
}

// parseOffset parses "+5", "-3", "+05:30".
func parseOffset(s string) (int, error) {
	sign := 1
	switch s[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("offset must start with + or -")
	}

	hm := strings.SplitN(s[1:], ":", 2)
	h, err := strconv.Atoi(hm[0])
	if err != nil || h > 14 {
		return 0, fmt.Errorf("invalid hours %q", hm[0])
	}
	m := 0
	if len(hm) == 2 {
		m, err = strconv.Atoi(hm[1])
		if err != nil || m > 59 {
			return 0, fmt.Errorf("invalid minutes %q", hm[1])
		}
	}
	return sign * (h*3600 + m*60), nil
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// NextMidnight returns the first local midnight in loc strictly after t.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, loc)
}

// UntilNextMidnight returns how long remains of t's day in loc.
func UntilNextMidnight(t time.Time, loc *time.Location) time.Duration {
	return NextMidnight(t, loc).Sub(t)
}
