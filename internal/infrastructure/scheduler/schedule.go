package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSchedule parses a SCHEDULER_* value. Two forms are accepted:
//   - "@every <duration>", e.g. "@every 15m": runs that long after the previous run;
//   - a 5-field cron expression "minute hour day-of-month month day-of-week",
//     e.g. "5 0 * * *" for the missed-day scan just after midnight.
//
// Cron fields take comma-separated terms, each "*", "n" or "n-m" with an
// optional "/step" ("n/step" runs from n to the field maximum).
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("schedule %q: interval must be positive", spec)
		}
		return Every(d), nil
	}
	return parseCron(spec)
}

// ═══════════════════════════════════════════════════════════════════════════
// Every
// ═══════════════════════════════════════════════════════════════════════════

// Every fires a fixed interval after the previous run. Non-positive never fires.
type Every time.Duration

// Next returns t plus the interval.
func (e Every) Next(t time.Time) time.Time {
	if e <= 0 {
		return time.Time{}
	}
	return t.Add(time.Duration(e))
}

func (e Every) String() string { return "@every " + time.Duration(e).String() }

// ═══════════════════════════════════════════════════════════════════════════
// Cron
// ═══════════════════════════════════════════════════════════════════════════

// Cron is a parsed 5-field expression. Next evaluates it in the zone of the
// time it is given, so the scheduler's timezone decides what "00:05" means.
type Cron struct {
	spec string

	// bit v is set when value v matches
	minute, hour, dom, month, dow uint64
}

var cronFields = [5]struct {
	name   string
	lo, hi int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6}, // 0 = Sunday
}

func parseCron(spec string) (*Cron, error) {
	fields := strings.Fields(spec)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("cron %q: want %d fields, got %d", spec, len(cronFields), len(fields))
	}
	var sets [len(cronFields)]uint64
	for i, f := range fields {
		set, err := parseCronField(f, cronFields[i].lo, cronFields[i].hi)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s: %w", spec, cronFields[i].name, err)
		}
		sets[i] = set
	}
	return &Cron{spec: spec, minute: sets[0], hour: sets[1], dom: sets[2], month: sets[3], dow: sets[4]}, nil
}

func parseCronField(field string, lo, hi int) (uint64, error) {
	var set uint64
	for _, term := range strings.Split(field, ",") {
		span, stepText, stepped := strings.Cut(term, "/")
		step := 1
		if stepped {
			n, err := strconv.Atoi(stepText)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("bad step %q", term)
			}
			step = n
		}

		from, to := lo, hi
		if span != "*" {
			first, last, ranged := strings.Cut(span, "-")
			var err error
			if from, err = cronValue(first, lo, hi); err != nil {
				return 0, err
			}
			switch {
			case ranged:
				if to, err = cronValue(last, lo, hi); err != nil {
					return 0, err
				}
				if to < from {
					return 0, fmt.Errorf("bad range %q", span)
				}
			case !stepped:
				to = from
			}
		}
		for v := from; v <= to; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func cronValue(s string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("value %d outside %d-%d", v, lo, hi)
	}
	return v, nil
}

// Next returns the first matching minute after the given time, or the zero
// time if nothing matches within four years (e.g. "0 0 31 2 *").
func (c *Cron) Next(after time.Time) time.Time {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		y, m, d := t.Date()
		switch {
		case !c.onDay(t):
			t = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		case c.hour&(1<<uint(t.Hour())) == 0:
			t = time.Date(y, m, d, t.Hour()+1, 0, 0, 0, loc)
		case c.minute&(1<<uint(t.Minute())) == 0:
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

func (c *Cron) onDay(t time.Time) bool {
	return c.dom&(1<<uint(t.Day())) != 0 &&
		c.month&(1<<uint(t.Month())) != 0 &&
		c.dow&(1<<uint(t.Weekday())) != 0
}

func (c *Cron) String() string { return c.spec }
