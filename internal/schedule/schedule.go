package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression. Fields are bitmasks,
// bit N set means value N matches.
type Schedule struct {
	minute mask
	hour   mask
	dom    mask
	month  mask
	dow    mask
}

type mask uint64

func (m mask) has(v int) bool { return m&(1<<uint(v)) != 0 }

var macros = map[string]string{
	"@hourly":  "0 * * * *",
	"@daily":   "0 0 * * *",
	"@weekly":  "0 0 * * 0",
	"@monthly": "0 0 1 * *",
	"@yearly":  "0 0 1 1 *",
}

// Parse validates a cron expression before it is handed to the gateway,
// so a typo fails the API request instead of a job that never fires.
// Standard 5-field syntax (minute hour day-of-month month day-of-week)
// plus the common @ macros.
func Parse(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if repl, ok := macros[expr]; ok {
		expr = repl
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("schedule: expected 5 fields, got %d", len(fields))
	}

	var s Schedule
	var err error
	if s.minute, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("schedule: minute: %w", err)
	}
	if s.hour, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("schedule: hour: %w", err)
	}
	if s.dom, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("schedule: day-of-month: %w", err)
	}
	if s.month, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("schedule: month: %w", err)
	}
	if s.dow, err = parseField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("schedule: day-of-week: %w", err)
	}
	return &s, nil
}

// Next returns the first fire time strictly after from, or the zero time
// if nothing matches within four years.
func (s *Schedule) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !s.dom.has(t.Day()) || !s.dow.has(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !s.hour.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !s.minute.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// parseField handles *, single values, ranges, steps, and comma lists.
func parseField(field string, min, max int) (mask, error) {
	var m mask
	for _, part := range strings.Split(field, ",") {
		pm, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		m |= pm
	}
	if m == 0 {
		return 0, fmt.Errorf("empty field")
	}
	return m, nil
}

func parsePart(part string, min, max int) (mask, error) {
	step := 1
	if base, rest, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", rest)
		}
		step = n
		part = base
		// A bare value with a step means "from value to max".
		if part != "*" && !strings.Contains(part, "-") {
			part += "-" + strconv.Itoa(max)
		}
	}

	low, high := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		var err error
		if low, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("invalid range start %q", a)
		}
		if high, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("invalid range end %q", b)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", part)
		}
		low, high = v, v
	}

	if low < min || high > max || low > high {
		return 0, fmt.Errorf("range %d-%d out of bounds [%d, %d]", low, high, min, max)
	}

	var m mask
	for i := low; i <= high; i += step {
		m |= 1 << uint(i)
	}
	return m, nil
}
