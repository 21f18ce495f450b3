package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common cron expressions.
const (
	EveryHour      = "0 * * * *"
	EveryDay9AM    = "0 9 * * *"
	EveryMonday9AM = "0 9 * * 1"
)

// CronExpression is a parsed five-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Each field accepts "*", "n", "n-m", an optional "/step" and comma
// separated lists of those. Day of week is 0-7 with both 0 and 7 meaning
// Sunday. When both day fields are restricted a day matches if either does.
// Next evaluates in the location of the time it is given.
type CronExpression struct {
	raw string

	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64

	domAny bool
	dowAny bool
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 7},
}

// ParseCronExpression parses expr.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, field := range fields {
		bits, err := parseCronField(field, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %s: %w", expr, cronFields[i].name, err)
		}
		sets[i] = bits
	}

	// 7 is Sunday
	if sets[4]&(1<<7) != 0 {
		sets[4] = sets[4]&^(1<<7) | 1
	}

	return &CronExpression{
		raw:    expr,
		minute: sets[0],
		hour:   sets[1],
		dom:    sets[2],
		month:  sets[3],
		dow:    sets[4],
		domAny: fields[2] == "*",
		dowAny: fields[4] == "*",
	}, nil
}

// MustParseCronExpression is ParseCronExpression for constant expressions.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseCronField(field string, f cronField) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		b, err := parseCronPart(part, f)
		if err != nil {
			return 0, err
		}
		bits |= b
	}
	return bits, nil
}

func parseCronPart(part string, f cronField) (uint64, error) {
	span, stepText, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepText)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		step = s
	}

	lo, hi := f.min, f.max
	switch {
	case span == "*":
	case strings.Contains(span, "-"):
		from, to, _ := strings.Cut(span, "-")
		var err error
		if lo, err = cronValue(from, f); err != nil {
			return 0, err
		}
		if hi, err = cronValue(to, f); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("invalid range %q", span)
		}
	default:
		v, err := cronValue(span, f)
		if err != nil {
			return 0, err
		}
		// "5/15" runs from 5 to the end of the field
		lo = v
		if !hasStep {
			hi = v
		}
	}

	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= 1 << uint(v)
	}
	return bits, nil
}

func cronValue(s string, f cronField) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("value %d out of range [%d-%d]", v, f.min, f.max)
	}
	return v, nil
}

// String returns the expression as written.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after after, or the zero
// time if nothing matches within five years (e.g. "0 0 31 2 *").
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	loc := t.Location()
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		switch {
		case ce.month&(1<<uint(t.Month())) == 0:
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !ce.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case ce.hour&(1<<uint(t.Hour())) == 0:
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case ce.minute&(1<<uint(t.Minute())) == 0:
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	dom := ce.dom&(1<<uint(t.Day())) != 0
	dow := ce.dow&(1<<uint(t.Weekday())) != 0
	if ce.domAny || ce.dowAny {
		return dom && dow
	}
	return dom || dow
}
