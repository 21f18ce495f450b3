// Package timeutil formats times for Russian-speaking users in a configured
// timezone. A nil location means UTC everywhere.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// In converts t to loc.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// LayoutShort is the day.month time layout used in chat history.
const LayoutShort = "02.01 15:04"

// FormatShort formats t as "02.01 15:04" in loc.
func FormatShort(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(LayoutShort)
}

// FormatRussian formats t as "10 марта 2025" in loc.
func FormatRussian(t time.Time, loc *time.Location) string {
	local := In(t, loc)
	return fmt.Sprintf("%d %s %d", local.Day(), MonthNameRu(local.Month()), local.Year())
}

// MonthNameRu returns the genitive month name ("марта").
func MonthNameRu(m time.Month) string {
	months := [...]string{
		"января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря",
	}
	if m < time.January || m > time.December {
		return ""
	}
	return months[m-1]
}

// weekdayPluralRu is the "по понедельникам" form.
var weekdayPluralRu = [...]string{
	"по воскресеньям", "по понедельникам", "по вторникам", "по средам",
	"по четвергам", "по пятницам", "по субботам",
}

// DescribeCron turns the simple "M H * * *" and "M H * * D" expressions into
// text like "каждый день в 09:00". Anything else is returned unchanged.
func DescribeCron(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 || fields[2] != "*" || fields[3] != "*" {
		return expr
	}

	minute, errM := strconv.Atoi(fields[0])
	hour, errH := strconv.Atoi(fields[1])
	if errM != nil || errH != nil || minute < 0 || minute > 59 || hour < 0 || hour > 23 {
		return expr
	}
	clock := fmt.Sprintf("%02d:%02d", hour, minute)

	if fields[4] == "*" {
		return "каждый день в " + clock
	}
	day, err := strconv.Atoi(fields[4])
	if err != nil || day < 0 || day > 7 {
		return expr
	}
	return weekdayPluralRu[day%7] + " в " + clock
}
