// Package dates holds the date layouts accepted in bank messages.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layouts are tried in order; day-first forms come before month-first ones.
var Layouts = []string{
	"2/1/2006",
	"2006-1-2",
	"1/2/2006",
	"2-1-2006",
	"2006/1/2",
	"2.1.2006",
	"2006.1.2",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	"2/1/2006 15:04:05",
}

// Parse returns the first successful interpretation of s.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ISO renders s as YYYY-MM-DD.
func ISO(s string) (string, bool) {
	t, ok := Parse(s)
	if !ok {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

var dayMonth = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})$`)

// Resolve is ISO plus day/month dates without a year, which take the year
// of ref.
func Resolve(s string, ref time.Time) (string, bool) {
	if iso, ok := ISO(s); ok {
		return iso, true
	}
	m := dayMonth.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	t := time.Date(ref.Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// Valid reports whether s is a full date or a day/month that exists in some
// year.
func Valid(s string) bool {
	if _, ok := Parse(s); ok {
		return true
	}
	_, ok := Resolve(s, leapYear)
	return ok
}

var leapYear = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
