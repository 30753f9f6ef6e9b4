// Package recency decides whether a scraped publish date is recent enough for the feed.
package recency

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/feedgen/internal/locale"
)

const (
	// FreshDays applies to freshness-flagged categories: today only.
	FreshDays = 0
	// DefaultDays applies to every other category.
	DefaultDays = 10
)

// layouts are tried in order against the first ten characters of the date.
// Single-digit day and month are accepted like strptime does.
var layouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2006/1/2",
}

// MaxDays returns the allowed age in days for a run.
func MaxDays(mustBeFresh bool) int {
	if mustBeFresh {
		return FreshDays
	}
	return DefaultDays
}

type Checker struct {
	tables *locale.Tables
	now    func() time.Time
}

func NewChecker(tables *locale.Tables, now func() time.Time) *Checker {
	if tables == nil {
		tables = locale.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Checker{tables: tables, now: now}
}

// IsRecent reports whether dateStr is within maxDays of today, with the reason for the decision.
// Dates in the future count as recent.
func (c *Checker) IsRecent(dateStr string, maxDays int) (bool, string) {
	return IsDateRecent(c.tables, dateStr, maxDays, c.now())
}

// IsDateRecent applies the checks in order: exact ISO date, "today" keyword, relative time
// expression, parseable date within maxDays, then today's day and year appearing in the text.
func IsDateRecent(tables *locale.Tables, dateStr string, maxDays int, now time.Time) (bool, string) {
	if dateStr == "" {
		return false, "no date"
	}

	lower := strings.ToLower(strings.TrimSpace(dateStr))
	today := now.Format(time.DateOnly)
	head := prefix(dateStr, 10)

	if head == today {
		return true, fmt.Sprintf("exact match (%s)", today)
	}
	if tables.HasTodayKeyword(lower) {
		return true, fmt.Sprintf("keyword match (%s)", dateStr)
	}
	if tables.HasRelativeTime(lower) {
		return true, fmt.Sprintf("recent time (%s)", dateStr)
	}

	if parsed, ok := parseDate(head, now.Location()); ok {
		todayDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		days := int(math.Round(todayDate.Sub(parsed).Hours() / 24))
		if days <= maxDays {
			return true, fmt.Sprintf("within %d days (%s, %d days ago)", maxDays, parsed.Format(time.DateOnly), days)
		}
		return false, fmt.Sprintf("too old (%s, %d days ago > %d)", parsed.Format(time.DateOnly), days, maxDays)
	}

	if strings.Contains(dateStr, strconv.Itoa(now.Day())) && strings.Contains(dateStr, strconv.Itoa(now.Year())) {
		return true, fmt.Sprintf("date components match (%s)", dateStr)
	}
	return false, fmt.Sprintf("not recent (%s)", dateStr)
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
