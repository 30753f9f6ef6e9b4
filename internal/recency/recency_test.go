package recency

import (
	"testing"
	"time"

	"github.com/deusflow/feedgen/internal/locale"
)

var now = time.Date(2026, time.January, 14, 15, 30, 0, 0, time.UTC)

func recent(date string, maxDays int) bool {
	ok, _ := IsDateRecent(locale.Default(), date, maxDays, now)
	return ok
}

func TestIsDateRecent_ExactAndWindow(t *testing.T) {
	if !recent("2026-01-14", 0) {
		t.Error("today should be recent with maxDays=0")
	}
	if !recent("2026-01-14T08:00:00+01:00", 0) {
		t.Error("today with time should be recent")
	}
	if recent("2024-01-01", 0) {
		t.Error("old date should not be recent")
	}

	nDaysAgo := now.AddDate(0, 0, -4).Format(time.DateOnly)
	if !recent(nDaysAgo, 4) {
		t.Errorf("%s should be within 4 days", nDaysAgo)
	}
	if recent(nDaysAgo, 3) {
		t.Errorf("%s should not be within 3 days", nDaysAgo)
	}
}

func TestIsDateRecent_Formats(t *testing.T) {
	cases := []struct {
		date    string
		maxDays int
		want    bool
	}{
		{"13/01/2026", 10, true},
		{"01/13/2026", 10, true},
		{"13-01-2026", 10, true},
		{"2026/01/10", 10, true},
		{"2025/12/01", 10, false},
		{"2026-01-20", 0, true}, // future
		{"", 10, false},
	}
	for _, c := range cases {
		if got := recent(c.date, c.maxDays); got != c.want {
			t.Errorf("recent(%q, %d) = %v, want %v", c.date, c.maxDays, got, c.want)
		}
	}
}

func TestIsDateRecent_KeywordsAndRelative(t *testing.T) {
	for _, s := range []string{"Oggi alle 10:00", "Just now", "2 ore fa", "45 minutes ago", "hace 3 horas"} {
		if !recent(s, 0) {
			t.Errorf("%q should be recent", s)
		}
	}
}

func TestIsDateRecent_ComponentFallback(t *testing.T) {
	if !recent("14 gennaio 2026", 0) {
		t.Error("day and year present should be recent")
	}
	if recent("3 gennaio 2025", 0) {
		t.Error("other day should not be recent")
	}
}

func TestIsDateRecent_Reason(t *testing.T) {
	ok, reason := IsDateRecent(locale.Default(), "2025-12-01", 10, now)
	if ok || reason != "too old (2025-12-01, 44 days ago > 10)" {
		t.Errorf("got %v %q", ok, reason)
	}
}

func TestMaxDays(t *testing.T) {
	if MaxDays(true) != 0 || MaxDays(false) != 10 {
		t.Error("unexpected max days")
	}
}

func TestChecker(t *testing.T) {
	c := NewChecker(nil, func() time.Time { return now })
	if ok, _ := c.IsRecent("2026-01-14", 0); !ok {
		t.Error("checker should use injected clock")
	}
}
