// Package daterange works with inclusive civil-day intervals.
//
// A day is a time.Time at midnight UTC; the civil date is read from its
// year, month and day. Use Day, ParseDay or Today to build values.
package daterange

import (
	"fmt"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// Range is a closed day interval: both From and To are blocked.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.From.Format(dayLayout), r.To.Format(dayLayout))
}

// Valid reports whether To is not before From.
func (r Range) Valid() bool {
	return !r.To.Before(r.From)
}

// Day returns the civil date of t in loc as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current civil date in loc.
func Today(loc *time.Location) time.Time {
	return Day(time.Now(), loc)
}

// ParseDay parses a YYYY-MM-DD civil date.
func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return d, nil
}

func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// AddDays moves a civil day by n days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// Overlaps implements the inclusive overlap rule: [a,b] and [c,d] share a day
// iff a <= d and c <= b.
func Overlaps(x, y Range) bool {
	return !x.From.After(y.To) && !y.From.After(x.To)
}

// Merge collapses overlapping or touching intervals into a sorted, minimal,
// disjoint set. Intervals ending and starting on consecutive days merge.
func Merge(ranges []Range) []Range {
	if len(ranges) == 0 {
		return []Range{}
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].From.Before(sorted[j].From)
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.From.After(AddDays(last.To, 1)) {
			if r.To.After(last.To) {
				last.To = r.To
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
