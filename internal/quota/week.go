package quota

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date format used across the ledger.
const DateLayout = "2006-01-02"

// ParseWeekStartDay maps a configured day name to a time.Weekday.
func ParseWeekStartDay(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday", "":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return time.Monday, fmt.Errorf("unknown week start day %q", name)
}

// WeekWindow returns the inclusive [start, end] calendar dates of the week
// containing asOf, where weeks begin on weekStart.
func WeekWindow(asOf time.Time, weekStart time.Weekday) (start, end string) {
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
	first := day.AddDate(0, 0, -offset)
	return first.Format(DateLayout), first.AddDate(0, 0, 6).Format(DateLayout)
}

// WindowEndingOn returns the inclusive week window that closes on weekEnd.
func WindowEndingOn(weekEnd string) (start, end string, err error) {
	t, err := time.Parse(DateLayout, weekEnd)
	if err != nil {
		return "", "", fmt.Errorf("parse week end %q: %w", weekEnd, err)
	}
	return t.AddDate(0, 0, -6).Format(DateLayout), weekEnd, nil
}
