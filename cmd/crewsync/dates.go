package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate accepts ISO dates (2025-06-02) and phrases such as "today",
// "next monday" or "in 3 days", relative to base.
func parseDate(text string, base time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation("2006-01-02", text, base.Location()); err == nil {
		return t, nil
	}
	switch strings.ToLower(text) {
	case "today", "now":
		return day(base), nil
	}

	r, err := dateParser.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot understand date %q", text)
	}
	return day(r.Time), nil
}

// parseClock combines a date with an HH:MM time of day.
func parseClock(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q must be HH:MM", clock)
	}
	d := day(date)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location()), nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
