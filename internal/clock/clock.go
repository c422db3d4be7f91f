// Package clock holds the calendar and shift-window arithmetic shared by the
// schedule registry, booking ledger, and availability calculator. Everything
// here is pure; no storage, no wall clock.
package clock

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Shift names one of the three fixed daily windows a practitioner can work.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
)

// Shifts lists all shifts in chronological order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon, ShiftEvening}

func (s Shift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftAfternoon, ShiftEvening:
		return true
	}
	return false
}

func ParseShift(raw string) (Shift, error) {
	s := Shift(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown shift %q", raw)
	}
	return s, nil
}

// TimeOfDay is a clock time with minute precision, counted as minutes since
// midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		// Tolerate an HH:MM:SS form as long as the seconds are zero.
		t, err = time.Parse("15:04:05", raw)
		if err != nil {
			return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
		}
		if t.Second() != 0 {
			return 0, fmt.Errorf("time of day %q has sub-minute precision", raw)
		}
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Window is a daily time window. The morning shift's upper bound is inclusive
// while the others' are exclusive; that asymmetry is long-standing observed
// behavior and is kept as-is.
type Window struct {
	Start          TimeOfDay
	End            TimeOfDay
	UpperInclusive bool
}

func (w Window) Contains(t TimeOfDay) bool {
	if t < w.Start {
		return false
	}
	if t < w.End {
		return true
	}
	return w.UpperInclusive && t == w.End
}

var shiftWindows = map[Shift]Window{
	ShiftMorning:   {Start: NewTimeOfDay(8, 0), End: NewTimeOfDay(11, 0), UpperInclusive: true},
	ShiftAfternoon: {Start: NewTimeOfDay(14, 0), End: NewTimeOfDay(17, 0)},
	ShiftEvening:   {Start: NewTimeOfDay(17, 0), End: NewTimeOfDay(20, 0)},
}

// ShiftWindow returns the fixed window for a shift. The zero Window is
// returned for an invalid shift; it contains no time of day.
func ShiftWindow(s Shift) Window {
	return shiftWindows[s]
}

// InShift reports whether t falls inside the shift's window.
func InShift(t TimeOfDay, s Shift) bool {
	return ShiftWindow(s).Contains(t)
}

// ShiftAt resolves the shift whose window contains t. The windows do not
// overlap, so at most one shift matches.
func ShiftAt(t TimeOfDay) (Shift, bool) {
	for _, s := range Shifts {
		if InShift(t, s) {
			return s, true
		}
	}
	return "", false
}

// DateOf strips the time component, keeping the location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return d, nil
}

// WeekStart returns the Monday on or before date. Sunday counts as day seven
// of the prior week, so a Sunday maps to the Monday six days earlier.
func WeekStart(date time.Time) time.Time {
	d := DateOf(date)
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, -(wd - 1))
}
