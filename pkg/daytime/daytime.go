// Package daytime converts between weekday indices, "HH:mm" clock strings and
// the weekday numbering used by the notification scheduler.
//
// Internally a weekday is 0..6 with 0 = Sunday (the time.Weekday convention).
// The notification scheduler numbers weekdays 1..7 with 1 = Sunday.
package daytime

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedTime  = errors.New("time must be zero-padded 24-hour HH:mm")
	ErrInvalidWeekday = errors.New("weekday out of range")
)

var (
	dayNames      = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	shortDayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
)

// WeekdayIndex returns the internal weekday of t, 0 = Sunday.
func WeekdayIndex(t time.Time) int {
	return int(t.Weekday())
}

// ToPlatformWeekday maps an internal weekday (0..6) to the scheduler's 1..7.
func ToPlatformWeekday(day int) (int, error) {
	if day < 0 || day > 6 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, day)
	}
	if day == 0 {
		return 1, nil
	}
	return day + 1, nil
}

// FromPlatformWeekday is the inverse of ToPlatformWeekday.
func FromPlatformWeekday(weekday int) (int, error) {
	if weekday < 1 || weekday > 7 {
		return 0, fmt.Errorf("%w: platform weekday %d", ErrInvalidWeekday, weekday)
	}
	return weekday - 1, nil
}

// ParseTime splits a zero-padded "HH:mm" string. Anything else, including
// "8:00" or "24:00", is rejected rather than coerced.
func ParseTime(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
	}
	hour = int(s[0]-'0')*10 + int(s[1]-'0')
	minute = int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return hour, minute, nil
}

// FormatTime renders hour and minute as "HH:mm".
func FormatTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// FormatTime12h renders "HH:mm" as "h:mm AM/PM".
func FormatTime12h(s string) (string, error) {
	hour, minute, err := ParseTime(s)
	if err != nil {
		return "", err
	}
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, minute, period), nil
}

// IsDueOnDay reports whether the weekday of t is in days.
func IsDueOnDay(days []int, t time.Time) bool {
	return containsDay(days, WeekdayIndex(t))
}

// NextOccurrence returns the first instant strictly after from that falls on
// one of days at the given clock time, scanning at most one week ahead. ok is
// false when days holds no valid weekday.
func NextOccurrence(clock string, days []int, from time.Time) (next time.Time, ok bool, err error) {
	hour, minute, err := ParseTime(clock)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(days) == 0 {
		return time.Time{}, false, nil
	}
	for i := 0; i <= 7; i++ {
		d := from.AddDate(0, 0, i)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, from.Location())
		if candidate.After(from) && containsDay(days, WeekdayIndex(candidate)) {
			return candidate, true, nil
		}
	}
	return time.Time{}, false, nil
}

// DayName returns the English name of an internal weekday, or "" if out of range.
func DayName(day int) string {
	if day < 0 || day > 6 {
		return ""
	}
	return dayNames[day]
}

// ShortDayName returns the three-letter name of an internal weekday.
func ShortDayName(day int) string {
	if day < 0 || day > 6 {
		return ""
	}
	return shortDayNames[day]
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
