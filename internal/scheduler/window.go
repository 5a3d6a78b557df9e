package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a recurring daily wall-clock interval that gates task
// eligibility. Start and End are offsets from midnight; Start > End denotes a
// window that wraps past midnight (e.g. 22:00-03:00). Both boundaries are
// inclusive. The zero value (00:00-00:00) matches only midnight itself.
//
// TimeWindow is immutable and safe for concurrent use.
type TimeWindow struct {
	Start time.Duration
	End   time.Duration
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	m := reClock.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM or HH:MM:SS)", s)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec := 0
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if h > 23 || min > 59 || sec > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second, nil
}

// ParseWindow parses "HH:MM-HH:MM" (seconds optional on either side).
func ParseWindow(s string) (TimeWindow, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeWindow{}, fmt.Errorf("invalid time window %q (want HH:MM-HH:MM)", s)
	}
	start, err := ParseClock(from)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("time window %q: %w", s, err)
	}
	end, err := ParseClock(to)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("time window %q: %w", s, err)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// MustWindow is ParseWindow for static window literals; it panics on error.
func MustWindow(s string) TimeWindow {
	w, err := ParseWindow(s)
	if err != nil {
		panic(err)
	}
	return w
}

// Wraps reports whether the window spans midnight.
func (w TimeWindow) Wraps() bool { return w.Start > w.End }

func (w TimeWindow) String() string {
	return fmtClock(w.Start) + "-" + fmtClock(w.End)
}

func fmtClock(d time.Duration) string {
	d = d % (24 * time.Hour)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// clockOffset returns t's wall-clock time as an offset from midnight in t's
// location.
func clockOffset(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// midnight returns the start of t's calendar day in t's location.
func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// Contains reports whether the instant t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	off := clockOffset(t)
	if !w.Wraps() {
		return off >= w.Start && off <= w.End
	}
	return off >= w.Start || off <= w.End
}

// NextStart returns the smallest instant at or after t that is inside the
// window: t itself when already inside, otherwise the window's next opening.
func (w TimeWindow) NextStart(t time.Time) time.Time {
	off := clockOffset(t)
	startToday := midnight(t).Add(w.Start)

	if !w.Wraps() {
		switch {
		case off > w.End:
			return startToday.AddDate(0, 0, 1)
		case off < w.Start:
			return startToday
		default:
			return t
		}
	}
	// Wrapping window: only the gap strictly between End and Start is outside.
	if off > w.End && off < w.Start {
		return startToday
	}
	return t
}
