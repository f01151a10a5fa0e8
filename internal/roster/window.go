package roster

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a time-of-day range in minutes since midnight, both ends inclusive.
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// MinuteOfDay returns t's local minute of the day.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid time window %q", s)
	}
	sm, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	em, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	if em < sm {
		return Window{}, fmt.Errorf("time window %q ends before it starts", s)
	}
	return Window{StartMinute: sm, EndMinute: em}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.StartMinute/60, w.StartMinute%60, w.EndMinute/60, w.EndMinute%60)
}
