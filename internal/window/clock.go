package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day with minute resolution, independent of any date or
// zone. The persisted form is "15:04".
type Clock struct {
	Hour   int
	Minute int
}

func NewClock(hour, minute int) Clock {
	return Clock{Hour: hour, Minute: minute}
}

func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", raw, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", raw, err)
	}
	c := Clock{Hour: hour, Minute: minute}
	if !c.Valid() {
		return Clock{}, fmt.Errorf("clock %q out of range", raw)
	}
	return c, nil
}

func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Format12 renders the clock the way it is shown to users, e.g. "05:30 PM".
func (c Clock) Format12() string {
	suffix := "AM"
	hour := c.Hour
	if hour >= 12 {
		suffix = "PM"
	}
	if hour > 12 {
		hour -= 12
	}
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour, c.Minute, suffix)
}

// On anchors the clock to the calendar date of day in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
}
