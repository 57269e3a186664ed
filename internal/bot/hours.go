package bot

import (
	"regexp"
	"strconv"

	"github.com/gudTECH/nag-bot/internal/window"
)

var (
	getHoursPattern   = regexp.MustCompile(`^(?:get|show) (?:hours|options|settings)$`)
	getPeoplePattern  = regexp.MustCompile(`^(?:get|show) (?:people|team)$`)
	setHoursPattern   = regexp.MustCompile(`^set hours (\d{1,2})(?::(\d{1,2}))? ?(am|pm)? ?- ?(\d+)(?::(\d{1,2}))? ?(am|pm)?$`)
	setLunchPattern   = regexp.MustCompile(`^set lunch hours (\d{1,2})(?::(\d{1,2}))? ?(am|pm)? ?- ?(\d+)(?::(\d{1,2}))? ?(am|pm)?$`)
	ticketPickPattern = regexp.MustCompile(`^\d+$`)
)

// parseHoursRange turns a "set hours"/"set lunch hours" match into two
// clocks. The am/pm rule is asymmetric: the start hour gains 12 only when
// marked "pm", while the end hour gains 12 whenever it is NOT marked "am",
// so "9-5" reads as 09:00 to 17:00. Hours at or past 12 are never shifted.
func parseHoursRange(match []string) (window.Clock, window.Clock, bool) {
	startHour, _ := strconv.Atoi(match[1])
	startMinute := 0
	if match[2] != "" {
		startMinute, _ = strconv.Atoi(match[2])
	}
	if match[3] == "pm" {
		startHour = addTwelve(startHour)
	}

	endHour, _ := strconv.Atoi(match[4])
	endMinute := 0
	if match[5] != "" {
		endMinute, _ = strconv.Atoi(match[5])
	}
	if match[6] != "am" {
		endHour = addTwelve(endHour)
	}

	start := window.NewClock(startHour, startMinute)
	end := window.NewClock(endHour, endMinute)
	if !start.Valid() || !end.Valid() {
		return window.Clock{}, window.Clock{}, false
	}
	return start, end, true
}

func addTwelve(hour int) int {
	if hour >= 12 {
		return hour
	}
	return hour + 12
}
