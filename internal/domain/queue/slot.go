package queue

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultShiftStart        = "08:00"
	DefaultConsultMinutes    = 25
	DefaultMaxPatientsPerDay = 19
)

// SlotTime maps a 1-based queue number to a wall-clock time: shift start plus
// (n-1) consultation slots, formatted HH:MM. Times wrap modulo 24 hours.
// shiftStart falls back to DefaultShiftStart when unparsable and
// consultMinutes to DefaultConsultMinutes when non-positive, so the function
// never fails.
func SlotTime(queueNumber int, shiftStart string, consultMinutes int) string {
	if queueNumber < 1 {
		queueNumber = 1
	}
	if consultMinutes <= 0 {
		consultMinutes = DefaultConsultMinutes
	}

	startMinutes, ok := parseClock(shiftStart)
	if !ok {
		startMinutes, _ = parseClock(DefaultShiftStart)
	}

	total := (startMinutes + (queueNumber-1)*consultMinutes) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
