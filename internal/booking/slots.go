package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotDuration is the fixed booking grid.
const SlotDuration = time.Hour

// DayKeys maps time.Weekday (Sunday = 0) to the keys used in the stored
// weekly availability template.
var DayKeys = [7]string{"domingo", "segunda", "terca", "quarta", "quinta", "sexta", "sabado"}

// DayKey returns the availability key for the weekday of t.
func DayKey(t time.Time) string {
	return DayKeys[t.Weekday()]
}

// DayWindow is one entry of the weekly availability template.
type DayWindow struct {
	Enabled bool
	Start   string
	End     string
}

// ParseClock parses an "HH:MM" string into hour and minute.
func ParseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}

// ValidateWindow checks the clock strings of an enabled window and that it
// starts before it ends.
func ValidateWindow(w DayWindow) error {
	sh, sm, err := ParseClock(w.Start)
	if err != nil {
		return err
	}
	eh, em, err := ParseClock(w.End)
	if err != nil {
		return err
	}
	if w.Enabled && sh*60+sm >= eh*60+em {
		return fmt.Errorf("window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// SlotTimes returns the bookable hourly slot instants of day inside w.
// Slots equal to one of booked (epoch millis) are skipped, and when day is
// the same calendar day as now only slots strictly after now are kept.
// day is interpreted in its own location.
func SlotTimes(w DayWindow, day time.Time, booked []int64, now time.Time) ([]time.Time, error) {
	if !w.Enabled || w.Start == "" || w.End == "" {
		return nil, nil
	}
	sh, sm, err := ParseClock(w.Start)
	if err != nil {
		return nil, err
	}
	eh, em, err := ParseClock(w.End)
	if err != nil {
		return nil, err
	}

	loc := day.Location()
	y, mo, d := day.Date()
	start := time.Date(y, mo, d, sh, sm, 0, 0, loc)
	end := time.Date(y, mo, d, eh, em, 0, 0, loc)

	taken := make(map[int64]struct{}, len(booked))
	for _, ms := range booked {
		taken[ms] = struct{}{}
	}

	nowLocal := now.In(loc)
	ny, nmo, nd := nowLocal.Date()
	isToday := ny == y && nmo == mo && nd == d

	var slots []time.Time
	for cur := start; cur.Before(end); cur = cur.Add(SlotDuration) {
		if isToday && !cur.After(now) {
			continue
		}
		if _, ok := taken[cur.UnixMilli()]; ok {
			continue
		}
		slots = append(slots, cur)
	}
	return slots, nil
}

// Slots is SlotTimes rendered as "HH:mm" labels.
func Slots(w DayWindow, day time.Time, booked []int64, now time.Time) ([]string, error) {
	times, err := SlotTimes(w, day, booked, now)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(times))
	for _, t := range times {
		labels = append(labels, t.Format("15:04"))
	}
	return labels, nil
}
