package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// calendarLayouts are tried first, in order. Day-first layouts are used for
// slashed dates because the loggers in the field are configured that way.
// "2006-01-02 15:04:05" and the two-digit-year form are deliberately absent:
// they have their own steps later in the chain.
var calendarLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04:05",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"02-01-2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"Jan 2, 2006 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
}

var twoDigitYear = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`)

const isoSpaced = "2006-01-02 15:04:05"

// Spreadsheet serial dates count days from 1899-12-30. Serials past
// 9999-12-31 are not dates.
const maxSerial = 2958466

var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// timeParser turns a time cell into Unix seconds. Naive timestamps are read
// in loc.
type timeParser struct {
	loc *time.Location
}

func (p timeParser) parse(cell string) (int64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, fmt.Errorf("blank time")
	}
	for _, layout := range calendarLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t.Unix(), nil
		}
	}
	if t, ok := p.parseTwoDigitYear(s); ok {
		return t.Unix(), nil
	}
	if t, err := time.ParseInLocation(isoSpaced, s, p.loc); err == nil {
		return t.Unix(), nil
	}
	if t, ok := p.parseSerial(s); ok {
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("unparsable time %q", s)
}

// parseTwoDigitYear reads DD-MM-YY HH:MM:SS. Years below 70 are 20xx, the
// rest 19xx.
func (p timeParser) parseTwoDigitYear(s string) (time.Time, bool) {
	m := twoDigitYear.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	n := make([]int, 6)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	day, month, year := n[0], n[1], n[2]
	if year < 70 {
		year += 2000
	} else {
		year += 1900
	}
	hour, min, sec := n[3], n[4], n[5]
	if hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, p.loc)
	// time.Date normalizes 31-02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// parseSerial reads a spreadsheet serial date. The fraction is the time of day
// as wall-clock time in loc, rounded to the second.
func (p timeParser) parseSerial(s string) (time.Time, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 1 || v >= maxSerial {
		return time.Time{}, false
	}
	days := math.Floor(v)
	secs := math.Round((v - days) * 86400)
	u := serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second)
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, p.loc), true
}
