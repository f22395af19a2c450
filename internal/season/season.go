// Package season evaluates the annual gardening-season window, with
// wrap-around across the calendar year boundary.
package season

import (
	"fmt"
	"time"

	"github.com/danluca/waterly/internal/log"
)

// monthDay is a parsed "MM-DD" value comparable within a single year.
type monthDay struct {
	month time.Month
	day   int
}

func parseMonthDay(s string) (monthDay, error) {
	var m, d int
	if _, err := fmt.Sscanf(s, "%d-%d", &m, &d); err != nil {
		return monthDay{}, fmt.Errorf("season: invalid MM-DD %q: %w", s, err)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return monthDay{}, fmt.Errorf("season: invalid MM-DD %q", s)
	}
	return monthDay{month: time.Month(m), day: d}, nil
}

func (a monthDay) less(b monthDay) bool {
	if a.month != b.month {
		return a.month < b.month
	}
	return a.day < b.day
}

func (a monthDay) equal(b monthDay) bool {
	return a.month == b.month && a.day == b.day
}

func (a monthDay) lessOrEqual(b monthDay) bool {
	return a.less(b) || a.equal(b)
}

// InSeason reports whether dt falls within the [start, stop] window
// described as "MM-DD" strings. If start <= stop, the season is the
// simple closed interval; otherwise it wraps the year boundary and the
// season is "t >= start OR t <= stop". Invalid formats are logged and
// treated as out-of-season for this call only.
func InSeason(dt time.Time, start, stop string) bool {
	s, err := parseMonthDay(start)
	if err != nil {
		log.Warnf("season: %v", err)
		return false
	}
	e, err := parseMonthDay(stop)
	if err != nil {
		log.Warnf("season: %v", err)
		return false
	}
	t := monthDay{month: dt.Month(), day: dt.Day()}

	if s.lessOrEqual(e) {
		return s.lessOrEqual(t) && t.lessOrEqual(e)
	}
	return t.lessOrEqual(e) || s.lessOrEqual(t)
}
