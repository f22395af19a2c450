package season

import (
	"testing"
	"time"
)

func TestInSeasonWrap(t *testing.T) {
	jan15 := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	jun1 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if !InSeason(jan15, "11-01", "03-31") {
		t.Error("Jan 15 should be in a Nov1-Mar31 wrapping season")
	}
	if InSeason(jun1, "11-01", "03-31") {
		t.Error("Jun 1 should be out of a Nov1-Mar31 wrapping season")
	}
}

func TestInSeasonNonWrapping(t *testing.T) {
	jul4 := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
	if !InSeason(jul4, "04-01", "10-31") {
		t.Error("Jul 4 should be within Apr1-Oct31")
	}
	dec25 := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	if InSeason(dec25, "04-01", "10-31") {
		t.Error("Dec 25 should be outside Apr1-Oct31")
	}
}

func TestInSeasonInvalidFormat(t *testing.T) {
	now := time.Now()
	if InSeason(now, "not-a-date", "03-31") {
		t.Error("invalid start should evaluate as out-of-season")
	}
}
