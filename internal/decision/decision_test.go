package decision

import (
	"testing"
	"time"

	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"
)

// fakeStore returns a fixed slice of rows regardless of the requested
// from/count, relying on ShouldWater's own time-range filtering — this
// mirrors the store's documented ascending/descending contract closely
// enough for these tests since every fixture row already falls in range.
type fakeStore struct {
	rows []model.WeatherRecord
}

func (f fakeStore) GetWeather(from time.Time, count int) ([]model.WeatherRecord, error) {
	return f.rows, nil
}

func prob(p float64) *float64 { return &p }

func TestShouldWaterRainCancels(t *testing.T) {
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	var rows []model.WeatherRecord
	for h := 1; h <= 6; h++ {
		rows = append(rows, model.WeatherRecord{
			ForecastTS:               now.Add(time.Duration(h) * time.Hour),
			PrecipitationAmount:      5.0 / 6,
			PrecipitationProbability: prob(0.8),
		})
	}

	store := fakeStore{rows: rows}
	v, err := ShouldWater(now, store, units.Millimeter, 0.5)
	if err != nil {
		t.Fatalf("ShouldWater: %v", err)
	}
	if v.ShouldWater {
		t.Errorf("expected rain to cancel watering, got ShouldWater=true (reason=%q)", v.Reason)
	}
}

func TestShouldWaterNoRainProceeds(t *testing.T) {
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	var rows []model.WeatherRecord
	for h := -6; h <= 6; h++ {
		if h == 0 {
			continue
		}
		rows = append(rows, model.WeatherRecord{
			ForecastTS:               now.Add(time.Duration(h) * time.Hour),
			PrecipitationAmount:      0,
			PrecipitationProbability: prob(0.05),
		})
	}

	store := fakeStore{rows: rows}
	v, err := ShouldWater(now, store, units.Millimeter, 0.5)
	if err != nil {
		t.Fatalf("ShouldWater: %v", err)
	}
	if !v.ShouldWater {
		t.Errorf("expected watering to proceed with no rain signal, got ShouldWater=false (reason=%q)", v.Reason)
	}
}

func TestShouldWaterInsufficientForecastRowsForcesTrue(t *testing.T) {
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	rows := []model.WeatherRecord{
		{ForecastTS: now.Add(1 * time.Hour), PrecipitationAmount: 50, PrecipitationProbability: prob(0.99)},
	}
	store := fakeStore{rows: rows}
	v, err := ShouldWater(now, store, units.Millimeter, 0.5)
	if err != nil {
		t.Fatalf("ShouldWater: %v", err)
	}
	if !v.ShouldWater {
		t.Error("expected fewer than 6 forecast rows to force watering regardless of rain signal")
	}
}

func TestShouldWaterNoForecastRowsDefaultsToWater(t *testing.T) {
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	store := fakeStore{}
	v, err := ShouldWater(now, store, units.Millimeter, 0.5)
	if err != nil {
		t.Fatalf("ShouldWater: %v", err)
	}
	if !v.ShouldWater {
		t.Error("expected empty forecast to default to watering")
	}
}
