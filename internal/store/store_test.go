package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dataDir := t.TempDir()
	migrationsDir := filepath.Join("..", "..", "db")
	s, err := Open(dataDir, migrationsDir, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRejectDisallowedUnit(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	err := s.Record(model.Measurement{Trend: model.TrendHumidity, Zone: "bed-1", Timestamp: now, Value: 42, Unit: units.Percent})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	err = s.Record(model.Measurement{Trend: model.TrendHumidity, Zone: "bed-1", Timestamp: now, Value: 42, Unit: units.Celsius})
	if err == nil {
		t.Error("expected rejection of Celsius for a humidity trend")
	}
}

func TestRecordRHAndNPK(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.RecordRH("bed-1", now, 35.5, 21.2, 1200, 6.5, 0.8, 600); err != nil {
		t.Fatalf("RecordRH: %v", err)
	}
	if err := s.RecordNPK("bed-1", now, 12, 8, 20); err != nil {
		t.Fatalf("RecordNPK: %v", err)
	}

	mean, _, n, err := s.TrendStats(model.TrendHumidity, "bed-1", 10)
	if err != nil {
		t.Fatalf("TrendStats: %v", err)
	}
	if n != 1 || mean != 35.5 {
		t.Errorf("got mean=%v n=%d, want mean=35.5 n=1", mean, n)
	}
}

func TestRecordWeatherUpsertAndGetWeatherOrdering(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)

	prob := 0.1
	for i := 0; i < 3; i++ {
		w := model.WeatherRecord{
			CollectedAtUTC:           base,
			ForecastTS:               base.Add(time.Duration(i) * time.Hour),
			Tag:                      "forecast",
			Temperature:              20 + float64(i),
			PrecipitationAmount:      0,
			PrecipitationProbability: &prob,
			SoilMoisture:             0.3,
		}
		if err := s.RecordWeather(w); err != nil {
			t.Fatalf("RecordWeather %d: %v", i, err)
		}
	}

	ascending, err := s.GetWeather(base, 3)
	if err != nil {
		t.Fatalf("GetWeather ascending: %v", err)
	}
	if len(ascending) != 3 || !ascending[0].ForecastTS.Equal(base) {
		t.Errorf("expected ascending order starting at base, got %+v", ascending)
	}

	descending, err := s.GetWeather(base.Add(2*time.Hour), -3)
	if err != nil {
		t.Fatalf("GetWeather descending: %v", err)
	}
	if len(descending) != 3 || !descending[0].ForecastTS.Equal(base.Add(2*time.Hour)) {
		t.Errorf("expected descending order starting at base+2h, got %+v", descending)
	}

	// Re-recording the same forecast_ts updates rather than duplicates.
	updated := model.WeatherRecord{
		CollectedAtUTC:           base,
		ForecastTS:               base,
		Tag:                      "forecast",
		Temperature:              99,
		PrecipitationProbability: &prob,
		SoilMoisture:             0.3,
	}
	if err := s.RecordWeather(updated); err != nil {
		t.Fatalf("RecordWeather update: %v", err)
	}
	again, err := s.GetWeather(base, 1)
	if err != nil {
		t.Fatalf("GetWeather after update: %v", err)
	}
	if len(again) != 1 || again[0].Temperature != 99 {
		t.Errorf("expected upsert to replace temperature, got %+v", again)
	}
}

func TestCheckDeviationLogsButNeverRejects(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		m := model.Measurement{
			Trend: model.TrendTemperature, Zone: "bed-2",
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Value:     20.0, Unit: units.Celsius,
		}
		if err := s.CheckDeviation(m, 20); err != nil {
			t.Fatalf("CheckDeviation baseline %d: %v", i, err)
		}
	}

	outlier := model.Measurement{
		Trend: model.TrendTemperature, Zone: "bed-2",
		Timestamp: now.Add(20 * time.Minute),
		Value:     95.0, Unit: units.Celsius,
	}
	if err := s.CheckDeviation(outlier, 20); err != nil {
		t.Fatalf("CheckDeviation outlier: %v", err)
	}
}
