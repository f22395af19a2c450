package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danluca/waterly/internal/model"
)

func TestYAMLProviderLoadParsesZonesAndThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, `
location:
  latitude: 40.1
  longitude: -74.2
timezone: America/New_York
metric: true
watering:
  start_hour: 6
  start_minute: 30
  max_minutes_per_zone: 10
  rain_cancel_probability_threshold: 0.5
season:
  start: "04-01"
  stop: "10-31"
sensor_read_interval_seconds: 300
weather_check_interval_seconds: 3600
pre_watering_refresh_window_minutes: 30
zones:
  - name: front-bed
    description: "Front bed"
    relay_pin: 17
    rh_address: 1
    has_npk: true
    npk_address: 2
    min_sensor_humidity_pct: 20
    target_humidity_pct: 60
`)

	p := NewYAMLProvider(path)
	settings, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Latitude != 40.1 || settings.Longitude != -74.2 {
		t.Errorf("unexpected location: %+v", settings)
	}
	if len(settings.Zones) != 1 || settings.Zones[0].Name != "front-bed" {
		t.Fatalf("expected one zone named front-bed, got %+v", settings.Zones)
	}
	if settings.Zones[0].RHAddress != 1 || settings.Zones[0].NPKAddress != 2 || !settings.Zones[0].HasNPK {
		t.Errorf("unexpected zone addressing: %+v", settings.Zones[0])
	}
	if !p.IsReadOnly() {
		t.Error("expected the YAML provider to be read-only")
	}
	if err := p.Save(settings); err == nil {
		t.Error("expected Save on a YAML provider to fail")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "waterly-config.sqlite")
	migrationsDir := filepath.Join("..", "..", "db", "config")

	p, err := NewSQLiteProvider(dbPath, migrationsDir)
	if err != nil {
		t.Fatalf("NewSQLiteProvider: %v", err)
	}
	defer p.Close()

	in := &Settings{
		Latitude: 40.1, Longitude: -74.2, LocalTimezone: "America/New_York", Metric: true,
		WateringStartHour: 6, WateringStartMinute: 30, MaxMinutesPerZone: 10,
		GardeningSeasonStart: "04-01", GardeningSeasonStop: "10-31",
		RainCancelProbabilityThreshold: 0.5, SensorReadIntervalSeconds: 300,
		WeatherCheckIntervalSeconds: 3600, PreWateringRefreshWindowMinutes: 30,
		LastWateringDate:          "2026-07-29",
		WeatherLastCheckTimestamp: time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC),
		Zones: []model.Zone{
			{Name: "front-bed", RelayPin: 17, RHAddress: 1, HasNPK: true, NPKAddress: 2, MinSensorHumidityPct: 20, TargetHumidityPct: 60},
		},
	}
	if err := p.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Latitude != in.Latitude || out.LocalTimezone != in.LocalTimezone || out.LastWateringDate != in.LastWateringDate {
		t.Errorf("round-trip mismatch: %+v vs %+v", out, in)
	}
	if !out.WeatherLastCheckTimestamp.Equal(in.WeatherLastCheckTimestamp) {
		t.Errorf("timestamp round-trip mismatch: %v vs %v", out.WeatherLastCheckTimestamp, in.WeatherLastCheckTimestamp)
	}
	if len(out.Zones) != 1 || out.Zones[0].Name != "front-bed" {
		t.Fatalf("expected the saved zone to round-trip, got %+v", out.Zones)
	}

	// a second Save replaces, rather than accumulates, zone rows
	in.Zones = append(in.Zones, model.Zone{Name: "back-bed", RelayPin: 27, RHAddress: 3, MinSensorHumidityPct: 15, TargetHumidityPct: 55})
	if err := p.Save(in); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	out, err = p.Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(out.Zones) != 2 {
		t.Fatalf("expected 2 zones after the second save, got %d", len(out.Zones))
	}
}

func TestValidateRejectsBadThresholdsAndDuplicateZones(t *testing.T) {
	s := &Settings{
		Latitude: 200, Longitude: 0,
		WateringStartHour: 6, WateringStartMinute: 0, MaxMinutesPerZone: 10,
		GardeningSeasonStart: "not-a-date", GardeningSeasonStop: "10-31",
		RainCancelProbabilityThreshold: 1.5, SensorReadIntervalSeconds: 300,
		Zones: []model.Zone{
			{Name: "z1", MinSensorHumidityPct: 50, TargetHumidityPct: 40},
			{Name: "z1", MinSensorHumidityPct: 10, TargetHumidityPct: 60},
		},
	}
	errs := Validate(s)
	if len(errs) < 4 {
		t.Fatalf("expected multiple validation errors, got %d: %v", len(errs), errs)
	}
}
