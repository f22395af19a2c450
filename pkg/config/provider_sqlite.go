package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danluca/waterly/internal/migrate"
	"github.com/danluca/waterly/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements Provider over a dedicated settings database,
// kept separate from the Measurement Store's yearly-rolling files since
// settings must survive a year boundary untouched.
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider opens (creating if absent) the settings database at
// dbPath and applies any pending migrations found under migrationsDir.
func NewSQLiteProvider(dbPath, migrationsDir string) (*SQLiteProvider, error) {
	connStr := fmt.Sprintf("%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: pinging %s: %w", dbPath, err)
	}

	if _, err := migrate.Run(db, os.DirFS(migrationsDir)); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: migrating %s: %w", dbPath, err)
	}

	return &SQLiteProvider{db: db}, nil
}

var settingsKeys = []string{
	"latitude", "longitude", "local_timezone", "metric",
	"watering_start_hour", "watering_start_minute", "max_minutes_per_zone",
	"gardening_season_start", "gardening_season_stop",
	"rain_cancel_probability_threshold", "sensor_read_interval_seconds",
	"weather_check_interval_seconds", "pre_watering_refresh_window_minutes",
	"last_watering_date", "weather_last_check_timestamp",
}

// Load reads every settings key and every zone row into a Settings
// snapshot. Missing keys are left at their zero value: a fresh database
// is expected to be populated once via Save (typically by importing a
// YAMLProvider's bootstrap file).
func (s *SQLiteProvider) Load() (*Settings, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("config: reading settings: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string, len(settingsKeys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("config: scanning settings row: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	settings := &Settings{
		Latitude:                       parseFloat(kv["latitude"]),
		Longitude:                      parseFloat(kv["longitude"]),
		LocalTimezone:                  kv["local_timezone"],
		Metric:                         kv["metric"] == "true",
		WateringStartHour:              parseInt(kv["watering_start_hour"]),
		WateringStartMinute:            parseInt(kv["watering_start_minute"]),
		MaxMinutesPerZone:              parseInt(kv["max_minutes_per_zone"]),
		GardeningSeasonStart:           kv["gardening_season_start"],
		GardeningSeasonStop:            kv["gardening_season_stop"],
		RainCancelProbabilityThreshold:  parseFloat(kv["rain_cancel_probability_threshold"]),
		SensorReadIntervalSeconds:       parseInt(kv["sensor_read_interval_seconds"]),
		WeatherCheckIntervalSeconds:     parseInt(kv["weather_check_interval_seconds"]),
		PreWateringRefreshWindowMinutes: parseInt(kv["pre_watering_refresh_window_minutes"]),
		LastWateringDate:                kv["last_watering_date"],
	}
	if ts := kv["weather_last_check_timestamp"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			settings.WeatherLastCheckTimestamp = parsed
		}
	}

	zones, err := s.loadZones()
	if err != nil {
		return nil, err
	}
	settings.Zones = zones

	return settings, nil
}

func (s *SQLiteProvider) loadZones() ([]model.Zone, error) {
	rows, err := s.db.Query(`SELECT name, description, relay_pin, rh_address, has_npk, npk_address,
		min_sensor_humidity_pct, target_humidity_pct FROM zones ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("config: reading zones: %w", err)
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		var rhAddress, npkAddress int
		var hasNPK int
		if err := rows.Scan(&z.Name, &z.Description, &z.RelayPin, &rhAddress, &hasNPK, &npkAddress,
			&z.MinSensorHumidityPct, &z.TargetHumidityPct); err != nil {
			return nil, fmt.Errorf("config: scanning zone row: %w", err)
		}
		z.RHAddress = byte(rhAddress)
		z.NPKAddress = byte(npkAddress)
		z.HasNPK = hasNPK != 0
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Save replaces every settings key and every zone row in a single
// transaction.
func (s *SQLiteProvider) Save(settings *Settings) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("config: beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	kv := map[string]string{
		"latitude":                          strconv.FormatFloat(settings.Latitude, 'f', -1, 64),
		"longitude":                         strconv.FormatFloat(settings.Longitude, 'f', -1, 64),
		"local_timezone":                    settings.LocalTimezone,
		"metric":                            strconv.FormatBool(settings.Metric),
		"watering_start_hour":               strconv.Itoa(settings.WateringStartHour),
		"watering_start_minute":             strconv.Itoa(settings.WateringStartMinute),
		"max_minutes_per_zone":              strconv.Itoa(settings.MaxMinutesPerZone),
		"gardening_season_start":            settings.GardeningSeasonStart,
		"gardening_season_stop":             settings.GardeningSeasonStop,
		"rain_cancel_probability_threshold": strconv.FormatFloat(settings.RainCancelProbabilityThreshold, 'f', -1, 64),
		"sensor_read_interval_seconds":      strconv.Itoa(settings.SensorReadIntervalSeconds),
		"weather_check_interval_seconds":    strconv.Itoa(settings.WeatherCheckIntervalSeconds),
		"pre_watering_refresh_window_minutes": strconv.Itoa(settings.PreWateringRefreshWindowMinutes),
		"last_watering_date":                settings.LastWateringDate,
		"weather_last_check_timestamp":      formatTimeOrEmpty(settings.WeatherLastCheckTimestamp),
	}
	for k, v := range kv {
		if _, err := tx.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("config: saving setting %s: %w", k, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM zones"); err != nil {
		return fmt.Errorf("config: clearing zones: %w", err)
	}
	for _, z := range settings.Zones {
		npk := 0
		if z.HasNPK {
			npk = 1
		}
		if _, err := tx.Exec(`INSERT INTO zones (name, description, relay_pin, rh_address, has_npk, npk_address,
			min_sensor_humidity_pct, target_humidity_pct) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			z.Name, z.Description, z.RelayPin, int(z.RHAddress), npk, int(z.NPKAddress),
			z.MinSensorHumidityPct, z.TargetHumidityPct); err != nil {
			return fmt.Errorf("config: saving zone %s: %w", z.Name, err)
		}
	}

	return tx.Commit()
}

// IsReadOnly returns false: SQLite settings can always be modified.
func (s *SQLiteProvider) IsReadOnly() bool { return false }

func (s *SQLiteProvider) Close() error { return s.db.Close() }

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
