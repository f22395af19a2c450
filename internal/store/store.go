// Package store implements the Measurement Store: a yearly-rolling SQLite
// database recording sensor, watering, and weather observations.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/migrate"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/units"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
)

// minTrendSamples is the smallest recent-sample window TrendStats will
// compute a deviation against; below this a fresh sensor's noisy early
// readings would produce meaningless sigma estimates.
const minTrendSamples = 5

// trendDeviationSigma is the threshold past which CheckDeviation logs a
// diagnostic warning.
const trendDeviationSigma = 3.0

// Store owns the SQLite connection for one calendar year's measurements.
type Store struct {
	db         *sql.DB
	dbPath     string
	dataDir    string
	migrations string
}

// Open resolves the yearly-rolling database file under dataDir
// (data/waterly-<YEAR>.sqlite), applies pending migrations found under
// migrationsDir, and returns a ready Store. as is the teacher's own
// pattern in provider_sqlite.go, the connection string enables WAL,
// NORMAL synchronous durability, and a busy timeout.
func Open(dataDir, migrationsDir string, at time.Time) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating data directory %s: %w", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("waterly-%d.sqlite", at.Year()))
	connStr := fmt.Sprintf("%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging %s: %w", dbPath, err)
	}

	appliedAny, err := migrate.Run(db, os.DirFS(migrationsDir))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: applying migrations: %w", err)
	}
	if appliedAny {
		log.Infof("store: applied pending migrations to %s", dbPath)
	} else {
		log.Debugf("store: %s already initialized, no migrations applied", dbPath)
	}

	return &Store{db: db, dbPath: dbPath, dataDir: dataDir, migrations: migrationsDir}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a single Measurement, rejecting a unit not allowed for
// its Trend.
func (s *Store) Record(m model.Measurement) error {
	if !model.UnitAllowed(m.Trend, m.Unit) {
		return fmt.Errorf("store: unit %s not allowed for trend %s", m.Unit, m.Trend)
	}
	_, err := s.db.Exec(
		`INSERT INTO measurements (trend, zone, timestamp, value, unit) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (trend, zone, timestamp) DO UPDATE SET value = excluded.value, unit = excluded.unit`,
		string(m.Trend), m.Zone, m.Timestamp.UTC(), m.Value, string(m.Unit),
	)
	if err != nil {
		return fmt.Errorf("store: recording %s/%s: %w", m.Trend, m.Zone, err)
	}
	return nil
}

// RecordRH records a batch of soil-sensor readings (humidity, temperature,
// EC, pH, salinity, TDS) for one zone at one timestamp.
func (s *Store) RecordRH(zone string, ts time.Time, humidityPct, tempC, ecMicroS, ph, salinityPPT, tdsPPM float64) error {
	readings := []model.Measurement{
		{Trend: model.TrendHumidity, Zone: zone, Timestamp: ts, Value: humidityPct, Unit: units.Percent},
		{Trend: model.TrendTemperature, Zone: zone, Timestamp: ts, Value: tempC, Unit: units.Celsius},
		{Trend: model.TrendEC, Zone: zone, Timestamp: ts, Value: ecMicroS, Unit: units.MicroS},
		{Trend: model.TrendPH, Zone: zone, Timestamp: ts, Value: ph, Unit: units.PH},
		{Trend: model.TrendSalinity, Zone: zone, Timestamp: ts, Value: salinityPPT, Unit: units.PPT},
		{Trend: model.TrendTDS, Zone: zone, Timestamp: ts, Value: tdsPPM, Unit: units.PPM},
	}
	return s.recordBatch(readings)
}

// RecordNPK records a nitrogen/phosphorus/potassium reading triple for one
// zone at one timestamp.
func (s *Store) RecordNPK(zone string, ts time.Time, nitrogenMgKg, phosphorusMgKg, potassiumMgKg float64) error {
	readings := []model.Measurement{
		{Trend: model.TrendNitrogen, Zone: zone, Timestamp: ts, Value: nitrogenMgKg, Unit: units.MgPerKg},
		{Trend: model.TrendPhosphorus, Zone: zone, Timestamp: ts, Value: phosphorusMgKg, Unit: units.MgPerKg},
		{Trend: model.TrendPotassium, Zone: zone, Timestamp: ts, Value: potassiumMgKg, Unit: units.MgPerKg},
	}
	return s.recordBatch(readings)
}

func (s *Store) recordBatch(readings []model.Measurement) error {
	for _, m := range readings {
		if err := s.Record(m); err != nil {
			return err
		}
	}
	return nil
}

// RecordWatering records one zone's watering-cycle outcome under the
// TrendWater series.
func (s *Store) RecordWatering(w model.WateringMeasurement) error {
	if !model.UnitAllowed(model.TrendWater, w.Unit) {
		return fmt.Errorf("store: unit %s not allowed for trend %s", w.Unit, model.TrendWater)
	}
	_, err := s.db.Exec(
		`INSERT INTO watering_measurements
			(trend, zone, timestamp, value, unit, humidity_start_pct, humidity_end_pct, duration_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (zone, timestamp) DO UPDATE SET
			value = excluded.value, unit = excluded.unit,
			humidity_start_pct = excluded.humidity_start_pct,
			humidity_end_pct = excluded.humidity_end_pct,
			duration_seconds = excluded.duration_seconds`,
		string(w.Trend), w.Zone, w.Timestamp.UTC(), w.Value, string(w.Unit),
		w.HumidityStartPct, w.HumidityEndPct, w.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("store: recording watering for zone %s: %w", w.Zone, err)
	}
	return nil
}

// RecordRPiTemperature records the controller's own CPU/board temperature
// under the rpi_temp trend, with "controller" as its zone.
func (s *Store) RecordRPiTemperature(ts time.Time, tempC float64) error {
	return s.Record(model.Measurement{
		Trend: model.TrendRPiTemp, Zone: "controller", Timestamp: ts, Value: tempC, Unit: units.Celsius,
	})
}

// RecordWeather upserts a WeatherRecord keyed by ForecastTS.
func (s *Store) RecordWeather(w model.WeatherRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO weather_records
			(collected_at_utc, forecast_ts, tag, temperature, precipitation_amount,
			 precipitation_probability, soil_moisture, surface_pressure)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (forecast_ts) DO UPDATE SET
			collected_at_utc = excluded.collected_at_utc,
			tag = excluded.tag,
			temperature = excluded.temperature,
			precipitation_amount = excluded.precipitation_amount,
			precipitation_probability = excluded.precipitation_probability,
			soil_moisture = excluded.soil_moisture,
			surface_pressure = excluded.surface_pressure`,
		w.CollectedAtUTC.UTC(), w.ForecastTS.UTC(), w.Tag, w.Temperature, w.PrecipitationAmount,
		w.PrecipitationProbability, w.SoilMoisture, w.SurfacePressure,
	)
	if err != nil {
		return fmt.Errorf("store: recording weather for %s: %w", w.ForecastTS, err)
	}
	return nil
}

// GetWeather returns up to |count| WeatherRecords starting at fromTS. A
// positive count returns rows in ascending forecast_ts order from fromTS
// onward; a negative count returns |count| rows in descending order ending
// at fromTS, per the store's documented ordering contract.
func (s *Store) GetWeather(fromTS time.Time, count int) ([]model.WeatherRecord, error) {
	if count == 0 {
		return nil, nil
	}

	var query string
	limit := count
	if count > 0 {
		query = `SELECT collected_at_utc, forecast_ts, tag, temperature, precipitation_amount,
			precipitation_probability, soil_moisture, surface_pressure
			FROM weather_records WHERE forecast_ts >= ? ORDER BY forecast_ts ASC LIMIT ?`
	} else {
		limit = -count
		query = `SELECT collected_at_utc, forecast_ts, tag, temperature, precipitation_amount,
			precipitation_probability, soil_moisture, surface_pressure
			FROM weather_records WHERE forecast_ts <= ? ORDER BY forecast_ts DESC LIMIT ?`
	}

	rows, err := s.db.Query(query, fromTS.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying weather_records: %w", err)
	}
	defer rows.Close()

	var out []model.WeatherRecord
	for rows.Next() {
		var w model.WeatherRecord
		if err := rows.Scan(&w.CollectedAtUTC, &w.ForecastTS, &w.Tag, &w.Temperature,
			&w.PrecipitationAmount, &w.PrecipitationProbability, &w.SoilMoisture, &w.SurfacePressure); err != nil {
			return nil, fmt.Errorf("store: scanning weather_records row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// TrendStats returns the mean and standard deviation of the most recent
// n samples of trend/zone, most-recent-first in the query but order
// independent for the statistic itself.
func (s *Store) TrendStats(trend model.Trend, zone string, n int) (mean, stddev float64, sampleCount int, err error) {
	rows, err := s.db.Query(
		`SELECT value FROM measurements WHERE trend = ? AND zone = ? ORDER BY timestamp DESC LIMIT ?`,
		string(trend), zone, n,
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("store: querying trend stats for %s/%s: %w", trend, zone, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return 0, 0, 0, fmt.Errorf("store: scanning trend stats row: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, 0, err
	}

	if len(values) == 0 {
		return 0, 0, 0, nil
	}
	mean, stddev = stat.MeanStdDev(values, nil)
	return mean, stddev, len(values), nil
}

// CheckDeviation records m and, if enough history already exists for its
// trend/zone, logs a warning when m.Value deviates more than
// trendDeviationSigma standard deviations from the recent trend. This is
// a diagnostic aid only; it never rejects the reading.
func (s *Store) CheckDeviation(m model.Measurement, window int) error {
	mean, stddev, n, err := s.TrendStats(m.Trend, m.Zone, window)
	if err != nil {
		return err
	}
	if err := s.Record(m); err != nil {
		return err
	}
	if n < minTrendSamples || stddev == 0 {
		return nil
	}
	deviation := (m.Value - mean) / stddev
	if deviation > trendDeviationSigma || deviation < -trendDeviationSigma {
		log.Warnf("store: %s/%s reading %.3f%s deviates %.1fσ from recent mean %.3f (stddev %.3f, n=%d)",
			m.Trend, m.Zone, m.Value, m.Unit, deviation, mean, stddev, n)
	}
	return nil
}
