// Package model holds the domain types shared across the scheduler,
// measurement store, weather client, and decision engine.
package model

import (
	"time"

	"github.com/danluca/waterly/internal/units"
)

// Trend names the time series a Measurement belongs to.
type Trend string

const (
	TrendHumidity    Trend = "humidity"
	TrendTemperature Trend = "temperature"
	TrendPH          Trend = "ph"
	TrendEC          Trend = "ec"
	TrendSalinity    Trend = "salinity"
	TrendTDS         Trend = "tds"
	TrendNitrogen    Trend = "nitrogen"
	TrendPhosphorus  Trend = "phosphorus"
	TrendPotassium   Trend = "potassium"
	TrendWater       Trend = "water"
	TrendRPiTemp     Trend = "rpi_temp"
)

// AllowedUnits lists the units a Measurement of a given Trend may carry.
var AllowedUnits = map[Trend][]units.Unit{
	TrendHumidity:    {units.Percent},
	TrendTemperature: {units.Celsius, units.Fahrenheit},
	TrendPH:          {units.PH},
	TrendEC:          {units.MicroS},
	TrendSalinity:    {units.PPT},
	TrendTDS:         {units.PPM},
	TrendNitrogen:    {units.MgPerKg},
	TrendPhosphorus:  {units.MgPerKg},
	TrendPotassium:   {units.MgPerKg},
	TrendWater:       {units.Liters, units.Gallons},
	TrendRPiTemp:     {units.Celsius, units.Fahrenheit},
}

// UnitAllowed reports whether unit is a member of Trend's allowed set.
func UnitAllowed(trend Trend, unit units.Unit) bool {
	for _, u := range AllowedUnits[trend] {
		if u == unit {
			return true
		}
	}
	return false
}

// Measurement is a single timestamped, unit-carrying observation.
type Measurement struct {
	Trend     Trend
	Zone      string
	Timestamp time.Time
	Value     float64
	Unit      units.Unit
}

// TimeISO renders Timestamp in RFC3339, matching the original source's
// time_iso accessor used in diagnostic logging.
func (m Measurement) TimeISO() string {
	if m.Timestamp.IsZero() {
		return ""
	}
	return m.Timestamp.Format(time.RFC3339)
}

// Convert returns a copy of m with Value converted to newUnit.
func (m Measurement) Convert(newUnit units.Unit) Measurement {
	v, ok := units.Convert(m.Value, m.Unit, newUnit)
	if !ok {
		return m
	}
	m.Value = v
	m.Unit = newUnit
	return m
}

// WateringMeasurement specializes Measurement with the before/after
// humidity and the duration of one zone's watering run.
type WateringMeasurement struct {
	Measurement
	HumidityStartPct float64
	HumidityEndPct   float64
	DurationSeconds  int
}

// WeatherRecord is one hourly (or current-conditions) slot from the
// forecast provider, normalized into the configured unit system.
type WeatherRecord struct {
	CollectedAtUTC          time.Time
	ForecastTS              time.Time
	Tag                     string
	Temperature             float64
	PrecipitationAmount     float64
	PrecipitationProbability *float64
	SoilMoisture            float64
	SurfacePressure         *float64
}

// IsForecast reports whether this record carries a forecast probability
// (as opposed to a current-conditions row, which never does).
func (w WeatherRecord) IsForecast() bool {
	return w.PrecipitationProbability != nil
}

// Zone binds a garden bed's identity, thresholds, and hardware addresses.
type Zone struct {
	Name                  string
	Description           string
	RelayPin              int
	RHAddress             byte
	HasNPK                bool
	NPKAddress            byte
	MinSensorHumidityPct  float64
	TargetHumidityPct     float64
}

// MigrationHistory records one applied schema migration script.
type MigrationHistory struct {
	Version     string
	Description string
	Checksum    string
	AppliedAt   time.Time
}
