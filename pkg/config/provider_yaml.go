package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/danluca/waterly/internal/model"
)

// YAMLProvider implements Provider over a bootstrap YAML file: the
// one-time seed an operator hand-writes before the SQLite provider takes
// over persistence.
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML settings provider.
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{filename: filename}
}

type yamlZone struct {
	Name                 string  `yaml:"name"`
	Description          string  `yaml:"description,omitempty"`
	RelayPin             int     `yaml:"relay_pin"`
	RHAddress            int     `yaml:"rh_address"`
	HasNPK               bool    `yaml:"has_npk,omitempty"`
	NPKAddress           int     `yaml:"npk_address,omitempty"`
	MinSensorHumidityPct float64 `yaml:"min_sensor_humidity_pct"`
	TargetHumidityPct    float64 `yaml:"target_humidity_pct"`
}

type yamlSettings struct {
	Location struct {
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"location"`
	Timezone string `yaml:"timezone,omitempty"`
	Metric   bool   `yaml:"metric"`
	Watering struct {
		StartHour                      int     `yaml:"start_hour"`
		StartMinute                    int     `yaml:"start_minute"`
		MaxMinutesPerZone              int     `yaml:"max_minutes_per_zone"`
		RainCancelProbabilityThreshold float64 `yaml:"rain_cancel_probability_threshold"`
	} `yaml:"watering"`
	Season struct {
		Start string `yaml:"start"`
		Stop  string `yaml:"stop"`
	} `yaml:"season"`
	SensorReadIntervalSeconds       int        `yaml:"sensor_read_interval_seconds"`
	WeatherCheckIntervalSeconds     int        `yaml:"weather_check_interval_seconds"`
	PreWateringRefreshWindowMinutes int        `yaml:"pre_watering_refresh_window_minutes"`
	Zones                           []yamlZone `yaml:"zones"`
}

// Load reads and parses the YAML bootstrap file.
func (y *YAMLProvider) Load() (*Settings, error) {
	raw, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", y.filename, err)
	}

	var doc yamlSettings
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", y.filename, err)
	}

	settings := &Settings{
		Latitude:                       doc.Location.Latitude,
		Longitude:                      doc.Location.Longitude,
		LocalTimezone:                  doc.Timezone,
		Metric:                         doc.Metric,
		WateringStartHour:               doc.Watering.StartHour,
		WateringStartMinute:             doc.Watering.StartMinute,
		MaxMinutesPerZone:               doc.Watering.MaxMinutesPerZone,
		GardeningSeasonStart:            doc.Season.Start,
		GardeningSeasonStop:             doc.Season.Stop,
		RainCancelProbabilityThreshold:  doc.Watering.RainCancelProbabilityThreshold,
		SensorReadIntervalSeconds:       doc.SensorReadIntervalSeconds,
		WeatherCheckIntervalSeconds:     doc.WeatherCheckIntervalSeconds,
		PreWateringRefreshWindowMinutes: doc.PreWateringRefreshWindowMinutes,
		WeatherLastCheckTimestamp:       time.Time{},
		Zones:                           make([]model.Zone, len(doc.Zones)),
	}
	for i, z := range doc.Zones {
		settings.Zones[i] = model.Zone{
			Name:                 z.Name,
			Description:          z.Description,
			RelayPin:             z.RelayPin,
			RHAddress:            byte(z.RHAddress),
			HasNPK:               z.HasNPK,
			NPKAddress:           byte(z.NPKAddress),
			MinSensorHumidityPct: z.MinSensorHumidityPct,
			TargetHumidityPct:    z.TargetHumidityPct,
		}
	}

	return settings, nil
}

// Save is unsupported: the YAML file is a one-time bootstrap seed, not an
// ongoing store.
func (y *YAMLProvider) Save(*Settings) error {
	return fmt.Errorf("config: YAML provider %s is read-only", y.filename)
}

// IsReadOnly returns true: YAML files are read-only through this interface.
func (y *YAMLProvider) IsReadOnly() bool { return true }

func (y *YAMLProvider) Close() error { return nil }
