// Package config manages waterly's runtime settings: zone definitions,
// the watering schedule, and the weather decision thresholds, with
// support for a YAML bootstrap import and a SQLite-backed provider for
// ongoing use.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/danluca/waterly/internal/model"
)

// Provider defines the interface for a settings data source.
type Provider interface {
	// Load returns the complete settings snapshot.
	Load() (*Settings, error)

	// Save persists a complete settings snapshot.
	Save(*Settings) error

	// IsReadOnly reports whether Save is expected to fail because the
	// provider cannot persist.
	IsReadOnly() bool

	Close() error
}

// Settings is the complete runtime configuration for one controller.
type Settings struct {
	Latitude  float64
	Longitude float64

	// LocalTimezone is an IANA zone name; the weather client refreshes it
	// from the forecast provider's response and persists it here so a
	// restart doesn't need to guess the system timezone.
	LocalTimezone string

	Metric bool

	WateringStartHour   int
	WateringStartMinute int
	MaxMinutesPerZone   int

	// GardeningSeasonStart/Stop are "MM-DD" strings, passed straight to
	// internal/season.InSeason.
	GardeningSeasonStart string
	GardeningSeasonStop  string

	RainCancelProbabilityThreshold float64
	SensorReadIntervalSeconds      int

	// WeatherCheckIntervalSeconds is the normal cadence at which the
	// weather worker refreshes the forecast.
	WeatherCheckIntervalSeconds int

	// PreWateringRefreshWindowMinutes is how long before watering_start
	// the weather worker narrows to at most one refresh, per spec.md's
	// pre-watering refresh policy.
	PreWateringRefreshWindowMinutes int

	// LastWateringDate is "YYYY-MM-DD"; the scheduler's once-a-day guard.
	LastWateringDate string

	WeatherLastCheckTimestamp time.Time

	Zones []model.Zone
}

// CachedProvider wraps any Provider with a short-lived read cache, the
// same shape as the rest of the ecosystem's config caching layer: reads
// are cheap and frequent (every scheduler tick), writes are rare and
// always invalidate.
type CachedProvider struct {
	provider    Provider
	cache       *Settings
	cacheMutex  sync.RWMutex
	lastLoaded  time.Time
	cacheExpiry time.Duration
}

// NewCachedProvider wraps provider with a cache that expires after
// cacheExpiry (defaulting to 5s if zero).
func NewCachedProvider(provider Provider, cacheExpiry time.Duration) *CachedProvider {
	if cacheExpiry == 0 {
		cacheExpiry = 5 * time.Second
	}
	return &CachedProvider{provider: provider, cacheExpiry: cacheExpiry}
}

// Load returns the cached settings, reloading from the underlying
// provider if the cache is empty or has expired.
func (c *CachedProvider) Load() (*Settings, error) {
	c.cacheMutex.RLock()
	if c.cache != nil && time.Since(c.lastLoaded) < c.cacheExpiry {
		defer c.cacheMutex.RUnlock()
		return c.cache, nil
	}
	c.cacheMutex.RUnlock()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	if c.cache != nil && time.Since(c.lastLoaded) < c.cacheExpiry {
		return c.cache, nil
	}

	settings, err := c.provider.Load()
	if err != nil {
		return nil, fmt.Errorf("config: loading settings: %w", err)
	}
	if errs := Validate(settings); len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("config: invalid settings:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	c.cache = settings
	c.lastLoaded = time.Now()
	return settings, nil
}

// Save persists through to the underlying provider and invalidates the
// cache so the next Load reflects the write.
func (c *CachedProvider) Save(s *Settings) error {
	if err := c.provider.Save(s); err != nil {
		return err
	}
	c.InvalidateCache()
	return nil
}

// InvalidateCache forces the next Load to re-fetch from the provider.
func (c *CachedProvider) InvalidateCache() {
	c.cacheMutex.Lock()
	c.cache = nil
	c.cacheMutex.Unlock()
}

func (c *CachedProvider) IsReadOnly() bool { return c.provider.IsReadOnly() }
func (c *CachedProvider) Close() error     { return c.provider.Close() }

var monthDayPattern = regexp.MustCompile(`^\d{2}-\d{2}$`)

// ValidationError describes one invalid field in a Settings snapshot.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %s)", e.Field, e.Message, e.Value)
}

// Validate checks the invariants the scheduler, weather client, and
// decision engine all assume hold.
func Validate(s *Settings) []ValidationError {
	var errs []ValidationError

	if s.Latitude < -90 || s.Latitude > 90 {
		errs = append(errs, ValidationError{"latitude", fmt.Sprintf("%.6f", s.Latitude), "must be between -90 and 90 degrees"})
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		errs = append(errs, ValidationError{"longitude", fmt.Sprintf("%.6f", s.Longitude), "must be between -180 and 180 degrees"})
	}
	if s.WateringStartHour < 0 || s.WateringStartHour > 23 {
		errs = append(errs, ValidationError{"watering_start_hour", fmt.Sprintf("%d", s.WateringStartHour), "must be between 0 and 23"})
	}
	if s.WateringStartMinute < 0 || s.WateringStartMinute > 59 {
		errs = append(errs, ValidationError{"watering_start_minute", fmt.Sprintf("%d", s.WateringStartMinute), "must be between 0 and 59"})
	}
	if s.MaxMinutesPerZone <= 0 {
		errs = append(errs, ValidationError{"max_minutes_per_zone", fmt.Sprintf("%d", s.MaxMinutesPerZone), "must be positive"})
	}
	if !monthDayPattern.MatchString(s.GardeningSeasonStart) {
		errs = append(errs, ValidationError{"gardening_season_start", s.GardeningSeasonStart, "must be MM-DD"})
	}
	if !monthDayPattern.MatchString(s.GardeningSeasonStop) {
		errs = append(errs, ValidationError{"gardening_season_stop", s.GardeningSeasonStop, "must be MM-DD"})
	}
	if s.RainCancelProbabilityThreshold < 0 || s.RainCancelProbabilityThreshold > 1 {
		errs = append(errs, ValidationError{"rain_cancel_probability_threshold", fmt.Sprintf("%.2f", s.RainCancelProbabilityThreshold), "must be between 0 and 1"})
	}
	if s.SensorReadIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{"sensor_read_interval_seconds", fmt.Sprintf("%d", s.SensorReadIntervalSeconds), "must be positive"})
	}
	if s.WeatherCheckIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{"weather_check_interval_seconds", fmt.Sprintf("%d", s.WeatherCheckIntervalSeconds), "must be positive"})
	}
	if s.PreWateringRefreshWindowMinutes < 0 {
		errs = append(errs, ValidationError{"pre_watering_refresh_window_minutes", fmt.Sprintf("%d", s.PreWateringRefreshWindowMinutes), "must not be negative"})
	}

	zoneNames := make(map[string]bool)
	for i, z := range s.Zones {
		if z.Name == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("zones[%d].name", i), "", "zone name is required"})
		}
		if zoneNames[z.Name] {
			errs = append(errs, ValidationError{fmt.Sprintf("zones[%d].name", i), z.Name, "duplicate zone name"})
		}
		zoneNames[z.Name] = true
		if z.TargetHumidityPct <= z.MinSensorHumidityPct {
			errs = append(errs, ValidationError{
				fmt.Sprintf("zones[%d]", i), z.Name,
				"target_humidity_pct must be greater than min_sensor_humidity_pct",
			})
		}
	}

	return errs
}
