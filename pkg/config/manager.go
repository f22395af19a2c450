package config

import (
	"sync"
	"time"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/model"
)

// Manager is the in-memory settings view the scheduler, weather client,
// and decision engine all read and write through. It holds the latest
// Settings snapshot under a lock and persists every mutation through the
// underlying Provider immediately, the same persistence-hook seam the
// weather client and scheduler packages depend on without importing this
// package directly.
type Manager struct {
	mu       sync.RWMutex
	provider Provider
	current  *Settings
}

// NewManager loads settings once from provider and returns a ready
// Manager.
func NewManager(provider Provider) (*Manager, error) {
	settings, err := provider.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{provider: provider, current: settings}, nil
}

// Reload re-reads the settings snapshot from the underlying provider,
// discarding the in-memory copy. Used after an operator edits the
// settings database out of band.
func (m *Manager) Reload() error {
	settings, err := m.provider.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = settings
	m.mu.Unlock()
	return nil
}

func (m *Manager) snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.current
}

// mutate applies apply to a copy of the current settings, commits it to the
// in-memory cache unconditionally, then persists it through the provider.
// A persistence failure is logged, not returned: callers (the scheduler's
// once-daily guard, the weather worker's cadence check) must see their
// write take effect immediately regardless of a transient store error.
func (m *Manager) mutate(apply func(*Settings)) error {
	m.mu.Lock()
	updated := *m.current
	apply(&updated)
	m.current = &updated
	m.mu.Unlock()

	if err := m.provider.Save(&updated); err != nil {
		log.Errorf("config: persisting settings: %v", err)
	}
	return nil
}

// Location returns the configured garden coordinates.
func (m *Manager) Location() (latitude, longitude float64) {
	s := m.snapshot()
	return s.Latitude, s.Longitude
}

// Zones returns the configured zone definitions.
func (m *Manager) Zones() []model.Zone {
	s := m.snapshot()
	out := make([]model.Zone, len(s.Zones))
	copy(out, s.Zones)
	return out
}

// SensorReadInterval satisfies internal/scheduler.Settings.
func (m *Manager) SensorReadInterval() time.Duration {
	s := m.snapshot()
	return time.Duration(s.SensorReadIntervalSeconds) * time.Second
}

// WateringStartTime satisfies internal/scheduler.Settings.
func (m *Manager) WateringStartTime() (hour, minute int) {
	s := m.snapshot()
	return s.WateringStartHour, s.WateringStartMinute
}

// MaxMinutesPerZone satisfies internal/scheduler.Settings.
func (m *Manager) MaxMinutesPerZone() int {
	return m.snapshot().MaxMinutesPerZone
}

// GardeningSeasonWindow satisfies internal/scheduler.Settings.
func (m *Manager) GardeningSeasonWindow() (start, stop string) {
	s := m.snapshot()
	return s.GardeningSeasonStart, s.GardeningSeasonStop
}

// LastWateringDate satisfies internal/scheduler.Settings.
func (m *Manager) LastWateringDate() string {
	return m.snapshot().LastWateringDate
}

// SetLastWateringDate satisfies internal/scheduler.Settings.
func (m *Manager) SetLastWateringDate(date string) error {
	return m.mutate(func(s *Settings) { s.LastWateringDate = date })
}

// RainCancelProbabilityThreshold satisfies internal/scheduler.Settings.
func (m *Manager) RainCancelProbabilityThreshold() float64 {
	return m.snapshot().RainCancelProbabilityThreshold
}

// IsMetric satisfies internal/scheduler.Settings.
func (m *Manager) IsMetric() bool {
	return m.snapshot().Metric
}

// SetWeatherLastCheckTimestamp satisfies internal/weather.SettingsUpdater.
func (m *Manager) SetWeatherLastCheckTimestamp(t time.Time) error {
	return m.mutate(func(s *Settings) { s.WeatherLastCheckTimestamp = t })
}

// SetLocalTimezone satisfies internal/weather.SettingsUpdater.
func (m *Manager) SetLocalTimezone(tz string) error {
	return m.mutate(func(s *Settings) { s.LocalTimezone = tz })
}

// WeatherLastCheckTimestamp returns the last successful weather fetch time.
func (m *Manager) WeatherLastCheckTimestamp() time.Time {
	return m.snapshot().WeatherLastCheckTimestamp
}

// LocalTimezone returns the configured IANA timezone name.
func (m *Manager) LocalTimezone() string {
	return m.snapshot().LocalTimezone
}

// WeatherCheckInterval is the weather worker's normal refresh cadence.
func (m *Manager) WeatherCheckInterval() time.Duration {
	return time.Duration(m.snapshot().WeatherCheckIntervalSeconds) * time.Second
}

// PreWateringRefreshWindow is how long before watering_start the weather
// worker narrows to at most one refresh.
func (m *Manager) PreWateringRefreshWindow() time.Duration {
	return time.Duration(m.snapshot().PreWateringRefreshWindowMinutes) * time.Minute
}

func (m *Manager) Close() error { return m.provider.Close() }
