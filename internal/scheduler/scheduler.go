// Package scheduler implements the Watering Scheduler: a single worker
// running two independent cadences (sensor polling and the once-daily
// watering cycle) on one goroutine.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/danluca/waterly/internal/decision"
	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/pulse"
	"github.com/danluca/waterly/internal/season"
	"github.com/danluca/waterly/internal/units"
	"github.com/danluca/waterly/internal/zone"
)

// Store is the subset of the Measurement Store the scheduler writes
// through.
type Store interface {
	Record(model.Measurement) error
	RecordWatering(model.WateringMeasurement) error
	RecordRPiTemperature(time.Time, float64) error
	decision.Store
}

// Settings is the narrow configuration seam the scheduler reads; the
// concrete implementation lives in pkg/config and is injected at
// construction, the same persistence-hook pattern the teacher uses for
// its own managers.
type Settings interface {
	SensorReadInterval() time.Duration
	WateringStartTime() (hour, minute int)
	MaxMinutesPerZone() int
	GardeningSeasonWindow() (start, stop string)
	LastWateringDate() string
	SetLastWateringDate(date string) error
	RainCancelProbabilityThreshold() float64
	IsMetric() bool
}

const (
	dailyCheckInterval  = 1 * time.Minute
	interZoneSettleTime = 10 * time.Second
	humidityPollInterval = 10 * time.Second
	dateFormat          = "2006-01-02"
)

// Scheduler owns the zones, the shared bus, the pulse counter, and the
// store/settings seams for one watering program.
type Scheduler struct {
	zones    []*zone.Zone
	bus      *zone.Bus
	store    Store
	pulses   *pulse.Counter
	settings Settings

	now                  func() time.Time
	lastPulseReset       time.Time
	humidityPollInterval time.Duration
	interZoneSettleTime  time.Duration
}

// New returns a Scheduler over zones (sorted lexicographically by name,
// per spec.md §4.9.1).
func New(zones []*zone.Zone, bus *zone.Bus, store Store, pulses *pulse.Counter, settings Settings) *Scheduler {
	sorted := make([]*zone.Zone, len(zones))
	copy(sorted, zones)
	slices.SortFunc(sorted, func(a, b *zone.Zone) int { return strings.Compare(a.Name(), b.Name()) })

	return &Scheduler{
		zones:                sorted,
		bus:                  bus,
		store:                store,
		pulses:               pulses,
		settings:             settings,
		now:                  time.Now,
		humidityPollInterval: humidityPollInterval,
		interZoneSettleTime:  interZoneSettleTime,
	}
}

// Run blocks, driving both cadences from a single goroutine, until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("scheduler: starting")
	defer log.Info("scheduler: stopped")

	sensorTicker := time.NewTicker(s.settings.SensorReadInterval())
	defer sensorTicker.Stop()
	dailyTicker := time.NewTicker(dailyCheckInterval)
	defer dailyTicker.Stop()

	defer s.stopAllZonesSafely()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sensorTicker.C:
			s.pollSensors()
		case <-dailyTicker.C:
			s.maybeRunDailyCycle(ctx)
		}
	}
}

func (s *Scheduler) stopAllZonesSafely() {
	for _, z := range s.zones {
		if err := z.StopWatering(); err != nil {
			log.Errorf("scheduler: shutdown relay-safety stop for zone %s: %v", z.Name(), err)
		}
	}
}

// pollSensors opens the shared bus once, reads every zone in the
// scheduler's zone order (New sorts the zones by name) with inter-frame
// gaps, closes the bus, then records the controller's own CPU temperature.
func (s *Scheduler) pollSensors() {
	if len(s.zones) == 0 {
		return
	}
	log.Debug("scheduler: polling sensors for all zones")

	s.zones[0].OpenBus()
	for i, z := range s.zones {
		if i > 0 {
			time.Sleep(interFrameGap())
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("scheduler: panic reading zone %s: %v", z.Name(), r)
				}
			}()
			readings := z.Measurements()
			if len(readings) == 0 {
				log.Warnf("scheduler: no sensor readings for zone %s - sensor disconnected?", z.Name())
				return
			}
			for _, m := range readings {
				if err := s.store.Record(m); err != nil {
					log.Errorf("scheduler: recording %s/%s: %v", m.Trend, m.Zone, err)
				}
			}
		}()
	}
	s.zones[0].CloseBus()

	if tempC, err := readCPUTemperatureC(); err != nil {
		log.Warnf("scheduler: reading CPU temperature: %v", err)
	} else if err := s.store.RecordRPiTemperature(s.now(), tempC); err != nil {
		log.Errorf("scheduler: recording rpi_temp: %v", err)
	}

	log.Debug("scheduler: sensor polling finished")
}

// maybeRunDailyCycle applies the three-part guard from spec.md §4.9 and,
// if it passes, decides and potentially executes one watering cycle.
func (s *Scheduler) maybeRunDailyCycle(ctx context.Context) {
	now := s.now()
	today := now.Format(dateFormat)

	if s.settings.LastWateringDate() == today {
		return
	}

	hour, minute := s.settings.WateringStartTime()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(startOfDay) {
		return
	}

	seasonStart, seasonStop := s.settings.GardeningSeasonWindow()
	if !season.InSeason(now, seasonStart, seasonStop) {
		log.Warnf("scheduler: skipping watering - %s is not in gardening season %s to %s", now.Format(time.RFC3339), seasonStart, seasonStop)
		s.markDone(today)
		return
	}

	precipUnit := units.Millimeter
	if !s.settings.IsMetric() {
		precipUnit = units.Inch
	}
	verdict, err := decision.ShouldWater(now, s.store, precipUnit, s.settings.RainCancelProbabilityThreshold())
	if err != nil {
		log.Errorf("scheduler: weather decision failed, skipping watering for safety: %v", err)
		s.markDone(today)
		return
	}

	drought := false
	for _, z := range s.zones {
		if z.HasDrought() {
			drought = true
			break
		}
	}

	shouldWater := verdict.ShouldWater || drought
	if !shouldWater {
		log.Infof("scheduler: watering canceled: %s", verdict.Reason)
		s.markDone(today)
		return
	}

	if drought && !verdict.ShouldWater {
		log.Warnf("scheduler: drought override: at least one zone is below its minimum humidity despite weather verdict %q", verdict.Reason)
	}

	cycleID := newCorrelationID()
	log.Infof("scheduler: [cycle=%s] starting watering cycle (%s)", cycleID, verdict.Reason)
	s.performWateringCycle(ctx, cycleID)
	s.markDone(today)
}

func (s *Scheduler) markDone(today string) {
	if err := s.settings.SetLastWateringDate(today); err != nil {
		log.Errorf("scheduler: persisting last-watering-date: %v", err)
	}
}

func interFrameGap() time.Duration {
	return 250 * time.Millisecond
}

// readCPUTemperatureC reads the board's thermal zone, the standard
// Linux/Raspberry Pi sysfs sensor path.
func readCPUTemperatureC() (float64, error) {
	raw, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return 0, fmt.Errorf("reading thermal_zone0: %w", err)
	}
	milliC, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parsing thermal_zone0 value: %w", err)
	}
	return float64(milliC) / 1000.0, nil
}
