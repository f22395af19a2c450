package scheduler

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/pulse"
	"github.com/danluca/waterly/internal/units"
	"github.com/danluca/waterly/internal/zone"
)

func newCorrelationID() string {
	return uuid.New().String()
}

// performWateringCycle runs the per-zone watering loop described in
// spec.md §4.9.1: a leak probe, then each zone in lexicographic order,
// sequentially, with a relay-safety guarantee regardless of how the loop
// exits.
func (s *Scheduler) performWateringCycle(ctx context.Context, cycleID string) {
	s.probeForLeak(cycleID)

	defer func() {
		for _, z := range s.zones {
			if err := z.StopWatering(); err != nil {
				log.Errorf("scheduler: [cycle=%s] relay-safety stop for zone %s: %v", cycleID, z.Name(), err)
			}
		}
		log.Infof("scheduler: [cycle=%s] watering cycle finished", cycleID)
	}()

	volumeUnit := units.Liters
	if !s.settings.IsMetric() {
		volumeUnit = units.Gallons
	}

	for _, z := range s.zones {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.waterOneZone(ctx, cycleID, z, volumeUnit)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interZoneSettleTime):
		}
	}
}

func (s *Scheduler) probeForLeak(cycleID string) {
	now := s.now()
	var interval time.Duration
	if !s.lastPulseReset.IsZero() {
		interval = now.Sub(s.lastPulseReset)
	}
	pulses := s.pulses.SnapshotAndReset()
	s.lastPulseReset = now

	if interval <= 0 || pulses == 0 {
		return
	}
	leakLiters := pulse.Volume(interval.Seconds(), pulses)
	if leakLiters > 0 {
		log.Warnf("scheduler: [cycle=%s] water leakage detected between cycles: %s L", cycleID, humanize.Ftoa(leakLiters))
	}
}

// waterOneZone runs the per-zone watering loop: skip if already at
// target, otherwise open the bus, energize the relay, and poll humidity
// every 10s until the target is met or the zone's time cap elapses.
func (s *Scheduler) waterOneZone(ctx context.Context, cycleID string, z *zone.Zone, volumeUnit units.Unit) {
	if !z.NeedsWatering() {
		humidity, _ := z.Humidity()
		log.Infof("scheduler: [cycle=%s] zone %s skipped, target already reached at %.2f%%", cycleID, z.Name(), humidity)
		return
	}

	z.OpenBus()
	defer z.CloseBus()

	s.pulses.SnapshotAndReset()
	start := s.now()
	maxDuration := time.Duration(s.settings.MaxMinutesPerZone()) * time.Minute

	if err := z.StartWatering(); err != nil {
		log.Errorf("scheduler: [cycle=%s] zone %s: %v", cycleID, z.Name(), err)
		return
	}
	humidStart, _ := z.Humidity()
	log.Infof("scheduler: [cycle=%s] zone %s watering started at humidity %.2f%%", cycleID, z.Name(), humidStart)

	for {
		elapsed := s.now().Sub(start)
		if elapsed >= maxDuration {
			log.Warnf("scheduler: [cycle=%s] zone %s hit the %s time cap before reaching target", cycleID, z.Name(), maxDuration)
			break
		}
		if !z.NeedsWatering() {
			break
		}

		select {
		case <-ctx.Done():
			goto done
		case <-time.After(s.humidityPollInterval):
		}
		z.Measurements()
	}

done:
	if err := z.StopWatering(); err != nil {
		log.Errorf("scheduler: [cycle=%s] zone %s: %v", cycleID, z.Name(), err)
	}
	stop := s.now()
	humidStop, _ := z.Humidity()

	durationSeconds := stop.Sub(start).Seconds()
	pulses := s.pulses.SnapshotAndReset()
	liters := pulse.Volume(durationSeconds, pulses)
	volume := liters
	if volumeUnit == units.Gallons {
		if converted, ok := units.Convert(liters, units.Liters, units.Gallons); ok {
			volume = converted
		}
	}

	measurement := model.WateringMeasurement{
		Measurement: model.Measurement{
			Trend: model.TrendWater, Zone: z.Name(), Timestamp: stop, Value: volume, Unit: volumeUnit,
		},
		HumidityStartPct: humidStart,
		HumidityEndPct:   humidStop,
		DurationSeconds:  int(durationSeconds),
	}
	if err := s.store.RecordWatering(measurement); err != nil {
		log.Errorf("scheduler: [cycle=%s] recording watering for zone %s: %v", cycleID, z.Name(), err)
	}

	log.Infof("scheduler: [cycle=%s] zone %s watered for %s, used ~%s %s, ended at humidity %.2f%%",
		cycleID, z.Name(), time.Duration(durationSeconds)*time.Second, humanize.Ftoa(volume), volumeUnit, humidStop)
}
