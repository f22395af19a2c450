// Package zone implements the "Patch": a garden zone bound to its relay
// and soil sensors, with per-zone humidity caching and watering state.
package zone

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danluca/waterly/internal/log"
	"github.com/danluca/waterly/internal/modbus"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/sensors/npk"
	"github.com/danluca/waterly/internal/sensors/soil"
	"github.com/danluca/waterly/internal/platform"
	"github.com/danluca/waterly/internal/units"
)

// RHSensor is the RH/T soil driver seam, satisfied by *soil.Driver.
type RHSensor interface {
	ReadAll() (soil.Reading, error)
}

// NPKSensor is the NPK driver seam, satisfied by *npk.Driver.
type NPKSensor interface {
	Read() (npk.Reading, error)
}

// Zone binds a zone definition to its relay and sensors over a shared
// Bus.
type Zone struct {
	cfg   model.Zone
	bus   *Bus
	rh    RHSensor
	npk   NPKSensor
	relay platform.RelayPin

	mu             sync.Mutex
	lastHumidity   *float64
	wateringActive bool
}

// New builds a Zone. npkSensor may be nil when cfg.HasNPK is false.
func New(cfg model.Zone, bus *Bus, transport *modbus.Transport, relay platform.RelayPin) *Zone {
	z := &Zone{
		cfg:   cfg,
		bus:   bus,
		rh:    soil.New(transport, cfg.RHAddress),
		relay: relay,
	}
	if cfg.HasNPK {
		z.npk = npk.New(transport, cfg.NPKAddress)
	}
	return z
}

// NewWithSensors builds a Zone directly from sensor/relay seams, bypassing
// the Modbus transport wiring New does. Exported for other packages'
// tests that need a *Zone wired to fakes (e.g. the scheduler's).
func NewWithSensors(cfg model.Zone, bus *Bus, rh RHSensor, npkSensor NPKSensor, relay platform.RelayPin) *Zone {
	return &Zone{cfg: cfg, bus: bus, rh: rh, npk: npkSensor, relay: relay}
}

// Name returns the zone's stable identifier.
func (z *Zone) Name() string { return z.cfg.Name }

// OpenBus enters the shared bus session.
func (z *Zone) OpenBus() { z.bus.Open() }

// CloseBus leaves the shared bus session.
func (z *Zone) CloseBus() { z.bus.Close() }

// Measurements reads the RH block then, after the transport's enforced
// inter-frame idle, the NPK block (if present), returning whatever
// trends answered. A sensor that is DeviceAbsent or times out is logged
// and omitted rather than failing the whole call.
func (z *Zone) Measurements() map[model.Trend]model.Measurement {
	ts := time.Now().UTC()
	out := make(map[model.Trend]model.Measurement)

	reading, err := z.rh.ReadAll()
	if err != nil {
		z.logSensorError("rh", err)
	} else {
		z.setLastHumidity(reading.MoisturePct)
		out[model.TrendHumidity] = model.Measurement{Trend: model.TrendHumidity, Zone: z.cfg.Name, Timestamp: ts, Value: reading.MoisturePct, Unit: units.Percent}
		out[model.TrendTemperature] = model.Measurement{Trend: model.TrendTemperature, Zone: z.cfg.Name, Timestamp: ts, Value: reading.TemperatureC, Unit: units.Celsius}
		out[model.TrendEC] = model.Measurement{Trend: model.TrendEC, Zone: z.cfg.Name, Timestamp: ts, Value: reading.ECMicroSPerCm, Unit: units.MicroS}
		out[model.TrendPH] = model.Measurement{Trend: model.TrendPH, Zone: z.cfg.Name, Timestamp: ts, Value: reading.PH, Unit: units.PH}
		out[model.TrendSalinity] = model.Measurement{Trend: model.TrendSalinity, Zone: z.cfg.Name, Timestamp: ts, Value: reading.SalinityPPT, Unit: units.PPT}
		out[model.TrendTDS] = model.Measurement{Trend: model.TrendTDS, Zone: z.cfg.Name, Timestamp: ts, Value: reading.TDSPPM, Unit: units.PPM}
	}

	if z.npk != nil {
		time.Sleep(modbus.InterFrameIdle)
		npkReading, err := z.npk.Read()
		if err != nil {
			z.logSensorError("npk", err)
		} else {
			out[model.TrendNitrogen] = model.Measurement{Trend: model.TrendNitrogen, Zone: z.cfg.Name, Timestamp: ts, Value: npkReading.NitrogenMgKg, Unit: units.MgPerKg}
			out[model.TrendPhosphorus] = model.Measurement{Trend: model.TrendPhosphorus, Zone: z.cfg.Name, Timestamp: ts, Value: npkReading.PhosphorusMgKg, Unit: units.MgPerKg}
			out[model.TrendPotassium] = model.Measurement{Trend: model.TrendPotassium, Zone: z.cfg.Name, Timestamp: ts, Value: npkReading.PotassiumMgKg, Unit: units.MgPerKg}
		}
	}

	return out
}

func (z *Zone) logSensorError(kind string, err error) {
	switch {
	case errors.Is(err, modbus.ErrDeviceAbsent):
		log.Warnf("zone %s: %s sensor absent: %v", z.cfg.Name, kind, err)
	case errors.Is(err, modbus.ErrBusTimeout):
		log.Warnf("zone %s: %s sensor timed out: %v", z.cfg.Name, kind, err)
	default:
		log.Errorf("zone %s: %s sensor error: %v", z.cfg.Name, kind, err)
	}
}

// Humidity returns the cached last-read humidity percentage and whether a
// reading has ever been taken.
func (z *Zone) Humidity() (float64, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.lastHumidity == nil {
		return 0, false
	}
	return *z.lastHumidity, true
}

func (z *Zone) setLastHumidity(pct float64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.lastHumidity = &pct
}

// NeedsWatering reports whether the last cached humidity reading is
// below the zone's target. With no reading yet, it conservatively
// returns true so the watering loop takes at least one measurement
// before concluding the target is already met.
func (z *Zone) NeedsWatering() bool {
	humidity, ok := z.Humidity()
	if !ok {
		return true
	}
	return humidity < z.cfg.TargetHumidityPct
}

// HasDrought reports whether the last cached humidity reading is below
// the zone's minimum sensor threshold. With no reading yet, it returns
// false: drought is an override that requires evidence, not an absence
// of data.
func (z *Zone) HasDrought() bool {
	humidity, ok := z.Humidity()
	if !ok {
		return false
	}
	return humidity < z.cfg.MinSensorHumidityPct
}

// StartWatering energizes the relay. Idempotent: a call while already
// watering is logged and has no further effect.
func (z *Zone) StartWatering() error {
	z.mu.Lock()
	already := z.wateringActive
	z.mu.Unlock()
	if already {
		log.Debugf("zone %s: start_watering called while already active", z.cfg.Name)
		return nil
	}
	if err := z.relay.SetEnergized(true); err != nil {
		return fmt.Errorf("zone %s: energizing relay: %w", z.cfg.Name, err)
	}
	z.mu.Lock()
	z.wateringActive = true
	z.mu.Unlock()
	log.Infof("zone %s: watering started", z.cfg.Name)
	return nil
}

// StopWatering de-energizes the relay. Idempotent: a call while already
// stopped is logged and has no further effect. Safe to call from a
// deferred cleanup regardless of prior state.
func (z *Zone) StopWatering() error {
	z.mu.Lock()
	wasActive := z.wateringActive
	z.mu.Unlock()
	if err := z.relay.SetEnergized(false); err != nil {
		return fmt.Errorf("zone %s: de-energizing relay: %w", z.cfg.Name, err)
	}
	z.mu.Lock()
	z.wateringActive = false
	z.mu.Unlock()
	if wasActive {
		log.Infof("zone %s: watering stopped", z.cfg.Name)
	} else {
		log.Debugf("zone %s: stop_watering called while already inactive", z.cfg.Name)
	}
	return nil
}

// Config returns the zone's static definition.
func (z *Zone) Config() model.Zone { return z.cfg }
