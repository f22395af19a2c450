package zone

import (
	"errors"
	"testing"

	"github.com/danluca/waterly/internal/modbus"
	"github.com/danluca/waterly/internal/model"
	"github.com/danluca/waterly/internal/sensors/npk"
	"github.com/danluca/waterly/internal/sensors/soil"
)

type fakeRH struct {
	reading soil.Reading
	err     error
}

func (f fakeRH) ReadAll() (soil.Reading, error) { return f.reading, f.err }

type fakeNPK struct {
	reading npk.Reading
	err     error
}

func (f fakeNPK) Read() (npk.Reading, error) { return f.reading, f.err }

type fakeRelay struct {
	energized bool
	history   []bool
}

func (f *fakeRelay) SetEnergized(on bool) error {
	f.energized = on
	f.history = append(f.history, on)
	return nil
}

func newTestZone(cfg model.Zone, rh RHSensor, npkSensor NPKSensor, relay *fakeRelay) *Zone {
	return &Zone{cfg: cfg, bus: NewBus(), rh: rh, npk: npkSensor, relay: relay}
}

func TestMeasurementsFullReading(t *testing.T) {
	cfg := model.Zone{Name: "z1", HasNPK: true, TargetHumidityPct: 60, MinSensorHumidityPct: 20}
	rh := fakeRH{reading: soil.Reading{MoisturePct: 35, TemperatureC: 21, ECMicroSPerCm: 1100, PH: 6.5, SalinityPPT: 0.5, TDSPPM: 400}}
	npkSensor := fakeNPK{reading: npk.Reading{NitrogenMgKg: 10, PhosphorusMgKg: 5, PotassiumMgKg: 8}}
	z := newTestZone(cfg, rh, npkSensor, &fakeRelay{})

	measurements := z.Measurements()
	if len(measurements) != 9 {
		t.Fatalf("expected 9 trend measurements, got %d", len(measurements))
	}
	if measurements[model.TrendHumidity].Value != 35 {
		t.Errorf("expected humidity 35, got %v", measurements[model.TrendHumidity].Value)
	}

	humidity, ok := z.Humidity()
	if !ok || humidity != 35 {
		t.Errorf("expected cached humidity 35, got %v (ok=%v)", humidity, ok)
	}
}

func TestMeasurementsPartialOnRHAbsent(t *testing.T) {
	cfg := model.Zone{Name: "z1", HasNPK: true}
	rh := fakeRH{err: modbus.ErrDeviceAbsent}
	npkSensor := fakeNPK{reading: npk.Reading{NitrogenMgKg: 10, PhosphorusMgKg: 5, PotassiumMgKg: 8}}
	z := newTestZone(cfg, rh, npkSensor, &fakeRelay{})

	measurements := z.Measurements()
	if _, ok := measurements[model.TrendHumidity]; ok {
		t.Error("did not expect a humidity reading when RH sensor is absent")
	}
	if _, ok := measurements[model.TrendNitrogen]; !ok {
		t.Error("expected NPK readings to still be present")
	}
}

func TestNeedsWateringAndHasDrought(t *testing.T) {
	cfg := model.Zone{Name: "z1", TargetHumidityPct: 60, MinSensorHumidityPct: 30}
	z := newTestZone(cfg, fakeRH{err: errors.New("no reading yet")}, nil, &fakeRelay{})

	if !z.NeedsWatering() {
		t.Error("expected NeedsWatering to default true with no reading")
	}
	if z.HasDrought() {
		t.Error("expected HasDrought to default false with no reading")
	}

	z.setLastHumidity(22)
	if !z.HasDrought() {
		t.Error("expected drought at 22% against a 30% minimum")
	}
	if !z.NeedsWatering() {
		t.Error("expected watering needed at 22% against a 60% target")
	}

	z.setLastHumidity(72)
	if z.NeedsWatering() {
		t.Error("expected no watering needed at 72% against a 60% target")
	}
}

func TestStartStopWateringIdempotent(t *testing.T) {
	relay := &fakeRelay{}
	z := newTestZone(model.Zone{Name: "z1"}, fakeRH{}, nil, relay)

	if err := z.StartWatering(); err != nil {
		t.Fatalf("StartWatering: %v", err)
	}
	if err := z.StartWatering(); err != nil {
		t.Fatalf("second StartWatering: %v", err)
	}
	if len(relay.history) != 1 {
		t.Errorf("expected relay energized exactly once, got %d calls: %v", len(relay.history), relay.history)
	}

	if err := z.StopWatering(); err != nil {
		t.Fatalf("StopWatering: %v", err)
	}
	if err := z.StopWatering(); err != nil {
		t.Fatalf("second StopWatering: %v", err)
	}
	if relay.energized {
		t.Error("expected relay to be de-energized")
	}
}

func TestBusReentrant(t *testing.T) {
	b := NewBus()
	b.Open()
	b.Open()
	if !b.IsOpen() {
		t.Fatal("expected bus open after nested Open calls")
	}
	b.Close()
	if !b.IsOpen() {
		t.Error("expected bus to remain open after only one Close of two Opens")
	}
	b.Close()
	if b.IsOpen() {
		t.Error("expected bus closed after matching Close calls")
	}
}
