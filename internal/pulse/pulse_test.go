package pulse

import "testing"

func TestVolumeCalibrationPoint(t *testing.T) {
	v := Volume(60, 330)
	if diff := v - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("volume(60s, 330 pulses) = %v, want 1.0", v)
	}
}

func TestVolumeNonPositiveInterval(t *testing.T) {
	if v := Volume(0, 100); v != 0 {
		t.Errorf("expected 0 for non-positive interval, got %v", v)
	}
	if v := Volume(-5, 100); v != 0 {
		t.Errorf("expected 0 for negative interval, got %v", v)
	}
}

func TestSnapshotAndResetAndSimulate(t *testing.T) {
	c := New(nil)
	c.SimulatePulses(50)
	c.SimulatePulses(-10) // ignored
	if n := c.SnapshotAndReset(); n != 50 {
		t.Errorf("got %d want 50", n)
	}
	if n := c.SnapshotAndReset(); n != 0 {
		t.Errorf("expected counter reset to 0, got %d", n)
	}
}
