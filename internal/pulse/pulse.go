// Package pulse counts interrupt-driven edges from a flow meter's GPIO
// line and converts the count into a calibrated volume.
package pulse

import (
	"sync"
	"time"

	"github.com/danluca/waterly/internal/platform"
)

// FrequencyFactor is the sensor-specific constant K relating flow (L/min)
// to pulse frequency (Hz): freq(Hz) = K * flow(L/min).
const FrequencyFactor = 5.5

// Debounce is the minimum spacing enforced between two counted edges.
const Debounce = 5 * time.Millisecond

// Counter maintains a monotonically increasing pulse count under a mutex,
// fed either by a real EdgePin's interrupt callback or by SimulatePulses
// in tests.
type Counter struct {
	mu      sync.Mutex
	count   int64
	pin     platform.EdgePin
	stop    chan struct{}
	started bool
}

// New returns a Counter that will watch pin for falling edges once Start
// is called.
func New(pin platform.EdgePin) *Counter {
	return &Counter{pin: pin}
}

// Start begins watching the configured pin in its own goroutine. It is a
// no-op if already started.
func (c *Counter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.pin == nil {
		return
	}
	c.stop = make(chan struct{})
	c.started = true
	go c.pin.WatchFallingEdges(c.stop, c.increment)
}

// Stop halts edge watching. It is a no-op if not started.
func (c *Counter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	close(c.stop)
	c.started = false
}

func (c *Counter) increment() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// SimulatePulses adds n synthetic pulses, for tests and diagnostics. n < 0
// is ignored.
func (c *Counter) SimulatePulses(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.count += int64(n)
	c.mu.Unlock()
}

// SnapshotAndReset returns the pulse count accumulated since the last
// call and resets the counter to zero.
func (c *Counter) SnapshotAndReset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.count
	c.count = 0
	return n
}

// Volume converts a pulse count accumulated over intervalSeconds into
// liters: flow(L/min) = (pulses/interval)/K; liters = flow * (interval/60).
// Returns 0 when intervalSeconds <= 0.
func Volume(intervalSeconds float64, pulses int64) float64 {
	if intervalSeconds <= 0 {
		return 0
	}
	freq := float64(pulses) / intervalSeconds
	flowLPM := freq / FrequencyFactor
	return flowLPM * (intervalSeconds / 60.0)
}
