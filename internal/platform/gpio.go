package platform

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// RelayPin is the seam a Zone uses to drive its valve relay.
type RelayPin interface {
	// SetEnergized drives the relay coil on (true) or off (false).
	SetEnergized(on bool) error
}

// EdgePin is the seam the pulse counter uses to receive falling-edge
// interrupts from the flow meter.
type EdgePin interface {
	// WatchFallingEdges blocks in a loop invoking onEdge for each detected
	// falling edge until stop is closed. The pin's pull-up and edge
	// detection are set up when the pin is created (see NewEdgePin).
	WatchFallingEdges(stop <-chan struct{}, onEdge func())
}

// GPIOHost initializes the periph.io host driver registry once per
// process. It must run before any pin is looked up by name.
func GPIOHost() error {
	_, err := host.Init()
	return err
}

// periphRelay drives a gpio.PinOut looked up by BCM/board name (e.g. "GPIO17").
type periphRelay struct {
	pin gpio.PinOut
}

// NewRelayPin looks up a gpio.PinOut by name and wraps it as a RelayPin.
func NewRelayPin(name string) (RelayPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("platform: no GPIO pin named %q", name)
	}
	out, ok := p.(gpio.PinOut)
	if !ok {
		return nil, fmt.Errorf("platform: pin %q does not support output", name)
	}
	return &periphRelay{pin: out}, nil
}

func (r *periphRelay) SetEnergized(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return r.pin.Out(level)
}

// periphEdgePin debounces falling edges on a gpio.PinIn, matching the
// periph-devices pack's busy.In(pull, edge) / WaitForEdge idiom.
type periphEdgePin struct {
	pin     gpio.PinIn
	debounce time.Duration
}

// NewEdgePin looks up a gpio.PinIn by name, pulled up, for falling-edge
// pulse counting with the given debounce window.
func NewEdgePin(name string, debounce time.Duration) (EdgePin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("platform: no GPIO pin named %q", name)
	}
	in, ok := p.(gpio.PinIn)
	if !ok {
		return nil, fmt.Errorf("platform: pin %q does not support input", name)
	}
	if err := in.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("platform: configuring pin %q: %w", name, err)
	}
	return &periphEdgePin{pin: in, debounce: debounce}, nil
}

func (e *periphEdgePin) WatchFallingEdges(stop <-chan struct{}, onEdge func()) {
	var last time.Time
	for {
		select {
		case <-stop:
			return
		default:
		}
		if e.pin.WaitForEdge(250 * time.Millisecond) {
			now := time.Now()
			if now.Sub(last) >= e.debounce {
				onEdge()
				last = now
			}
		}
	}
}
