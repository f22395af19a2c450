// Package soil implements the RH/T/EC/pH/Salinity/TDS soil sensor driver
// (the SEN0604-class device) over a shared Modbus transport.
package soil

import (
	"fmt"
	"time"

	"github.com/danluca/waterly/internal/modbus"
)

// Register map, 16-bit words.
const (
	regMoisture    = 0x0000
	regTemperature = 0x0001
	regEC          = 0x0002
	regPH          = 0x0003
	regSalinity    = 0x0007
	regTDS         = 0x0008
	regCoeffStart  = 0x0022
	regCoeffCount  = 3
	regCalibStart  = 0x0050
	regCalibCount  = 4
	regAddress     = 0x07D0
	regBaudCode    = 0x07D1
)

// BaudCode maps the datasheet's baud-rate enumeration to real baud rates.
var BaudCode = map[uint16]int{0: 2400, 1: 4800, 2: 9600}

// preferredFuncs is tried in this order; Holding (0x03) is the datasheet's
// documented function code for this device.
var preferredFuncs = [2]uint8{modbus.FuncReadHolding, modbus.FuncReadInput}

// Reading is one batched read_all result.
type Reading struct {
	MoisturePct     float64
	TemperatureC    float64
	ECMicroSPerCm   float64
	PH              float64
	SalinityPPT     float64
	TDSPPM          float64
}

// Driver talks to one RH/T sensor at Address over a shared Transport.
type Driver struct {
	Transport *modbus.Transport
	Address   byte
}

// New returns a Driver for the sensor at address on bus.
func New(bus *modbus.Transport, address byte) *Driver {
	return &Driver{Transport: bus, Address: address}
}

// ReadAll performs the two batched transactions the datasheet's layout
// allows: moisture..pH in one contiguous read, then salinity+TDS in a
// second read after the transport's enforced inter-frame idle.
func (d *Driver) ReadAll() (Reading, error) {
	block1, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, regMoisture, 4)
	if err != nil {
		return Reading{}, fmt.Errorf("soil[0x%02X]: reading moisture..pH: %w", d.Address, err)
	}

	block2, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, regSalinity, 2)
	if err != nil {
		return Reading{}, fmt.Errorf("soil[0x%02X]: reading salinity/tds: %w", d.Address, err)
	}

	temp := float64(int16(block1[1])) * 0.1
	if temp < -40 || temp > 85 {
		return Reading{}, fmt.Errorf("soil[0x%02X]: %w: temperature %.1fC outside plausible range", d.Address, modbus.ErrProtocol, temp)
	}

	return Reading{
		MoisturePct:   float64(block1[0]) * 0.1,
		TemperatureC:  temp,
		ECMicroSPerCm: float64(block1[2]),
		PH:            float64(block1[3]) * 0.1,
		SalinityPPT:   float64(block2[0]),
		TDSPPM:        float64(block2[1]),
	}, nil
}

// GetCoefficients reads the three calibration coefficient registers.
func (d *Driver) GetCoefficients() ([3]uint16, error) {
	values, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, regCoeffStart, regCoeffCount)
	if err != nil {
		return [3]uint16{}, fmt.Errorf("soil[0x%02X]: reading coefficients: %w", d.Address, err)
	}
	var out [3]uint16
	copy(out[:], values)
	return out, nil
}

// SetCoefficients writes the three coefficient registers in order.
func (d *Driver) SetCoefficients(c [3]uint16) error {
	for i, v := range c {
		if err := d.Transport.WriteRegister(d.Address, regCoeffStart+uint16(i), v); err != nil {
			return fmt.Errorf("soil[0x%02X]: writing coefficient %d: %w", d.Address, i, err)
		}
	}
	return nil
}

// GetCalibration reads the four calibration registers.
func (d *Driver) GetCalibration() ([4]uint16, error) {
	values, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, regCalibStart, regCalibCount)
	if err != nil {
		return [4]uint16{}, fmt.Errorf("soil[0x%02X]: reading calibration: %w", d.Address, err)
	}
	var out [4]uint16
	copy(out[:], values)
	return out, nil
}

// SetCalibration writes the four calibration registers in order.
func (d *Driver) SetCalibration(c [4]uint16) error {
	for i, v := range c {
		if err := d.Transport.WriteRegister(d.Address, regCalibStart+uint16(i), v); err != nil {
			return fmt.Errorf("soil[0x%02X]: writing calibration %d: %w", d.Address, i, err)
		}
	}
	return nil
}

// SetDeviceAddress changes the device's bus address (1..247).
func (d *Driver) SetDeviceAddress(newAddr byte) error {
	if newAddr < 1 || newAddr > 247 {
		return fmt.Errorf("soil[0x%02X]: invalid new address 0x%02X", d.Address, newAddr)
	}
	if err := d.Transport.WriteRegister(d.Address, regAddress, uint16(newAddr)); err != nil {
		return fmt.Errorf("soil[0x%02X]: setting device address: %w", d.Address, err)
	}
	d.Address = newAddr
	return nil
}

// SetBaudRate writes the baud-code register and reopens the transport's
// serial port at the new rate, per the datasheet's 0/1/2 -> 2400/4800/9600
// mapping.
func (d *Driver) SetBaudRate(code uint16) error {
	newBaud, ok := BaudCode[code]
	if !ok {
		return fmt.Errorf("soil[0x%02X]: unknown baud code %d", d.Address, code)
	}
	if err := d.Transport.WriteRegister(d.Address, regBaudCode, code); err != nil {
		return fmt.Errorf("soil[0x%02X]: setting baud code: %w", d.Address, err)
	}
	// Reopening the port interrupts any other sensor mid-exchange on the
	// same bus; callers must hold exclusive access to the zone/bus before
	// calling this, matching the Zone's OpenBus contract.
	time.Sleep(modbus.InterFrameIdle)
	return d.Transport.Reopen(newBaud)
}
