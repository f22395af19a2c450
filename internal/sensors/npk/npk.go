// Package npk implements the N/P/K soil nutrient sensor driver (the
// SEN0605-class device) over a shared Modbus transport.
package npk

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/danluca/waterly/internal/modbus"
)

const (
	regNitrogen   = 0x001E
	regPhosphorus = 0x001F
	regPotassium  = 0x0020
)

// preferredFuncs: the NPK sensor's documented function code is Input
// (0x04), with Holding (0x03) as fallback.
var preferredFuncs = [2]uint8{modbus.FuncReadInput, modbus.FuncReadHolding}

// Reading is one N/P/K sample, all in mg/kg.
type Reading struct {
	NitrogenMgKg   float64
	PhosphorusMgKg float64
	PotassiumMgKg  float64
}

// Driver talks to one NPK sensor at Address over a shared Transport.
type Driver struct {
	Transport *modbus.Transport
	Address   byte
}

// New returns a Driver for the NPK sensor at address on bus.
func New(bus *modbus.Transport, address byte) *Driver {
	return &Driver{Transport: bus, Address: address}
}

// Read reads N, P, K as one contiguous 3-register transaction.
func (d *Driver) Read() (Reading, error) {
	values, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, regNitrogen, 3)
	if err != nil {
		return Reading{}, fmt.Errorf("npk[0x%02X]: reading N/P/K: %w", d.Address, err)
	}
	return Reading{
		NitrogenMgKg:   float64(values[0]),
		PhosphorusMgKg: float64(values[1]),
		PotassiumMgKg:  float64(values[2]),
	}, nil
}

// coefficientSlot is which of the device's coefficient pairs to address;
// each pair occupies two adjacent registers (HI word, LO word) assembled
// big-endian into an IEEE-754 float32.
type coefficientSlot int

const (
	CoeffNitrogen coefficientSlot = iota
	CoeffPhosphorus
	CoeffPotassium
)

// coefficientRegisters is each slot's HI-word register. The three blocks
// are not evenly strided: nitrogen's coefficient+deviation triplet is
// followed by a gap before phosphorus's block, and another before
// potassium's (per the datasheet register map).
var coefficientRegisters = [3]uint16{0x03E8, 0x03F2, 0x03FC}

func (s coefficientSlot) registerOffset() uint16 {
	return coefficientRegisters[s]
}

// GetCoefficient reads one 32-bit float coefficient, enforcing the
// datasheet's required ≥250ms gap between the high-register and
// low-register reads.
func (d *Driver) GetCoefficient(slot coefficientSlot) (float32, error) {
	reg := slot.registerOffset()

	hi, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, reg, 1)
	if err != nil {
		return 0, fmt.Errorf("npk[0x%02X]: reading coefficient hi word: %w", d.Address, err)
	}
	time.Sleep(modbus.InterFrameIdle)
	lo, err := d.Transport.ReadRegistersFallback(d.Address, preferredFuncs, reg+1, 1)
	if err != nil {
		return 0, fmt.Errorf("npk[0x%02X]: reading coefficient lo word: %w", d.Address, err)
	}

	bits := uint32(hi[0])<<16 | uint32(lo[0])
	return math.Float32frombits(bits), nil
}

// SetCoefficient writes a 32-bit float coefficient as two registers (HI
// then LO), with the same enforced gap between the two writes.
func (d *Driver) SetCoefficient(slot coefficientSlot, value float32) error {
	reg := slot.registerOffset()
	bits := math.Float32bits(value)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], bits)
	hi := binary.BigEndian.Uint16(buf[0:2])
	lo := binary.BigEndian.Uint16(buf[2:4])

	if err := d.Transport.WriteRegister(d.Address, reg, hi); err != nil {
		return fmt.Errorf("npk[0x%02X]: writing coefficient hi word: %w", d.Address, err)
	}
	time.Sleep(modbus.InterFrameIdle)
	if err := d.Transport.WriteRegister(d.Address, reg+1, lo); err != nil {
		return fmt.Errorf("npk[0x%02X]: writing coefficient lo word: %w", d.Address, err)
	}
	return nil
}
