// Package modbus implements a single-owner Modbus-RTU transport shared by
// every soil sensor on one RS-485 bus: framed register reads/writes with
// function-code fallback, sticky device-presence tracking, and serialized
// access so only one frame is ever in flight.
package modbus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/danluca/waterly/internal/platform"
)

// Function codes used by the supported sensors.
const (
	FuncReadHolding uint8 = 0x03
	FuncReadInput   uint8 = 0x04
	FuncWriteSingle uint8 = 0x06
)

// FrameTimeout bounds a single Modbus exchange.
const FrameTimeout = 1 * time.Second

// InterFrameIdle is the minimum idle time enforced between any two frames
// on the bus, matching the ≥250ms requirement when switching devices.
const InterFrameIdle = 250 * time.Millisecond

// Transport is a single-owner serial connection serialized by mu: only one
// frame is ever on the wire at a time.
type Transport struct {
	mu       sync.Mutex
	port     platform.SerialPort
	opener   platform.SerialOpener
	device   string
	baud     int
	lastCall time.Time

	presence   map[byte]bool
	preferred  map[byte]uint8 // learned function code per address
}

// Open opens the RS-485 serial device at baud (8N1 is assumed by the
// underlying serial library) and returns a ready Transport.
func Open(opener platform.SerialOpener, device string, baud int) (*Transport, error) {
	port, err := opener.Open(device, baud, FrameTimeout)
	if err != nil {
		return nil, fmt.Errorf("modbus: opening %s: %w", device, err)
	}
	return &Transport{
		port:      port,
		opener:    opener,
		device:    device,
		baud:      baud,
		presence:  make(map[byte]bool),
		preferred: make(map[byte]uint8),
	}, nil
}

// Reopen closes the current port and reopens the same device at newBaud,
// used after a sensor's baud-rate configuration register is changed.
func (t *Transport) Reopen(newBaud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		_ = t.port.Close()
	}
	port, err := t.opener.Open(t.device, newBaud, FrameTimeout)
	if err != nil {
		return fmt.Errorf("modbus: reopening %s at %d baud: %w", t.device, newBaud, err)
	}
	t.port = port
	t.baud = newBaud
	return nil
}

// Close releases the underlying serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

// IsPresent reports the sticky presence boolean for a device address: true
// once any exchange has produced a (possibly erroneous) reply, false once
// an I/O failure has been observed and no subsequent success resets it.
func (t *Transport) IsPresent(addr byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.presence[addr]
}

// PreferredFunction returns the function code last known to succeed for
// addr, or 0 if none has been learned yet.
func (t *Transport) PreferredFunction(addr byte) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preferred[addr]
}

func (t *Transport) waitIdle() {
	if elapsed := time.Since(t.lastCall); elapsed < InterFrameIdle {
		time.Sleep(InterFrameIdle - elapsed)
	}
}

// ReadRegisters issues one read exchange at function fn (0x03 or 0x04),
// starting at register start for count 16-bit words. It does not retry or
// fall back; callers needing fallback use ReadRegistersFallback.
func (t *Transport) ReadRegisters(addr byte, fn uint8, start, count uint16) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitIdle()
	defer func() { t.lastCall = time.Now() }()

	req := []byte{addr, fn, byte(start >> 8), byte(start), byte(count >> 8), byte(count)}
	req = appendCRC(req)

	resp, err := t.exchange(req)
	if err != nil {
		t.presence[addr] = false
		return nil, fmt.Errorf("%w: %v", ErrBusTimeout, err)
	}

	if len(resp) >= 2 && resp[1]&0x80 != 0 {
		t.presence[addr] = true
		exc := byte(0)
		if len(resp) >= 3 {
			exc = resp[2]
		}
		return nil, &ProtocolError{Address: addr, FunctionCode: fn, ExceptionCode: exc}
	}

	if len(resp) < 3 || int(resp[2]) != int(count)*2 || len(resp) < 3+int(count)*2 {
		t.presence[addr] = false
		return nil, fmt.Errorf("%w: short frame from device 0x%02X", ErrBusTimeout, addr)
	}

	t.presence[addr] = true
	t.preferred[addr] = fn

	values := make([]uint16, count)
	for i := 0; i < int(count); i++ {
		values[i] = binary.BigEndian.Uint16(resp[3+i*2:])
	}
	return values, nil
}

// ReadRegistersFallback tries the preferred function code for addr first
// (learned from a previous success, else fns[0]); on a bus-level failure
// it retries with the other code once, per the Modbus fallback strategy.
func (t *Transport) ReadRegistersFallback(addr byte, fns [2]uint8, start, count uint16) ([]uint16, error) {
	primary := fns[0]
	if learned := t.PreferredFunction(addr); learned == fns[0] || learned == fns[1] {
		primary = learned
	}
	secondary := fns[0]
	if primary == fns[0] {
		secondary = fns[1]
	}

	values, err := t.ReadRegisters(addr, primary, start, count)
	if err == nil {
		return values, nil
	}
	var perr *ProtocolError
	if asProtocolError(err, &perr) {
		return nil, err
	}
	return t.ReadRegisters(addr, secondary, start, count)
}

func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}

// WriteRegister writes a single 16-bit register via function code 0x06.
func (t *Transport) WriteRegister(addr byte, reg, value uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitIdle()
	defer func() { t.lastCall = time.Now() }()

	req := []byte{addr, FuncWriteSingle, byte(reg >> 8), byte(reg), byte(value >> 8), byte(value)}
	req = appendCRC(req)

	resp, err := t.exchange(req)
	if err != nil {
		t.presence[addr] = false
		return fmt.Errorf("%w: %v", ErrBusTimeout, err)
	}
	if len(resp) >= 2 && resp[1]&0x80 != 0 {
		t.presence[addr] = true
		exc := byte(0)
		if len(resp) >= 3 {
			exc = resp[2]
		}
		return &ProtocolError{Address: addr, FunctionCode: FuncWriteSingle, ExceptionCode: exc}
	}
	t.presence[addr] = true
	return nil
}

// exchange writes req and reads back a reasonably-sized response. The
// fake/real SerialPort is expected to honor FrameTimeout on Read.
func (t *Transport) exchange(req []byte) ([]byte, error) {
	if t.port == nil {
		return nil, fmt.Errorf("modbus: port not open")
	}
	if _, err := t.port.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, 256)
	n, err := t.port.Read(buf)
	if err != nil {
		return nil, err
	}
	if n < 5 {
		return nil, fmt.Errorf("modbus: response too short (%d bytes)", n)
	}
	frame := buf[:n]
	payload, gotCRC := frame[:n-2], binary.LittleEndian.Uint16(frame[n-2:])
	if crc16(payload) != gotCRC {
		return nil, fmt.Errorf("modbus: CRC mismatch")
	}
	return frame, nil
}
