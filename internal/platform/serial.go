// Package platform abstracts the hardware seams (serial port, GPIO pins)
// behind small interfaces so the Modbus transport, sensor drivers, and
// pulse counter can be exercised without real hardware.
package platform

import (
	"io"
	"time"

	serial "github.com/tarm/goserial"
)

// SerialPort is the minimal surface the Modbus transport needs from a
// serial connection: a readable/writable byte stream that can be closed
// and reopened at a different baud rate.
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialOpener opens a serial device at a given baud rate, 8N1, with a
// fixed per-read timeout. Production code uses RealSerialOpener; tests
// substitute a fake.
type SerialOpener interface {
	Open(device string, baud int, timeout time.Duration) (SerialPort, error)
}

// RealSerialOpener opens serial devices via github.com/tarm/goserial, the
// same library the teacher's weather stations use for serial I/O.
type RealSerialOpener struct{}

// Open implements SerialOpener.
func (RealSerialOpener) Open(device string, baud int, timeout time.Duration) (SerialPort, error) {
	cfg := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: timeout,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}
