package modbus

import "errors"

// Error kinds returned by Transport operations, per the error-handling
// design: a transient bus failure is distinct from a protocol-level
// exception response, which is in turn distinct from a device that never
// answers at all.
var (
	// ErrBusTimeout is a serial timeout or framing failure: the bus itself
	// could not complete the exchange. Callers should not retry within the
	// same sweep.
	ErrBusTimeout = errors.New("modbus: bus timeout")

	// ErrProtocol is a Modbus exception response: the slave answered, so
	// the device is present, but the requested operation failed.
	ErrProtocol = errors.New("modbus: protocol exception")

	// ErrDeviceAbsent marks a device considered off the bus. Transport
	// itself never returns it: a failed exchange is reported as
	// ErrBusTimeout and recorded as absence through IsPresent.
	ErrDeviceAbsent = errors.New("modbus: device absent")
)

// ProtocolError wraps ErrProtocol with the Modbus exception code returned
// by the slave.
type ProtocolError struct {
	Address      byte
	FunctionCode byte
	ExceptionCode byte
}

func (e *ProtocolError) Error() string {
	return "modbus: device " + byteToStr(e.Address) + " exception " + byteToStr(e.ExceptionCode) +
		" on function " + byteToStr(e.FunctionCode)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

func byteToStr(b byte) string {
	const hex = "0123456789ABCDEF"
	return "0x" + string(hex[b>>4]) + string(hex[b&0xF])
}
