package platform

import (
	"bytes"
	"io"
	"sync"
)

// FakeSerialPort is an in-memory SerialPort for tests: writes are recorded,
// and Responses are dequeued in order to satisfy reads.
type FakeSerialPort struct {
	mu        sync.Mutex
	Written   [][]byte
	Responses [][]byte
	Closed    bool
	reader    *bytes.Reader
}

// NewFakeSerialPort creates a FakeSerialPort that returns responses, in
// order, one per logical exchange (Write followed by Read calls).
func NewFakeSerialPort(responses ...[]byte) *FakeSerialPort {
	return &FakeSerialPort{Responses: responses}
}

func (f *FakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.Written = append(f.Written, cp)
	if len(f.Responses) > 0 {
		f.reader = bytes.NewReader(f.Responses[0])
		f.Responses = f.Responses[1:]
	} else {
		f.reader = bytes.NewReader(nil)
	}
	return len(p), nil
}

func (f *FakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reader == nil {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *FakeSerialPort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeRelay is an in-memory RelayPin for tests.
type FakeRelay struct {
	mu        sync.Mutex
	Energized bool
	History   []bool
}

func (r *FakeRelay) SetEnergized(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Energized = on
	r.History = append(r.History, on)
	return nil
}
