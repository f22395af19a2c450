package zone

import "sync"

// Bus is a reentrant session counter shared by every Zone on one Modbus
// transport. Frame-level exclusion is already guaranteed by the
// transport's own mutex; Bus exists so a caller can bracket a batch of
// sequential reads (RH block, inter-frame idle, NPK block) with
// Open/Close without a nested Open/Close pair — e.g. the Scheduler's
// sweep calling into a helper that itself opens the bus — tearing down
// a session an outer caller still considers active.
type Bus struct {
	mu       sync.Mutex
	refCount int
}

// NewBus returns a Bus ready for use.
func NewBus() *Bus {
	return &Bus{}
}

// Open marks one more caller as holding the session.
func (b *Bus) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refCount++
}

// Close releases one level of nesting. A Close with no matching Open is a
// no-op rather than a panic or negative count.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refCount > 0 {
		b.refCount--
	}
}

// IsOpen reports whether any caller currently holds the session.
func (b *Bus) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refCount > 0
}
