// Package serial provides the raw byte channel beneath the CAN transport.
// A Channel behaves like a plain serial port : timeout bounded reads,
// all-or-error writes, idempotent close.
package serial

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPortUnavailable     = errors.New("serial device cannot be opened or is already in use")
	ErrUnsupportedBaudRate = errors.New("baud rate rejected by driver")
	ErrWriteFailure        = errors.New("hardware write did not complete")
	ErrChannelClosed       = errors.New("channel is closed")
)

// A Channel is a raw byte channel with timeout bounded reads.
// Implementations own the underlying device handle exclusively.
type Channel interface {
	// Open acquires the device, failing with ErrPortUnavailable if it
	// cannot be opened or is held by someone else
	Open() error
	// SetBaudRate reconfigures the line rate, failing with
	// ErrUnsupportedBaudRate if the driver rejects it
	SetBaudRate(rate int) error
	// Read blocks until bytes arrive or timeout elapses and returns
	// whatever is available, up to len(p). A short read is not an error
	Read(p []byte, timeout time.Duration) (int, error)
	// Write sends all of p, retrying a stalled partial write once before
	// failing with ErrWriteFailure
	Write(p []byte) (int, error)
	// Flush drains pending output and discards stale input
	Flush() error
	// Close releases the device, calling it twice is not an error
	Close() error
}

// Register a new channel backend type
// This should be called inside an init() function of the implementation
func RegisterBackend(backend string, newChannel NewChannelFunc) {
	backendRegistry[backend] = newChannel
}

type NewChannelFunc func(portName string, baudRate int) (Channel, error)

var backendRegistry = make(map[string]NewChannelFunc)

// Create a new channel with the given backend
// Currently supported : serial, virtual
func NewChannel(backend string, portName string, baudRate int) (Channel, error) {
	newChannel, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unsupported backend : %v", backend)
	}
	return newChannel(portName, baudRate)
}
