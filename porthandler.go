// Package dynamixelcan lets the Dynamixel actuator protocol run unmodified
// across a CAN bus segment, using a pair of serial-CAN converters in
// transparent mode (e.g. Waveshare WS-TTL-CAN). The transport it creates is
// a drop in replacement for a direct serial port handler.
package dynamixelcan

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/transport"
)

// Option adjusts a channel configuration before the transport is built
type Option func(*transport.Config)

// WithCanID sets the CAN identifier, extended selects the 29 bit format.
// Must match the converter configuration.
func WithCanID(id uint32, extended bool) Option {
	return func(config *transport.Config) {
		config.CanID = id
		config.ExtendedID = extended
	}
}

// WithBaudRate sets the serial line rate
func WithBaudRate(rate int) Option {
	return func(config *transport.Config) {
		config.SerialBaudRate = rate
	}
}

// WithTimeout bounds every read operation
func WithTimeout(timeout time.Duration) Option {
	return func(config *transport.Config) {
		config.Timeout = timeout
	}
}

// WithBackend selects a registered channel backend, e.g. "virtual"
func WithBackend(backend string) Option {
	return func(config *transport.Config) {
		config.Backend = backend
	}
}

// WithDebug enables per chunk tracing
func WithDebug() Option {
	return func(config *transport.Config) {
		config.Debug = true
	}
}

// NewPortHandler creates a transport for the given serial port with the
// default converter settings (1 Mbit/s, standard id 0x60). The port is not
// opened yet, call Open on the result.
func NewPortHandler(portName string, opts ...Option) (*transport.Transport, error) {
	config := transport.DefaultConfig(portName)
	for _, opt := range opts {
		opt(&config)
	}
	return transport.New(config)
}

// ConverterSetupInstructions renders the one time, out of band converter
// configuration matching config. A mismatch between converter settings and
// the channel configuration is undetectable at runtime and shows up as
// silent communication failure, so the checklist is kept next to the code.
func ConverterSetupInstructions(config transport.Config) string {
	frameType := "Standard Frame"
	if config.ExtendedID {
		frameType = "Extended Frame"
	}
	var b strings.Builder
	b.WriteString("=== WS-TTL-CAN converter configuration (via WS-CAN-TOOL) ===\n")
	fmt.Fprintf(&b, "1. Set 'Working Mode' to 'Transparent Conversion'\n")
	fmt.Fprintf(&b, "2. Set 'CAN Baudrate' to %d bps\n", config.CANBaudRate)
	fmt.Fprintf(&b, "3. Set 'Serial Baudrate' to %d bps\n", config.SerialBaudRate)
	fmt.Fprintf(&b, "4. Set 'Serial Data Bit' to 8, 'Stop Bit' to 1, 'Parity Bit' to None\n")
	fmt.Fprintf(&b, "5. Set 'CAN ID' to 0x%X and 'Frame Type' to %s\n", config.CanID, frameType)
	fmt.Fprintf(&b, "6. Save device parameters and restart the device\n")
	fmt.Fprintf(&b, "Both converters on the segment need matching settings.\n")
	return b.String()
}
