package transport

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

const (
	// Line rate the Dynamixel bus and the converter ship with
	DefaultBaudRate = 1000000
	// Standard frame identifier the converter is configured with by default
	DefaultCanID uint32 = 0x60
	// Latency allowance of the usb serial driver in milliseconds, the upper
	// protocol layer folds this into its packet timeout math
	LatencyTimer = 16

	DefaultTimeout = 100 * time.Millisecond
)

// Config fully describes one transport channel.
// It is immutable for the lifetime of the transport instance.
type Config struct {
	// Channel backend registered with pkg/serial, e.g. "serial" or "virtual"
	Backend  string
	PortName string
	// Physical line rate of the serial leg
	SerialBaudRate int
	// CAN bus bitrate, informational only : it is configured on the
	// converter out of band and cannot be verified from here
	CANBaudRate int
	// CAN arbitration id the converter tags frames with, must match the
	// converter configuration
	CanID      uint32
	ExtendedID bool
	// Upper bound for the aggregate blocking time of a single Read
	Timeout time.Duration
	// Debug enables per chunk tracing, it has no behavioral side effect
	Debug bool
}

func DefaultConfig(portName string) Config {
	return Config{
		Backend:        "serial",
		PortName:       portName,
		SerialBaudRate: DefaultBaudRate,
		CANBaudRate:    DefaultBaudRate,
		CanID:          DefaultCanID,
		Timeout:        DefaultTimeout,
	}
}

// LoadConfig reads a channel profile from the [channel] section of an ini
// file. Missing keys keep their defaults, CanID accepts hex (0x60) or
// decimal notation.
func LoadConfig(path string) (Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load channel profile : %w", err)
	}
	section := file.Section("channel")
	config := DefaultConfig(section.Key("Port").String())
	if backend := section.Key("Backend").String(); backend != "" {
		config.Backend = backend
	}
	config.SerialBaudRate = section.Key("SerialBaudRate").MustInt(DefaultBaudRate)
	config.CANBaudRate = section.Key("CANBaudRate").MustInt(config.CANBaudRate)
	if raw := section.Key("CanID").String(); raw != "" {
		canId, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return Config{}, fmt.Errorf("parse CanID %q : %w", raw, err)
		}
		config.CanID = uint32(canId)
	}
	config.ExtendedID = section.Key("ExtendedID").MustBool(false)
	config.Timeout = time.Duration(section.Key("TimeoutMs").MustInt(int(DefaultTimeout/time.Millisecond))) * time.Millisecond
	config.Debug = section.Key("Debug").MustBool(false)
	return config, nil
}
