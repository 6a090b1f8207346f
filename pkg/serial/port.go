package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

func init() {
	RegisterBackend("serial", NewPort)
}

// Port drives a physical serial device through go.bug.st/serial.
// Line settings are fixed at 8N1, which is what the converter expects.
type Port struct {
	mu       sync.Mutex
	name     string
	baudRate int
	port     bugst.Port
	opened   bool
}

func NewPort(portName string, baudRate int) (Channel, error) {
	return &Port{name: portName, baudRate: baudRate}, nil
}

// Open acquires the device and flushes the input buffer so stale bytes from
// a previous session cannot leak into the first read. An already open port
// is closed and reopened.
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		_ = p.port.Close()
		p.opened = false
	}
	mode := &bugst.Mode{
		BaudRate: p.baudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := bugst.Open(p.name, mode)
	if err != nil {
		var portErr *bugst.PortError
		if errors.As(err, &portErr) && portErr.Code() == bugst.InvalidSpeed {
			return fmt.Errorf("%w : %v", ErrUnsupportedBaudRate, err)
		}
		return fmt.Errorf("%w : %v", ErrPortUnavailable, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w : %v", ErrPortUnavailable, err)
	}
	p.port = port
	p.opened = true
	return nil
}

func (p *Port) SetBaudRate(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate <= 0 {
		return fmt.Errorf("%w : %d", ErrUnsupportedBaudRate, rate)
	}
	p.baudRate = rate
	if !p.opened {
		// Applied on next Open
		return nil
	}
	mode := &bugst.Mode{
		BaudRate: rate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("%w : %v", ErrUnsupportedBaudRate, err)
	}
	return nil
}

// Read returns the bytes that arrived within timeout, which may be fewer
// than len(p). The mutex is not held while blocked so Close can abort a
// pending read.
func (p *Port) Read(buffer []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	port, opened := p.port, p.opened
	p.mu.Unlock()
	if !opened {
		return 0, ErrChannelClosed
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return 0, fmt.Errorf("set read timeout : %w", err)
	}
	n, err := port.Read(buffer)
	if err != nil {
		if isClosedErr(err) {
			return n, ErrChannelClosed
		}
		return n, fmt.Errorf("read %v : %w", p.name, err)
	}
	return n, nil
}

func (p *Port) Write(buffer []byte) (int, error) {
	p.mu.Lock()
	port, opened := p.port, p.opened
	p.mu.Unlock()
	if !opened {
		return 0, ErrChannelClosed
	}
	written := 0
	stalled := false
	for written < len(buffer) {
		n, err := port.Write(buffer[written:])
		written += n
		if err != nil {
			if isClosedErr(err) {
				return written, ErrChannelClosed
			}
			return written, fmt.Errorf("%w : %v", ErrWriteFailure, err)
		}
		if n == 0 {
			// One retry for a stalled driver, then give up
			if stalled {
				return written, ErrWriteFailure
			}
			stalled = true
		} else {
			stalled = false
		}
	}
	return written, nil
}

func (p *Port) Flush() error {
	p.mu.Lock()
	port, opened := p.port, p.opened
	p.mu.Unlock()
	if !opened {
		return ErrChannelClosed
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("drain %v : %w", p.name, err)
	}
	return port.ResetInputBuffer()
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opened {
		return nil
	}
	p.opened = false
	return p.port.Close()
}

func isClosedErr(err error) bool {
	var portErr *bugst.PortError
	return errors.As(err, &portErr) && portErr.Code() == bugst.PortClosed
}
