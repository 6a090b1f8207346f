// Package virtual provides a TCP backed serial channel primarily used for
// testing and bench setups without converter hardware. The remote endpoint
// stands in for the converter pair and the device bus.
package virtual

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/serial"
)

func init() {
	serial.RegisterBackend("virtual", NewChannel)
}

type Channel struct {
	mu      sync.Mutex
	address string
	conn    net.Conn
	opened  bool
}

// NewChannel creates a virtual channel, portName is the TCP address of the
// remote endpoint e.g. localhost:18888. The baud rate is ignored, there is
// no physical line.
func NewChannel(portName string, baudRate int) (serial.Channel, error) {
	return &Channel{address: portName}, nil
}

func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		_ = c.conn.Close()
		c.opened = false
	}
	conn, err := net.Dial("tcp", c.address)
	if err != nil {
		return fmt.Errorf("%w : %v", serial.ErrPortUnavailable, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	c.conn = conn
	c.opened = true
	return nil
}

// SetBaudRate is accepted and ignored
func (c *Channel) SetBaudRate(rate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return serial.ErrChannelClosed
	}
	if rate <= 0 {
		return fmt.Errorf("%w : %d", serial.ErrUnsupportedBaudRate, rate)
	}
	return nil
}

func (c *Channel) Read(buffer []byte, timeout time.Duration) (int, error) {
	c.mu.Lock()
	conn, opened := c.conn, c.opened
	c.mu.Unlock()
	if !opened {
		return 0, serial.ErrChannelClosed
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buffer)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		// Timeout is a short read, not a failure
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("%w : %v", serial.ErrChannelClosed, err)
	}
	return n, nil
}

func (c *Channel) Write(buffer []byte) (int, error) {
	c.mu.Lock()
	conn, opened := c.conn, c.opened
	c.mu.Unlock()
	if !opened {
		return 0, serial.ErrChannelClosed
	}
	_ = conn.SetWriteDeadline(time.Now().Add(100 * time.Millisecond))
	written := 0
	for written < len(buffer) {
		n, err := conn.Write(buffer[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("%w : %v", serial.ErrWriteFailure, err)
		}
	}
	return written, nil
}

func (c *Channel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return serial.ErrChannelClosed
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	return c.conn.Close()
}
