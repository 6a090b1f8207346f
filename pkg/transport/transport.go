// Package transport carries the Dynamixel byte stream across a CAN bus
// segment through a pair of serial-CAN converters in transparent mode.
// To the packet handler above it behaves exactly like a direct serial port.
package transport

import (
	"sync"
	"time"

	"github.com/ZeroShotData/DynamixelSDKwithCAN/internal/fifo"
	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/can"
	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/serial"
	log "github.com/sirupsen/logrus"
)

type Transport struct {
	// Serializes Write/Read, exactly one operation may be in flight.
	// Interleaved partial transfers would corrupt the byte stream, the
	// wire carries no sequence numbers to recover from that.
	opMu sync.Mutex
	// Guards open state, taken by Close without waiting on a pending
	// operation so that closing aborts a blocked read
	mu sync.Mutex

	config   Config
	id       can.Identifier
	channel  serial.Channel
	opened   bool
	baudRate int
	// Time needed to clock one byte out at the current baud rate (8N1)
	txTimePerByte time.Duration
}

// New validates the configured identifier and prepares a transport using
// the backend named in config. Open must be called before any read or write.
func New(config Config) (*Transport, error) {
	id, err := can.NewIdentifier(config.CanID, config.ExtendedID)
	if err != nil {
		return nil, err
	}
	if config.Backend == "" {
		config.Backend = "serial"
	}
	if config.SerialBaudRate <= 0 {
		config.SerialBaudRate = DefaultBaudRate
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Transport{config: config, id: id, baudRate: config.SerialBaudRate}, nil
}

// NewWithChannel prepares a transport on an already constructed channel.
// Useful for custom backends and for testing with a mock channel.
func NewWithChannel(config Config, channel serial.Channel) (*Transport, error) {
	transport, err := New(config)
	if err != nil {
		return nil, err
	}
	transport.channel = channel
	return transport, nil
}

// Identifier returns the validated CAN identifier owned by this transport
func (t *Transport) Identifier() can.Identifier {
	return t.id
}

// Open acquires the serial channel at the configured baud rate
func (t *Transport) Open() error {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.channel == nil {
		channel, err := serial.NewChannel(t.config.Backend, t.config.PortName, t.config.SerialBaudRate)
		if err != nil {
			return err
		}
		t.channel = channel
	}
	if err := t.channel.Open(); err != nil {
		return err
	}
	t.opened = true
	t.updateTxTime(t.baudRate)
	if t.config.Debug {
		log.WithFields(log.Fields{
			"port":     t.config.PortName,
			"baudrate": t.baudRate,
			"can_id":   t.id.String(),
			"can_baud": t.config.CANBaudRate,
		}).Debug("channel open, converter settings must match out of band configuration")
	}
	return nil
}

// SetBaudRate reconfigures the serial line rate
func (t *Transport) SetBaudRate(rate int) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opened {
		return serial.ErrChannelClosed
	}
	if err := t.channel.SetBaudRate(rate); err != nil {
		return err
	}
	t.baudRate = rate
	t.updateTxTime(rate)
	return nil
}

// Write segments buffer into logical CAN frame payloads and emits them in
// order as discrete writes. The converter forwards raw bytes in transparent
// mode, so the chunking mirrors the frames it will put on the bus.
// Returns the number of bytes accepted by the channel.
func (t *Transport) Write(buffer []byte) (int, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	if !t.isOpen() {
		return 0, serial.ErrChannelClosed
	}
	if len(buffer) == 0 {
		return 0, nil
	}
	written := 0
	for _, chunk := range can.Segment(t.id, buffer) {
		t.trace("tx", chunk)
		n, err := t.channel.Write(chunk.Data)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Read blocks until count bytes accumulated or timeout elapsed and returns
// whatever arrived, in order. A short result signals a timeout, the packet
// parser above detects it through its own framing, it is not an error here.
// timeout <= 0 falls back to the configured default. Aggregate blocking
// never exceeds the budget across internal sub reads.
func (t *Transport) Read(count int, timeout time.Duration) ([]byte, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	if !t.isOpen() {
		return nil, serial.ErrChannelClosed
	}
	if count <= 0 {
		return []byte{}, nil
	}
	if timeout <= 0 {
		timeout = t.config.Timeout
	}
	buffer := fifo.NewFifo(count)
	scratch := make([]byte, count)
	deadline := time.Now().Add(timeout)
	for buffer.GetOccupied() < count {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		n, err := t.channel.Read(scratch[:count-buffer.GetOccupied()], remaining)
		if n > 0 {
			if t.config.Debug {
				for _, chunk := range can.Segment(t.id, scratch[:n]) {
					t.trace("rx", chunk)
				}
			}
			buffer.Write(scratch[:n])
		}
		if err != nil {
			return drain(buffer), err
		}
	}
	return drain(buffer), nil
}

// Flush delegates to the channel
func (t *Transport) Flush() error {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	if !t.isOpen() {
		return serial.ErrChannelClosed
	}
	return t.channel.Flush()
}

// Close releases the serial channel. It does not wait for a pending
// operation, closing the channel underneath is what aborts a blocked read.
// Calling Close twice is not an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opened {
		return nil
	}
	t.opened = false
	return t.channel.Close()
}

// TxTimePerByte returns how long one byte occupies the serial line at the
// current baud rate, upper layers use it to size their packet timeouts
func (t *Transport) TxTimePerByte() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txTimePerByte
}

func (t *Transport) isOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

// 10 bits per byte on the wire with 8N1 framing
func (t *Transport) updateTxTime(baudRate int) {
	t.txTimePerByte = time.Duration(10 * int64(time.Second) / int64(baudRate))
}

func (t *Transport) trace(direction string, chunk can.Chunk) {
	if !t.config.Debug {
		return
	}
	log.WithFields(log.Fields{
		"id":  t.id.String(),
		"dir": direction,
		"seq": chunk.Seq,
		"len": len(chunk.Data),
	}).Debugf("% X", chunk.Data)
}

func drain(buffer *fifo.Fifo) []byte {
	out := make([]byte, buffer.GetOccupied())
	buffer.Read(out)
	return out
}
