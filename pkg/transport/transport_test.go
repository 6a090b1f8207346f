package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/can"
	"github.com/ZeroShotData/DynamixelSDKwithCAN/pkg/serial"
)

// mockChannel records write call boundaries and serves a canned receive
// stream, standing in for the converter link
type mockChannel struct {
	mu      sync.Mutex
	rx      []byte
	writes  [][]byte
	openErr error
	baudErr error
	closed  bool
}

func (m *mockChannel) Open() error {
	if m.openErr != nil {
		return m.openErr
	}
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
	return nil
}

func (m *mockChannel) SetBaudRate(rate int) error {
	return m.baudErr
}

func (m *mockChannel) Read(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, serial.ErrChannelClosed
		}
		if len(m.rx) > 0 {
			n := copy(p, m.rx)
			m.rx = m.rx[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()
		if time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *mockChannel) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, serial.ErrChannelClosed
	}
	recorded := make([]byte, len(p))
	copy(recorded, p)
	m.writes = append(m.writes, recorded)
	return len(p), nil
}

func (m *mockChannel) Flush() error { return nil }

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockChannel) recorded() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	writes := make([][]byte, len(m.writes))
	copy(writes, m.writes)
	return writes
}

func newTestTransport(t *testing.T, mock *mockChannel) *Transport {
	tr, err := NewWithChannel(Config{CanID: DefaultCanID, Timeout: 50 * time.Millisecond}, mock)
	require.Nil(t, err)
	require.Nil(t, tr.Open())
	return tr
}

func TestInvalidIdentifierAtConstruction(t *testing.T) {
	_, err := New(Config{CanID: 0x800})
	assert.ErrorIs(t, err, can.ErrInvalidIdentifier)

	_, err = New(Config{CanID: 0x20000000, ExtendedID: true})
	assert.ErrorIs(t, err, can.ErrInvalidIdentifier)
}

func TestOpenPortUnavailable(t *testing.T) {
	mock := &mockChannel{openErr: serial.ErrPortUnavailable}
	tr, err := NewWithChannel(Config{CanID: DefaultCanID}, mock)
	require.Nil(t, err)
	assert.ErrorIs(t, tr.Open(), serial.ErrPortUnavailable)
}

func TestWriteAccounting(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	buffer := make([]byte, 20)
	for i := range buffer {
		buffer[i] = byte(i)
	}
	n, err := tr.Write(buffer)
	assert.Nil(t, err)
	assert.Equal(t, 20, n)

	// 20 bytes cross the wire as 8 + 8 + 4
	writes := mock.recorded()
	require.Len(t, writes, 3)
	assert.Len(t, writes[0], 8)
	assert.Len(t, writes[1], 8)
	assert.Len(t, writes[2], 4)
	assert.Equal(t, buffer, can.Reassemble(writes))
}

func TestWriteEmpty(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	n, err := tr.Write(nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, mock.recorded())
}

func TestReadTimeoutBound(t *testing.T) {
	mock := &mockChannel{rx: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	start := time.Now()
	data, err := tr.Read(100, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Nil(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, data)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestReadReturnsEarlyWhenSatisfied(t *testing.T) {
	mock := &mockChannel{rx: []byte{1, 2, 3, 4}}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	start := time.Now()
	data, err := tr.Read(4, time.Second)
	assert.Nil(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestReadZeroCount(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	data, err := tr.Read(0, time.Second)
	assert.Nil(t, err)
	assert.Empty(t, data)
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	bufferA := make([]byte, 24)
	bufferB := make([]byte, 24)
	for i := range bufferA {
		bufferA[i] = byte(i)
		bufferB[i] = 0x80 | byte(i)
	}

	var wg sync.WaitGroup
	for _, buffer := range [][]byte{bufferA, bufferB} {
		wg.Add(1)
		go func(buffer []byte) {
			defer wg.Done()
			n, err := tr.Write(buffer)
			assert.Nil(t, err)
			assert.Equal(t, len(buffer), n)
		}(buffer)
	}
	wg.Wait()

	// Each Write spans 3 chunks, the two operations must not interleave
	// at the byte level in the recorded stream
	writes := mock.recorded()
	require.Len(t, writes, 6)
	first := can.Reassemble(writes[:3])
	second := can.Reassemble(writes[3:])
	if first[0]&0x80 == 0 {
		assert.Equal(t, bufferA, first)
		assert.Equal(t, bufferB, second)
	} else {
		assert.Equal(t, bufferB, first)
		assert.Equal(t, bufferA, second)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)

	require.Nil(t, tr.Close())

	_, err := tr.Write([]byte{1})
	assert.ErrorIs(t, err, serial.ErrChannelClosed)
	_, err = tr.Read(1, 10*time.Millisecond)
	assert.ErrorIs(t, err, serial.ErrChannelClosed)
	assert.ErrorIs(t, tr.SetBaudRate(115200), serial.ErrChannelClosed)
	assert.ErrorIs(t, tr.Flush(), serial.ErrChannelClosed)

	// Closing twice is not an error
	assert.Nil(t, tr.Close())
}

func TestCloseAbortsBlockedRead(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := tr.Read(100, time.Second)
		done <- result{data, err}
	}()

	time.Sleep(20 * time.Millisecond)
	require.Nil(t, tr.Close())

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, serial.ErrChannelClosed)
		assert.Empty(t, res.data)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("read did not abort on close")
	}
}

func TestSetBaudRate(t *testing.T) {
	mock := &mockChannel{}
	tr := newTestTransport(t, mock)
	defer tr.Close()

	require.Nil(t, tr.SetBaudRate(DefaultBaudRate))
	assert.Equal(t, 10*time.Microsecond, tr.TxTimePerByte())

	mock.baudErr = serial.ErrUnsupportedBaudRate
	assert.ErrorIs(t, tr.SetBaudRate(300), serial.ErrUnsupportedBaudRate)
	// Rate is unchanged after a rejected request
	assert.Equal(t, 10*time.Microsecond, tr.TxTimePerByte())
}

func TestDebugTracingDoesNotChangeResults(t *testing.T) {
	mock := &mockChannel{rx: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}
	tr, err := NewWithChannel(Config{CanID: DefaultCanID, Debug: true, Timeout: 50 * time.Millisecond}, mock)
	require.Nil(t, err)
	require.Nil(t, tr.Open())
	defer tr.Close()

	n, err := tr.Write(make([]byte, 17))
	assert.Nil(t, err)
	assert.Equal(t, 17, n)

	data, err := tr.Read(10, 100*time.Millisecond)
	assert.Nil(t, err)
	assert.Len(t, data, 10)
}
