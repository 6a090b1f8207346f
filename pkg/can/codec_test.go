package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuffer(size int) []byte {
	buffer := make([]byte, size)
	for i := range buffer {
		buffer[i] = byte(i)
	}
	return buffer
}

func TestSegmentReassembleRoundTrip(t *testing.T) {
	id, _ := NewIdentifier(0x60, false)
	for size := 0; size <= 2048; size++ {
		buffer := testBuffer(size)
		chunks := Segment(id, buffer)
		payloads := make([][]byte, 0, len(chunks))
		for _, chunk := range chunks {
			payloads = append(payloads, chunk.Data)
		}
		require.Equal(t, buffer, Reassemble(payloads), "size %v", size)
	}
}

func TestSegmentShape(t *testing.T) {
	id, _ := NewIdentifier(0x60, false)
	for _, size := range []int{1, 7, 8, 9, 16, 17, 255, 256, 2048} {
		chunks := Segment(id, testBuffer(size))
		wantChunks := (size + MaxDataSize - 1) / MaxDataSize
		require.Len(t, chunks, wantChunks, "size %v", size)
		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.Seq)
			assert.Equal(t, id, chunk.ID)
			if i < len(chunks)-1 {
				assert.Len(t, chunk.Data, MaxDataSize)
			} else {
				assert.LessOrEqual(t, len(chunk.Data), MaxDataSize)
				assert.NotEmpty(t, chunk.Data)
			}
		}
		if size%MaxDataSize == 0 {
			assert.Len(t, chunks[len(chunks)-1].Data, MaxDataSize)
		}
	}
}

func TestSegmentEmpty(t *testing.T) {
	id, _ := NewIdentifier(0x60, false)
	assert.Empty(t, Segment(id, nil))
	assert.Empty(t, Segment(id, []byte{}))
}

func TestReassembleEmpty(t *testing.T) {
	assert.Empty(t, Reassemble(nil))
	assert.Empty(t, Reassemble([][]byte{}))
}

func TestReassembleKeepsArrivalOrder(t *testing.T) {
	payloads := [][]byte{{1, 2, 3}, {}, {4}, {5, 6}}
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, Reassemble(payloads))
}
