// Package can models CAN identifiers and the segmentation of a raw byte
// stream into classic CAN frame payloads. Pure logic, no I/O.
package can

// Maximum payload size of a classic CAN frame
const MaxDataSize = 8

// A Chunk holds the payload of one logical CAN frame produced during
// segmentation. Seq is used for internal ordering checks only, the
// transparent mode converter carries no sequence numbers on the wire.
type Chunk struct {
	ID   Identifier
	Data []byte
	Seq  int
}

// Segment splits buffer into consecutive chunks of at most MaxDataSize bytes,
// preserving byte order. The last chunk may be shorter and is not padded.
// An empty buffer yields no chunks. Chunks alias the input buffer.
func Segment(id Identifier, buffer []byte) []Chunk {
	if len(buffer) == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, (len(buffer)+MaxDataSize-1)/MaxDataSize)
	seq := 0
	for offset := 0; offset < len(buffer); offset += MaxDataSize {
		end := offset + MaxDataSize
		if end > len(buffer) {
			end = len(buffer)
		}
		chunks = append(chunks, Chunk{ID: id, Data: buffer[offset:end], Seq: seq})
		seq++
	}
	return chunks
}

// Reassemble concatenates chunk payloads in arrival order. Content is not
// validated here, ordering fidelity is the responsibility of the transport
// read loop.
func Reassemble(chunks [][]byte) []byte {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	buffer := make([]byte, 0, total)
	for _, chunk := range chunks {
		buffer = append(buffer, chunk...)
	}
	return buffer
}
