// Package fifo implements the circular byte buffer used by the transport
// read loop to accumulate reassembled data.
package fifo

// Circular byte Fifo, one slot is kept free to distinguish full from empty
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

// NewFifo creates a fifo able to hold size bytes
func NewFifo(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size+1)}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

func (f *Fifo) GetSpace() int {
	space := f.readPos - f.writePos - 1
	if space < 0 {
		space += len(f.buffer)
	}
	return space
}

func (f *Fifo) GetOccupied() int {
	occupied := f.writePos - f.readPos
	if occupied < 0 {
		occupied += len(f.buffer)
	}
	return occupied
}

// Write appends bytes to the fifo and returns how many fit
func (f *Fifo) Write(buffer []byte) int {
	writeCounter := 0
	for _, element := range buffer {
		writePosNext := f.writePos + 1
		if writePosNext == len(f.buffer) {
			writePosNext = 0
		}
		if writePosNext == f.readPos {
			break
		}
		f.buffer[f.writePos] = element
		f.writePos = writePosNext
		writeCounter++
	}
	return writeCounter
}

// Read pops bytes from the fifo into buffer and returns how many were read
func (f *Fifo) Read(buffer []byte) int {
	readCounter := 0
	for index := range buffer {
		if f.readPos == f.writePos {
			break
		}
		buffer[index] = f.buffer[f.readPos]
		readCounter++
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
	return readCounter
}
