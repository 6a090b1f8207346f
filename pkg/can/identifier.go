package can

import (
	"errors"
	"fmt"
)

const (
	// Valid range masks for the two identifier widths
	StandardIdMask uint32 = 0x000007FF
	ExtendedIdMask uint32 = 0x1FFFFFFF
	// Bit set on the encoded form of an extended (29 bit) identifier
	ExtendedIdFlag uint32 = 0x80000000
)

var ErrInvalidIdentifier = errors.New("identifier out of range for declared frame type")

// A CAN arbitration identifier, either standard (11 bit) or extended (29 bit)
// Immutable once created
type Identifier struct {
	value    uint32
	extended bool
}

// Create a new Identifier, enforcing the numeric range of the declared frame type
func NewIdentifier(value uint32, extended bool) (Identifier, error) {
	if !extended && value > StandardIdMask {
		return Identifier{}, fmt.Errorf("%w : standard id %#x exceeds %#x", ErrInvalidIdentifier, value, StandardIdMask)
	}
	if extended && value > ExtendedIdMask {
		return Identifier{}, fmt.Errorf("%w : extended id %#x exceeds %#x", ErrInvalidIdentifier, value, ExtendedIdMask)
	}
	return Identifier{value: value, extended: extended}, nil
}

func (id Identifier) Value() uint32 {
	return id.value
}

func (id Identifier) Extended() bool {
	return id.extended
}

// Encoded returns the identifier with the extended frame format bit set,
// which is how the converter and socketcan represent a 29 bit id
func (id Identifier) Encoded() uint32 {
	if id.extended {
		return id.value | ExtendedIdFlag
	}
	return id.value
}

func (id Identifier) String() string {
	if id.extended {
		return fmt.Sprintf("0x%08X (extended)", id.value)
	}
	return fmt.Sprintf("0x%03X (standard)", id.value)
}
