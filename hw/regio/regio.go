// Package regio provides access to device registers and shared memory.
package regio

import (
	"errors"
	"io"

	"github.com/usnistgov/udpcore/core/bitfield"
	"github.com/usnistgov/udpcore/core/logging"
)

var logger = logging.New("RegIO")

// ErrTimeout indicates a bounded wait has expired.
var ErrTimeout = errors.New("timeout")

// Bus reads and writes 32-bit registers at byte offsets.
// Implementations must be safe for concurrent use; read-modify-write sequences are not atomic
// and must be serialized by the caller.
type Bus interface {
	Read32(offset uint32) uint32
	Write32(offset, value uint32)
}

// Memory is the shared memory region holding ring slots.
type Memory interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Pulse drives a single bit of a register through 0, 1, 0, preserving all other bits.
// The device acts on the rising edge.
func Pulse(bus Bus, offset uint32, bit uint) {
	word := bus.Read32(offset)
	bus.Write32(offset, bitfield.ReplaceBits(word, 0, bit, 1))
	bus.Write32(offset, bitfield.ReplaceBits(word, 1, bit, 1))
	bus.Write32(offset, bitfield.ReplaceBits(word, 0, bit, 1))
}

// Update sets a field of a register, preserving all other bits.
func Update(bus Bus, offset uint32, value uint32, bit, width uint) {
	word := bus.Read32(offset)
	bus.Write32(offset, bitfield.ReplaceBits(word, value, bit, width))
}
