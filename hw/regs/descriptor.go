package regs

import (
	"errors"
	"fmt"

	"github.com/usnistgov/udpcore/core/bitfield"
)

// ErrDescriptorInconsistent indicates a descriptor that cannot describe any ring state.
// It is fatal for the affected channel.
var ErrDescriptorInconsistent = errors.New("descriptor inconsistent")

// Descriptor bit positions that do not depend on index width.
const (
	BitPopped uint = 0
	BitPushed uint = 1
	BitFull   uint = 2
	BitEmpty  uint = 3
)

// Layout locates descriptor fields for a given index width.
type Layout struct {
	IndexWidth uint
}

// DefaultLayout is the layout of a core with 32-slot rings.
var DefaultLayout = Layout{IndexWidth: 5}

// TailField returns offset and width of tail index.
func (l Layout) TailField() (offset, width uint) {
	return 4, l.IndexWidth
}

// HeadField returns offset and width of head index.
func (l Layout) HeadField() (offset, width uint) {
	return 4 + l.IndexWidth, l.IndexWidth
}

// OpenSocketBit returns the bit position of the open-socket flag.
func (l Layout) OpenSocketBit() uint {
	return 4 + 2*l.IndexWidth
}

// Descriptor is a decoded channel descriptor word.
type Descriptor struct {
	Popped     bool `json:"popped"`
	Pushed     bool `json:"pushed"`
	Full       bool `json:"full"`
	Empty      bool `json:"empty"`
	Tail       int  `json:"tail"`
	Head       int  `json:"head"`
	OpenSocket bool `json:"openSocket"`
}

func (d Descriptor) String() string {
	flags := ""
	for _, f := range []struct {
		set bool
		ch  byte
	}{{d.Popped, 'P'}, {d.Pushed, 'U'}, {d.Full, 'F'}, {d.Empty, 'E'}, {d.OpenSocket, 'O'}} {
		if f.set {
			flags += string(f.ch)
		} else {
			flags += "-"
		}
	}
	return fmt.Sprintf("%s head=%d tail=%d", flags, d.Head, d.Tail)
}

// Occupancy returns the number of stored packets implied by the descriptor in a ring of length l.
func (d Descriptor) Occupancy(l int) int {
	if d.Full {
		return l
	}
	return ((d.Head-d.Tail)%l + l) % l
}

// Validate checks the descriptor against a ring of length l.
func (d Descriptor) Validate(l int) error {
	switch {
	case d.Full && d.Empty:
		return fmt.Errorf("%w: full and empty both set", ErrDescriptorInconsistent)
	case d.Head < 0 || d.Head >= l, d.Tail < 0 || d.Tail >= l:
		return fmt.Errorf("%w: index out of range head=%d tail=%d length=%d", ErrDescriptorInconsistent, d.Head, d.Tail, l)
	case d.Head == d.Tail && !d.Full && !d.Empty:
		return fmt.Errorf("%w: head equals tail without full or empty", ErrDescriptorInconsistent)
	case d.Head != d.Tail && (d.Full || d.Empty):
		return fmt.Errorf("%w: head differs from tail with full or empty set", ErrDescriptorInconsistent)
	}
	return nil
}

// Decode unpacks a descriptor word.
func (l Layout) Decode(word uint32) (d Descriptor) {
	d.Popped = bitfield.Bit(word, BitPopped)
	d.Pushed = bitfield.Bit(word, BitPushed)
	d.Full = bitfield.Bit(word, BitFull)
	d.Empty = bitfield.Bit(word, BitEmpty)
	tOff, tWidth := l.TailField()
	d.Tail = int(bitfield.Decode(word, tOff, tWidth))
	hOff, hWidth := l.HeadField()
	d.Head = int(bitfield.Decode(word, hOff, hWidth))
	d.OpenSocket = bitfield.Bit(word, l.OpenSocketBit())
	return d
}

// Encode packs a descriptor into a word with reserved bits cleared.
func (l Layout) Encode(d Descriptor) uint32 {
	tOff, tWidth := l.TailField()
	hOff, hWidth := l.HeadField()
	return bitfield.Encode(
		bitfield.Field{Offset: BitPopped, Width: 1, Value: b2u(d.Popped)},
		bitfield.Field{Offset: BitPushed, Width: 1, Value: b2u(d.Pushed)},
		bitfield.Field{Offset: BitFull, Width: 1, Value: b2u(d.Full)},
		bitfield.Field{Offset: BitEmpty, Width: 1, Value: b2u(d.Empty)},
		bitfield.Field{Offset: tOff, Width: tWidth, Value: uint32(d.Tail)},
		bitfield.Field{Offset: hOff, Width: hWidth, Value: uint32(d.Head)},
		bitfield.Field{Offset: l.OpenSocketBit(), Width: 1, Value: b2u(d.OpenSocket)},
	)
}

// SetBit changes a single bit, preserving every other bit of word.
func SetBit(word uint32, bit uint, v bool) uint32 {
	return bitfield.ReplaceBits(word, b2u(v), bit, 1)
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
