package regs

import (
	"errors"
	"fmt"

	binutils "github.com/jfoster/binary-utilities"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
)

// Hardware defaults.
const (
	DefaultNumRx      = 1024
	DefaultRingLength = 32
	DefaultSlotSize   = 2048

	// MinSlotSize is the smallest slot that fits a record header and a minimal payload.
	MinSlotSize = 64
)

// Geometry describes shared memory partitioning.
//
// Shared memory holds NumRx receive rings followed by one transmit ring. Every ring has
// RingLength slots of SlotSize octets each.
type Geometry struct {
	NumRx      int `json:"numRx,omitempty"`
	RingLength int `json:"ringLength,omitempty"`
	SlotSize   int `json:"slotSize,omitempty"`
}

// ApplyDefaults fills zero fields with hardware defaults.
func (g *Geometry) ApplyDefaults() {
	if g.NumRx <= 0 {
		g.NumRx = DefaultNumRx
	}
	if g.RingLength <= 0 {
		g.RingLength = DefaultRingLength
	}
	if g.SlotSize <= 0 {
		g.SlotSize = DefaultSlotSize
	}
}

// Validate checks geometry values.
func (g Geometry) Validate() error {
	if g.NumRx <= 0 || g.RingLength <= 0 {
		return errors.New("NumRx and RingLength must be positive")
	}
	if g.SlotSize < MinSlotSize || binutils.NextPowerOfTwo(int64(g.SlotSize)) != int64(g.SlotSize) {
		return fmt.Errorf("SlotSize %d must be a power of two no less than %d", g.SlotSize, MinSlotSize)
	}
	if l := g.Layout(); l.OpenSocketBit() >= 32 {
		return fmt.Errorf("RingLength %d does not fit in a descriptor word", g.RingLength)
	}
	return nil
}

// Layout returns the descriptor layout for this geometry.
func (g Geometry) Layout() Layout {
	return Layout{IndexWidth: uint(ringbuffer.IndexWidth(g.RingLength))}
}

// RingSize returns octets occupied by one ring.
func (g Geometry) RingSize() uint64 {
	return uint64(g.RingLength) * uint64(g.SlotSize)
}

// TotalSize returns octets of shared memory needed for all rings.
func (g Geometry) TotalSize() uint64 {
	return uint64(g.NumRx+1) * g.RingSize()
}

// RxSlot returns shared memory offset of slot idx in RX channel ch.
func (g Geometry) RxSlot(ch, idx int) uint64 {
	return ringbuffer.SlotOffset(0, ch, g.RingSize(), idx, uint64(g.SlotSize))
}

// TxSlot returns shared memory offset of slot idx in the TX ring.
func (g Geometry) TxSlot(idx int) uint64 {
	return ringbuffer.SlotOffset(0, g.NumRx, g.RingSize(), idx, uint64(g.SlotSize))
}
