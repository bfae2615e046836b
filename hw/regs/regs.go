// Package regs describes the register map of the offload core.
//
// Registers are 32 bits wide and laid out with an 8-byte stride; the upper half of each
// stride is unused.
package regs

import (
	"fmt"
)

// Stride is the distance between consecutive registers.
const Stride = 8

// Register offsets.
const (
	APCtrl     uint32 = 0x00
	Reset      uint32 = 0x08 // also the apply pulse for pending configuration
	MACLo      uint32 = 0x10
	MACHi      uint32 = 0x18
	Gateway    uint32 = 0x20
	SubnetMask uint32 = 0x28
	LocalIP    uint32 = 0x30
	PortLow    uint32 = 0x38
	PortHigh   uint32 = 0x40
	SharedMem  uint32 = 0x48

	ISR uint32 = 0x50
	IER uint32 = 0x58
	GIE uint32 = 0x60

	TxHead   uint32 = 0x68
	TxTail   uint32 = 0x70
	TxEmpty  uint32 = 0x78
	TxFull   uint32 = 0x80
	TxPushed uint32 = 0x88
	TxPopped uint32 = 0x90

	RxPushIRQ uint32 = 0x98
	RxBase    uint32 = 0xA0

	// ActiveBase is where the core mirrors its active configuration.
	// The active copy of a configuration register lives at ActiveBase+offset.
	ActiveBase uint32 = 0x2100
)

// ConfigRegisters lists shadow configuration registers in the order they are written.
var ConfigRegisters = []uint32{MACLo, MACHi, Gateway, SubnetMask, LocalIP, SharedMem, PortLow, PortHigh}

// ControlRegisters lists the fixed registers from APCtrl to RxPushIRQ.
var ControlRegisters = func() (list []uint32) {
	for off := APCtrl; off <= RxPushIRQ; off += Stride {
		list = append(list, off)
	}
	return list
}()

// RxDescriptor returns the offset of the descriptor register of RX channel ch.
func RxDescriptor(ch int) uint32 {
	return RxBase + uint32(ch)*Stride
}

// RxChannelOf returns the RX channel number of a descriptor offset.
func RxChannelOf(offset uint32) (ch int, ok bool) {
	if offset < RxBase || (offset-RxBase)%Stride != 0 {
		return 0, false
	}
	return int((offset - RxBase) / Stride), true
}

// Active returns the readback offset of the active copy of a configuration register.
func Active(offset uint32) uint32 {
	return ActiveBase + offset
}

var names = map[uint32]string{
	APCtrl:     "AP_CTRL",
	Reset:      "RES",
	MACLo:      "MAC_0",
	MACHi:      "MAC_1",
	Gateway:    "GW",
	SubnetMask: "SNM",
	LocalIP:    "IP_LOC",
	PortLow:    "UDP_RANGE_L",
	PortHigh:   "UDP_RANGE_H",
	SharedMem:  "SHMEM",
	ISR:        "ISR",
	IER:        "IER",
	GIE:        "GIE",
	TxHead:     "BUFTX_HEAD",
	TxTail:     "BUFTX_TAIL",
	TxEmpty:    "BUFTX_EMPTY",
	TxFull:     "BUFTX_FULL",
	TxPushed:   "BUFTX_PUSHED",
	TxPopped:   "BUFTX_POPPED",
	RxPushIRQ:  "BUFRX_PUSH_IRQ",
}

// Name returns a human readable register name.
func Name(offset uint32) string {
	if name, ok := names[offset]; ok {
		return name
	}
	if ch, ok := RxChannelOf(offset); ok && offset < ActiveBase {
		return fmt.Sprintf("BUFRX_%d", ch)
	}
	if offset >= ActiveBase {
		if name, ok := names[offset-ActiveBase]; ok {
			return name + "_ACTIVE"
		}
	}
	return fmt.Sprintf("REG_%04X", offset)
}
