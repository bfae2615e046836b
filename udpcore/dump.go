package udpcore

import (
	"fmt"

	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
)

// RegisterValue is a register read.
type RegisterValue struct {
	Offset uint32 `json:"offset" yaml:"offset"`
	Name   string `json:"name" yaml:"name"`
	Value  uint32 `json:"value" yaml:"value"`

	// Descriptor is the decoded value of an RX descriptor.
	Descriptor *regs.Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

func (rv RegisterValue) String() string {
	s := fmt.Sprintf("%04X %-14s %08X", rv.Offset, rv.Name, rv.Value)
	if rv.Descriptor != nil {
		s += " " + rv.Descriptor.String()
	}
	return s
}

// DumpRegisters reads control registers, active configuration, and the RX descriptors of the
// configured port range.
func (drv *Driver) DumpRegisters() (list []RegisterValue) {
	return Dump(drv.bus, drv.cfg.Geometry, drv.cfg.Core.NumPorts())
}

// Dump reads registers from a bus without a Driver.
func Dump(bus regio.Bus, geom regs.Geometry, numRx int) (list []RegisterValue) {
	read := func(off uint32) RegisterValue {
		return RegisterValue{Offset: off, Name: regs.Name(off), Value: bus.Read32(off)}
	}
	for _, off := range regs.ControlRegisters {
		list = append(list, read(off))
	}
	for _, off := range regs.ConfigRegisters {
		list = append(list, read(regs.Active(off)))
	}
	layout := geom.Layout()
	for ch := 0; ch < numRx; ch++ {
		rv := read(regs.RxDescriptor(ch))
		d := layout.Decode(rv.Value)
		rv.Descriptor = &d
		list = append(list, rv)
	}
	return list
}
