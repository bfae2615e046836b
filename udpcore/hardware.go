package udpcore

import (
	"io"

	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/regio"
)

// Hardware contains device handles.
type Hardware struct {
	Bus    regio.Bus
	Memory regio.Memory

	// Interrupts connects an interrupt source to line.
	// If nil, the Driver polls.
	Interrupts func(ctrl *irq.Controller, line *irq.Line) (io.Closer, error)

	// Closer, if not nil, is closed when the Driver closes.
	Closer io.Closer
}

// DevMemHardware maps the core through /dev/mem.
// If irqPath is not empty, interrupts are read from that character device.
func DevMemHardware(cfg regio.DevMemConfig, irqPath string) (hw Hardware, e error) {
	dm, e := regio.OpenDevMem(cfg)
	if e != nil {
		return hw, e
	}
	hw = Hardware{
		Bus:    dm.Registers(),
		Memory: dm.Memory(),
		Closer: dm,
	}
	if irqPath != "" {
		hw.Interrupts = func(ctrl *irq.Controller, line *irq.Line) (io.Closer, error) {
			return irq.OpenDevIRQ(irqPath, line, ctrl)
		}
	}
	return hw, nil
}

// SimHardware connects to a simulated core.
func SimHardware(dev *hwsim.Device) Hardware {
	return Hardware{
		Bus:    dev,
		Memory: dev.Memory(),
		Interrupts: func(ctrl *irq.Controller, line *irq.Line) (io.Closer, error) {
			dev.AttachLine(line)
			return detachLine{dev}, nil
		},
	}
}

type detachLine struct {
	dev *hwsim.Device
}

func (d detachLine) Close() error {
	d.dev.AttachLine(nil)
	return nil
}
