package rxchan_test

import (
	"sync/atomic"
	"testing"

	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore/coreconfig"
	"github.com/usnistgov/udpcore/udpcore/rxchan"
	"inet.af/netaddr"
)

var makeAR = testenv.MakeAR

var (
	localIP = netaddr.MustParseIP("192.168.1.128")
	peerIP  = netaddr.MustParseIP("192.168.1.2")
)

// countingBus counts register reads.
type countingBus struct {
	regio.Bus
	reads int64
}

func (b *countingBus) Read32(offset uint32) uint32 {
	atomic.AddInt64(&b.reads, 1)
	return b.Bus.Read32(offset)
}

func (b *countingBus) Reads() int64 {
	return atomic.LoadInt64(&b.reads)
}

type fixture struct {
	dev  *hwsim.Device
	bus  *countingBus
	ctrl *irq.Controller
	line *irq.Line
	m    *rxchan.Manager
}

func newFixture(t testing.TB, withIRQ bool, cfg rxchan.Config) (f *fixture) {
	f = &fixture{}
	var e error
	if f.dev, e = hwsim.New(hwsim.Config{Geometry: regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256}}); e != nil {
		t.Fatal(e)
	}

	var c coreconfig.Config
	c.ApplyDefaults()
	c.PortLow, c.PortHigh = 7400, 7403
	if e = coreconfig.NewApplier(f.dev, nil, 4).Apply(c); e != nil {
		t.Fatal(e)
	}

	f.bus = &countingBus{Bus: f.dev}
	f.ctrl = irq.NewController(f.bus, nil)
	hw := rxchan.Hardware{
		Bus:      f.bus,
		Memory:   f.dev.Memory(),
		Geometry: f.dev.Geometry(),
		IRQ:      f.ctrl,
	}
	if withIRQ {
		f.line = irq.NewLine()
		f.dev.AttachLine(f.line)
		hw.Line = f.line
		f.ctrl.Enable(irq.MaskRxPush)
	}
	if f.m, e = rxchan.New(hw, 7400, 4, cfg); e != nil {
		t.Fatal(e)
	}
	return f
}
