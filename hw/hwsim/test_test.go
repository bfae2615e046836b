package hwsim_test

import (
	"net"
	"testing"

	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"inet.af/netaddr"
)

var makeAR = testenv.MakeAR

var (
	localMAC, _ = net.ParseMAC("02:00:00:00:00:80")
	peerMAC, _  = net.ParseMAC("02:00:00:00:00:01")
	localIP     = netaddr.MustParseIP("192.168.1.128")
	peerIP      = netaddr.MustParseIP("192.168.1.2")
)

func newDevice(t testing.TB, autoTx bool) *hwsim.Device {
	d, e := hwsim.New(hwsim.Config{
		Geometry:     regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256},
		AutoTransmit: autoTx,
	})
	if e != nil {
		t.Fatal(e)
	}
	return d
}

func writeConfig(bus regio.Bus, portLow uint32) {
	hi, lo := macaddr.ToRegisters(localMAC)
	bus.Write32(regs.MACHi, hi)
	bus.Write32(regs.MACLo, lo)
	bus.Write32(regs.LocalIP, 0xC0A80180)
	bus.Write32(regs.Gateway, 0xC0A80102)
	bus.Write32(regs.SubnetMask, 0xFFFFFF00)
	bus.Write32(regs.PortLow, portLow)
	bus.Write32(regs.PortHigh, portLow+3)
}

func configure(d *hwsim.Device) {
	writeConfig(d, 7400)
	regio.Pulse(d, regs.Reset, 0)
}
