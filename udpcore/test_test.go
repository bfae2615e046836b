package udpcore_test

import (
	"net"
	"testing"

	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore"
	"inet.af/netaddr"
)

var makeAR = testenv.MakeAR

var (
	localMAC, _ = net.ParseMAC("02:00:00:00:00:80")
	peerMAC, _  = net.ParseMAC("02:00:00:00:00:01")
	localIP     = netaddr.MustParseIP("192.168.1.128")
	peerIP      = netaddr.MustParseIP("192.168.1.2")
	geometry    = regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256}
)

func newDevice(t testing.TB) *hwsim.Device {
	dev, e := hwsim.New(hwsim.Config{Geometry: geometry, AutoTransmit: true})
	if e != nil {
		t.Fatal(e)
	}
	return dev
}

func makeConfig() (cfg udpcore.Config) {
	cfg.Geometry = geometry
	cfg.Core.MAC = macaddr.Flag{HardwareAddr: localMAC}
	cfg.Core.LocalIP = localIP
	cfg.Core.PortLow, cfg.Core.PortHigh = 7400, 7403
	cfg.ApplyTimeout = 1000
	return cfg
}

func openDriver(t testing.TB, dev *hwsim.Device, cfg udpcore.Config) *udpcore.Driver {
	drv, e := udpcore.Open(udpcore.SimHardware(dev), cfg)
	if e != nil {
		t.Fatal(e)
	}
	t.Cleanup(func() { drv.Close() })
	return drv
}
