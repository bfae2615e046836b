package udpsock_test

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
)

type fixture struct {
	dev    *hwsim.Device
	drv    *udpcore.Driver
	frames chan []byte
}

func newFixture(t testing.TB, autoTransmit bool) (f *fixture) {
	f = &fixture{frames: make(chan []byte, 16)}
	var e error
	if f.dev, e = hwsim.New(hwsim.Config{
		Geometry:     regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256},
		AutoTransmit: autoTransmit,
	}); e != nil {
		t.Fatal(e)
	}
	f.dev.SetARP(peerIP, peerMAC)
	f.dev.OnTransmit(func(frame []byte) { f.frames <- frame })

	var cfg udpcore.Config
	cfg.Geometry = f.dev.Geometry()
	cfg.Core.MAC = macaddr.Flag{HardwareAddr: localMAC}
	cfg.Core.LocalIP = localIP
	cfg.Core.PortLow, cfg.Core.PortHigh = 7400, 7403
	if f.drv, e = udpcore.Open(udpcore.SimHardware(f.dev), cfg); e != nil {
		t.Fatal(e)
	}
	t.Cleanup(func() { f.drv.Close() })
	return f
}
