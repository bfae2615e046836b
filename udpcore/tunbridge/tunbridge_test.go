package tunbridge_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore"
	"github.com/usnistgov/udpcore/udpcore/tunbridge"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"inet.af/netaddr"
)

var (
	localMAC, _ = net.ParseMAC("02:00:00:00:00:80")
	peerMAC, _  = net.ParseMAC("02:00:00:00:00:01")
	localIP     = netaddr.MustParseIP("192.168.1.128")
	peerIP      = netaddr.MustParseIP("192.168.1.2")
)

type fakeTun struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func newFakeTun() *fakeTun {
	return &fakeTun{
		in:     make(chan []byte, 4),
		out:    make(chan []byte, 4),
		closed: make(chan struct{}),
	}
}

func (tun *fakeTun) Read(p []byte) (int, error) {
	select {
	case pkt := <-tun.in:
		return copy(p, pkt), nil
	case <-tun.closed:
		return 0, io.EOF
	}
}

func (tun *fakeTun) Write(p []byte) (int, error) {
	tun.out <- append([]byte{}, p...)
	return len(p), nil
}

func TestBridge(t *testing.T) {
	assert, require := makeAR(t)

	dev, e := hwsim.New(hwsim.Config{
		Geometry:     regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256},
		AutoTransmit: true,
	})
	require.NoError(e)
	dev.SetARP(peerIP, peerMAC)
	frames := make(chan []byte, 4)
	dev.OnTransmit(func(frame []byte) { frames <- frame })

	var cfg udpcore.Config
	cfg.Geometry = dev.Geometry()
	cfg.Core.MAC = macaddr.Flag{HardwareAddr: localMAC}
	cfg.Core.LocalIP = localIP
	cfg.Core.PortLow, cfg.Core.PortHigh = 7400, 7403
	drv, e := udpcore.Open(udpcore.SimHardware(dev), cfg)
	require.NoError(e)
	defer drv.Close()

	tun := newFakeTun()
	b := tunbridge.New(drv, tun, tunbridge.Config{Ports: []uint16{7401, 7402}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	assert.Eventually(func() bool {
		ch, _ := drv.RX().Channel(7402)
		return ch.IsOpen()
	}, time.Second, time.Millisecond)

	outbound := record.Record{SrcIP: localIP, SrcPort: 7401, DstIP: peerIP, DstPort: 9000, Payload: []byte("out")}
	pkt, e := udpframe.ComposeIPv4(outbound)
	require.NoError(e)
	tun.in <- []byte{0x60, 0, 0, 0}
	tun.in <- pkt

	select {
	case frame := <-frames:
		parsed, e := udpframe.Parse(frame)
		require.NoError(e)
		require.NotNil(parsed.UDP)
		assert.Equal(outbound, *parsed.UDP)
	case <-time.After(2 * time.Second):
		require.FailNow("no frame transmitted")
	}

	inbound := record.Record{SrcIP: peerIP, SrcPort: 9000, DstIP: localIP, DstPort: 7402, Payload: []byte("in")}
	frame, e := udpframe.Compose(inbound, peerMAC, localMAC)
	require.NoError(e)
	require.NoError(dev.Receive(frame))

	select {
	case pkt = <-tun.out:
		rec, e := udpframe.ParseIPv4(pkt)
		require.NoError(e)
		assert.Equal(inbound, rec)
	case <-time.After(2 * time.Second):
		require.FailNow("no packet written to TUN")
	}

	assert.Eventually(func() bool {
		cnt := b.Counters()
		return cnt.ToCore == 1 && cnt.FromCore == 1 && cnt.NotUDP == 1
	}, time.Second, time.Millisecond)

	cancel()
	close(tun.closed)
	assert.NoError(<-done)
	ch, _ := drv.RX().Channel(7401)
	assert.False(ch.IsOpen())
}
