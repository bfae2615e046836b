package udpcore_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore"
	"github.com/usnistgov/udpcore/udpcore/coreconfig"
	"github.com/usnistgov/udpcore/udpcore/rxchan"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
)

func TestBringUp(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	cfg := makeConfig()

	// leave state behind from a previous session
	require.NoError(coreconfig.NewApplier(dev, nil, 4).Apply(cfg.Core))
	layout := geometry.Layout()
	dev.Write32(regs.RxDescriptor(1), regs.SetBit(0, layout.OpenSocketBit(), true))
	require.NoError(dev.Deliver(record.Record{SrcIP: peerIP, DstIP: localIP, DstPort: 7401, Payload: []byte("stale")}))
	assert.False(dev.RxStatus(1).Empty)

	drv := openDriver(t, dev, cfg)
	assert.True(dev.RxStatus(1).Empty)
	for ch := 0; ch < geometry.NumRx; ch++ {
		assert.False(layout.Decode(dev.Read32(regs.RxDescriptor(ch))).OpenSocket, ch)
	}
	assert.True(drv.IRQ().Enabled())
	assert.Equal(irq.MaskRxPush, dev.Read32(regs.IER))
	assert.True(drv.Applier().IsApplied())
	active := drv.Applier().ReadActive()
	assert.Equal(localIP, active.LocalIP)
	assert.EqualValues(7403, active.PortHigh)
	assert.EqualValues(0, dev.Read32(regs.TxPushed))
}

func TestEcho(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	dev.SetARP(peerIP, peerMAC)
	frames := make(chan []byte, 8)
	dev.OnTransmit(func(frame []byte) { frames <- frame })

	drv := openDriver(t, dev, makeConfig())
	require.NoError(drv.OpenPort(7401))

	req := record.Record{SrcIP: peerIP, SrcPort: 9000, DstIP: localIP, DstPort: 7401, Payload: testenv.Payload(100)}
	frame, e := udpframe.Compose(req, peerMAC, localMAC)
	require.NoError(e)
	require.NoError(dev.Receive(frame))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	received, e := drv.Recv(ctx, 7401)
	require.NoError(e)
	assert.Equal(req, received)

	reply := record.Record{SrcIP: localIP, SrcPort: 7401, DstIP: peerIP, DstPort: 9000, Payload: received.Payload}
	require.NoError(drv.SendWait(ctx, reply))

	select {
	case frame = <-frames:
	case <-ctx.Done():
		require.FailNow("no frame transmitted")
	}
	pkt, e := udpframe.Parse(frame)
	require.NoError(e)
	assert.Equal(peerMAC, pkt.DstMAC)
	require.NotNil(pkt.UDP)
	assert.Equal(reply, *pkt.UDP)
	assert.EqualValues(1, drv.TX().Counters().Packets)
}

func TestTruncatedEvent(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	drv := openDriver(t, dev, makeConfig())

	ports := make(chan uint16, 1)
	cancelOn := drv.Emitter().On(rxchan.EventTruncated, func(port uint16, e error) {
		ports <- port
	})
	defer cancelOn()

	require.NoError(drv.OpenPort(7403))
	require.NoError(dev.Deliver(record.Record{SrcIP: peerIP, DstIP: localIP, DstPort: 7403, Payload: testenv.Payload(1000)}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, e := drv.Recv(ctx, 7403)
	assert.ErrorIs(e, record.ErrTruncated)
	assert.Equal(uint16(7403), <-ports)
}

func TestPolling(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	cfg := makeConfig()
	cfg.DisableIRQ = true
	drv := openDriver(t, dev, cfg)
	assert.False(drv.IRQ().Enabled())

	require.NoError(drv.OpenPort(7400))
	require.NoError(dev.Deliver(record.Record{SrcIP: peerIP, DstIP: localIP, DstPort: 7400, Payload: []byte("poll")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	received, e := drv.Recv(ctx, 7400)
	require.NoError(e)
	assert.Equal("poll", string(received.Payload))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, e = drv.Recv(ctx2, 7400)
	assert.ErrorIs(e, udpcore.ErrTimeout)
}

type countingCloser struct {
	n int
}

func (c *countingCloser) Close() error {
	c.n++
	return nil
}

func TestOpenInvalid(t *testing.T) {
	assert, _ := makeAR(t)
	dev := newDevice(t)
	closer := &countingCloser{}
	hw := udpcore.SimHardware(dev)
	hw.Closer = closer

	cfg := makeConfig()
	cfg.Core.PortHigh = 7410
	_, e := udpcore.Open(hw, cfg)
	assert.Error(e)
	assert.Equal(1, closer.n)

	cfg = makeConfig()
	cfg.Geometry.NumRx = 8
	_, e = udpcore.Open(hw, cfg)
	assert.Error(e)
	assert.Equal(2, closer.n)
}

func TestOpenInterruptError(t *testing.T) {
	assert, _ := makeAR(t)
	dev := newDevice(t)
	hw := udpcore.SimHardware(dev)
	hw.Interrupts = func(*irq.Controller, *irq.Line) (io.Closer, error) {
		return nil, errors.New("no device")
	}
	_, e := udpcore.Open(hw, makeConfig())
	assert.Error(e)
}

func TestClose(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	closer := &countingCloser{}
	hw := udpcore.SimHardware(dev)
	hw.Closer = closer

	drv, e := udpcore.Open(hw, makeConfig())
	require.NoError(e)
	require.NoError(drv.OpenPort(7402))
	assert.True(geometry.Layout().Decode(dev.Read32(regs.RxDescriptor(2))).OpenSocket)

	assert.NoError(drv.Close())
	assert.False(geometry.Layout().Decode(dev.Read32(regs.RxDescriptor(2))).OpenSocket)
	assert.EqualValues(0, dev.Read32(regs.GIE))
	assert.Equal(1, closer.n)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(drv.Close())
		}()
	}
	wg.Wait()
	assert.Equal(1, closer.n)
}

func TestDumpRegisters(t *testing.T) {
	assert, require := makeAR(t)
	dev := newDevice(t)
	drv := openDriver(t, dev, makeConfig())
	require.NoError(drv.OpenPort(7401))

	byName := map[string]udpcore.RegisterValue{}
	for _, rv := range drv.DumpRegisters() {
		byName[rv.Name] = rv
	}
	assert.Len(byName, len(regs.ControlRegisters)+len(regs.ConfigRegisters)+4)

	assert.EqualValues(0xC0A80180, byName["IP_LOC"].Value)
	assert.EqualValues(0xC0A80180, byName["IP_LOC_ACTIVE"].Value)
	assert.EqualValues(1, byName["GIE"].Value)

	rv := byName["BUFRX_1"]
	require.NotNil(rv.Descriptor)
	assert.True(rv.Descriptor.OpenSocket)
	assert.True(rv.Descriptor.Empty)
	assert.True(strings.HasPrefix(rv.String(), "00A8 BUFRX_1"))
	assert.False(byName["BUFRX_0"].Descriptor.OpenSocket)
}
