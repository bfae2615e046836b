package txchan_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"github.com/usnistgov/udpcore/udpcore/coreconfig"
	"github.com/usnistgov/udpcore/udpcore/txchan"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"inet.af/netaddr"
)

var (
	peerMAC, _ = net.ParseMAC("02:00:00:00:00:01")
	localIP    = netaddr.MustParseIP("192.168.1.128")
	peerIP     = netaddr.MustParseIP("192.168.1.2")
)

func newFixture(t testing.TB) (*hwsim.Device, *txchan.Manager) {
	dev, e := hwsim.New(hwsim.Config{Geometry: regs.Geometry{NumRx: 4, RingLength: 4, SlotSize: 256}})
	if e != nil {
		t.Fatal(e)
	}
	var c coreconfig.Config
	c.ApplyDefaults()
	c.PortLow, c.PortHigh = 7400, 7403
	if e = coreconfig.NewApplier(dev, nil, 4).Apply(c); e != nil {
		t.Fatal(e)
	}
	return dev, txchan.New(dev, dev.Memory(), dev.Geometry(), txchan.Config{RetryInitial: 100, RetryMaximum: 400}, nil)
}

// glitchBus reports both full and empty on the TX ring while glitch is set.
type glitchBus struct {
	*hwsim.Device
	glitch int32
}

func (b *glitchBus) Read32(offset uint32) uint32 {
	if atomic.LoadInt32(&b.glitch) != 0 && (offset == regs.TxFull || offset == regs.TxEmpty) {
		return 1
	}
	return b.Device.Read32(offset)
}

func TestEnqueue(t *testing.T) {
	assert, require := makeAR(t)
	dev, m := newFixture(t)

	rec := record.Record{SrcIP: localIP, SrcPort: 7400, DstIP: peerIP, DstPort: 9000, Payload: testenv.Payload(10)}
	require.NoError(m.Enqueue(rec))

	d, e := m.Status()
	require.NoError(e)
	assert.Equal(1, d.Head)
	assert.Equal(0, d.Tail)
	assert.False(d.Full)
	assert.False(d.Empty)

	slot := make([]byte, 256)
	dev.Memory().ReadAt(slot, int64(dev.Geometry().TxSlot(0)))
	decoded, e := record.Decode(slot)
	require.NoError(e)
	assert.Equal(rec, decoded)

	for i := 1; i < 4; i++ {
		assert.False(dev.TxStatus().Full)
		require.NoError(m.Enqueue(rec))
	}
	assert.True(dev.TxStatus().Full)
	assert.ErrorIs(m.Enqueue(rec), ringbuffer.ErrBufferFull)
	assert.Equal(txchan.Counters{Packets: 4, Bytes: 40, Full: 1}, m.Counters())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(m.EnqueueWait(ctx, rec), regio.ErrTimeout)

	var sent [][]byte
	dev.OnTransmit(func(frame []byte) { sent = append(sent, frame) })
	dev.SetARP(peerIP, peerMAC)
	assert.Equal(4, dev.Transmit(-1))
	require.Len(sent, 4)
	pkt, e := udpframe.Parse(sent[3])
	require.NoError(e)
	assert.Equal(rec, *pkt.UDP)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(m.EnqueueWait(ctx2, rec))
	d, _ = m.Status()
	assert.Equal(1, d.Head)
	assert.Equal(0, d.Tail)
}

func TestOversize(t *testing.T) {
	assert, _ := makeAR(t)
	dev, m := newFixture(t)

	rec := record.Record{DstIP: peerIP, Payload: testenv.Payload(2048)}
	assert.ErrorIs(m.Enqueue(rec), record.ErrTruncated)
	assert.True(dev.TxStatus().Empty)
	assert.EqualValues(1, m.Counters().Oversize)
}

func TestWaitDrains(t *testing.T) {
	assert, require := makeAR(t)
	dev, m := newFixture(t)
	dev.SetARP(peerIP, peerMAC)

	rec := record.Record{SrcIP: localIP, DstIP: peerIP, DstPort: 9000, Payload: []byte("x")}
	for i := 0; i < 4; i++ {
		require.NoError(m.Enqueue(rec))
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		dev.Transmit(1)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(m.EnqueueWait(ctx, rec))
	assert.True(dev.TxStatus().Full)
}

func TestHalt(t *testing.T) {
	assert, require := makeAR(t)
	dev, _ := newFixture(t)
	bus := &glitchBus{Device: dev}
	m := txchan.New(bus, dev.Memory(), dev.Geometry(), txchan.Config{RetryInitial: 100, RetryMaximum: 400}, nil)

	var halts []error
	m.Emitter().On(txchan.EventInconsistent, func(e error) { halts = append(halts, e) })

	rec := record.Record{SrcIP: localIP, DstIP: peerIP, DstPort: 9000, Payload: []byte("x")}
	atomic.StoreInt32(&bus.glitch, 1)
	assert.ErrorIs(m.Enqueue(rec), regs.ErrDescriptorInconsistent)
	require.Len(halts, 1)
	assert.ErrorIs(halts[0], regs.ErrDescriptorInconsistent)
	assert.ErrorIs(m.Halted(), regs.ErrDescriptorInconsistent)

	atomic.StoreInt32(&bus.glitch, 0)
	assert.ErrorIs(m.Enqueue(rec), regs.ErrDescriptorInconsistent)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(m.EnqueueWait(ctx, rec), regs.ErrDescriptorInconsistent)
	assert.True(dev.TxStatus().Empty)
	assert.Len(halts, 1)

	atomic.StoreInt32(&bus.glitch, 1)
	assert.Error(m.Reinit())
	atomic.StoreInt32(&bus.glitch, 0)
	require.NoError(m.Reinit())
	assert.NoError(m.Halted())
	require.NoError(m.Enqueue(rec))
	assert.Equal(1, dev.TxStatus().Head)
}
