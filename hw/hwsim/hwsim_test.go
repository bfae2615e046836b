package hwsim_test

import (
	"testing"

	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
)

func TestDeferredApply(t *testing.T) {
	assert, _ := makeAR(t)
	d := newDevice(t, false)

	configure(d)
	assert.Equal(uint32(7400), d.Read32(regs.Active(regs.PortLow)))

	d.BeginTransaction()
	writeConfig(d, 8000)
	regio.Pulse(d, regs.Reset, 0)
	assert.Equal(uint32(8000), d.Read32(regs.PortLow))
	assert.Equal(uint32(7400), d.Read32(regs.Active(regs.PortLow)))

	d.EndTransaction()
	assert.Equal(uint32(8000), d.Read32(regs.Active(regs.PortLow)))
	assert.Equal(uint32(8003), d.Read32(regs.Active(regs.PortHigh)))
	assert.EqualValues(2, d.Counters().Applied)
}

func TestReceive(t *testing.T) {
	assert, require := makeAR(t)
	d := newDevice(t, false)
	configure(d)
	layout := d.Geometry().Layout()

	line := irq.NewLine()
	d.AttachLine(line)
	ctrl := irq.NewController(d, nil)
	ctrl.Enable(irq.MaskRxPush)

	rec := record.Record{SrcIP: peerIP, SrcPort: 9000, DstIP: localIP, DstPort: 7401, Payload: []byte("hello")}
	assert.ErrorIs(d.Deliver(rec), hwsim.ErrSocketClosed)

	desc := regs.RxDescriptor(1)
	regio.Update(d, desc, 1, layout.OpenSocketBit(), 1)
	assert.True(layout.Decode(d.Read32(desc)).OpenSocket)

	frame, e := udpframe.Compose(rec, peerMAC, localMAC)
	require.NoError(e)
	require.NoError(d.Receive(frame))
	assert.Len(line.C(), 1)
	assert.Equal(irq.MaskRxPush, ctrl.Pending())

	dd := layout.Decode(d.Read32(desc))
	assert.Equal(regs.Descriptor{Head: 1, Tail: 0, OpenSocket: true}, dd)
	assert.Equal(uint32(1), d.Read32(regs.RxPushIRQ))

	slot := make([]byte, 256)
	_, e = d.Memory().ReadAt(slot, int64(d.Geometry().RxSlot(1, 0)))
	require.NoError(e)
	decoded, e := record.Decode(slot)
	require.NoError(e)
	assert.Equal(rec, decoded)

	regio.Pulse(d, desc, regs.BitPopped)
	dd = layout.Decode(d.Read32(desc))
	assert.True(dd.Empty)
	assert.Equal(1, dd.Tail)

	rec.DstPort = 7500
	assert.ErrorIs(d.Deliver(rec), hwsim.ErrFiltered)
	rec.DstPort = 7401
	for i := 0; i < 4; i++ {
		assert.NoError(d.Deliver(rec))
	}
	assert.ErrorIs(d.Deliver(rec), ringbuffer.ErrBufferFull)
	assert.True(layout.Decode(d.Read32(desc)).Full)

	cnt := d.Counters()
	assert.EqualValues(5, cnt.RxDelivered)
	assert.EqualValues(1, cnt.RxDropClosed)
	assert.EqualValues(1, cnt.RxDropFull)
}

func TestTruncation(t *testing.T) {
	assert, require := makeAR(t)
	d := newDevice(t, false)
	configure(d)
	layout := d.Geometry().Layout()
	regio.Update(d, regs.RxDescriptor(0), 1, layout.OpenSocketBit(), 1)

	rec := record.Record{SrcIP: peerIP, DstIP: localIP, DstPort: 7400, Payload: testenv.Payload(2048)}
	require.NoError(d.Deliver(rec))
	assert.EqualValues(1, d.Counters().RxTruncated)

	slot := make([]byte, 256)
	d.Memory().ReadAt(slot, int64(d.Geometry().RxSlot(0, 0)))
	_, e := record.Decode(slot)
	assert.ErrorIs(e, record.ErrTruncated)
}

func TestTransmitARP(t *testing.T) {
	assert, require := makeAR(t)
	d := newDevice(t, false)
	configure(d)

	var sent [][]byte
	d.OnTransmit(func(frame []byte) { sent = append(sent, frame) })

	rec := record.Record{SrcIP: localIP, SrcPort: 7400, DstIP: peerIP, DstPort: 9000, Payload: []byte("ping")}
	slot := make([]byte, 256)
	require.NoError(rec.Encode(slot))
	d.Memory().WriteAt(slot, int64(d.Geometry().TxSlot(0)))
	regio.Pulse(d, regs.TxPushed, 0)

	assert.Equal(uint32(1), d.Read32(regs.TxHead))
	assert.Equal(uint32(0), d.Read32(regs.TxEmpty))
	assert.Len(sent, 0)

	assert.Equal(0, d.Transmit(-1))
	require.Len(sent, 1)
	arpReq, e := udpframe.Parse(sent[0])
	require.NoError(e)
	require.NotNil(arpReq.ARP)
	assert.Equal(udpframe.ARPRequest, arpReq.ARP.Operation)
	assert.Equal(peerIP, arpReq.ARP.TargetIP)

	reply, e := udpframe.ComposeARP(udpframe.ARP{
		Operation: udpframe.ARPReply,
		SenderMAC: peerMAC,
		SenderIP:  peerIP,
		TargetMAC: localMAC,
		TargetIP:  localIP,
	})
	require.NoError(e)
	require.NoError(d.Receive(reply))

	assert.Equal(1, d.Transmit(-1))
	require.Len(sent, 2)
	pkt, e := udpframe.Parse(sent[1])
	require.NoError(e)
	assert.True(macaddr.Equal(peerMAC, pkt.DstMAC))
	require.NotNil(pkt.UDP)
	assert.Equal(rec, *pkt.UDP)
	assert.Equal(uint32(1), d.Read32(regs.TxEmpty))
}

func TestARPResponder(t *testing.T) {
	assert, require := makeAR(t)
	d := newDevice(t, true)
	configure(d)

	var sent [][]byte
	d.OnTransmit(func(frame []byte) { sent = append(sent, frame) })

	req, e := udpframe.ComposeARP(udpframe.ARP{
		Operation: udpframe.ARPRequest,
		SenderMAC: peerMAC,
		SenderIP:  peerIP,
		TargetIP:  localIP,
	})
	require.NoError(e)
	require.NoError(d.Receive(req))
	require.Len(sent, 1)

	pkt, e := udpframe.Parse(sent[0])
	require.NoError(e)
	require.NotNil(pkt.ARP)
	assert.Equal(udpframe.ARPReply, pkt.ARP.Operation)
	assert.True(macaddr.Equal(localMAC, pkt.ARP.SenderMAC))
	assert.True(macaddr.Equal(peerMAC, pkt.DstMAC))
}

func TestReset(t *testing.T) {
	assert, _ := makeAR(t)
	d := newDevice(t, false)
	configure(d)

	d.Write32(regs.Reset, 1)
	rec := record.Record{DstIP: localIP, DstPort: 7400}
	assert.ErrorIs(d.Deliver(rec), hwsim.ErrInReset)
	d.Write32(regs.Reset, 0)
	assert.ErrorIs(d.Deliver(rec), hwsim.ErrSocketClosed)
}
