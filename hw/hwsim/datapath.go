package hwsim

import (
	"fmt"
	"net"

	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

// Receive accepts an Ethernet frame from the wire.
// It returns nil if the frame was consumed, or an error describing why it was dropped.
func (d *Device) Receive(frame []byte) error {
	d.mutex.Lock()
	defer d.unlockAndFlush()
	d.cnt.RxFrames++

	if d.inReset {
		return ErrInReset
	}
	pkt, e := d.parser.Parse(frame)
	if e != nil {
		d.cnt.RxDropFilter++
		return fmt.Errorf("%w: %v", ErrFiltered, e)
	}

	local := d.localMAC()
	if !macaddr.Equal(pkt.DstMAC, local) && !macaddr.IsBroadcast(pkt.DstMAC) {
		d.cnt.RxDropFilter++
		return ErrFiltered
	}

	if pkt.ARP != nil {
		return d.handleARP(*pkt.ARP)
	}
	return d.deliver(*pkt.UDP)
}

// Deliver places a record into the RX ring selected by its destination port, bypassing
// Ethernet processing.
func (d *Device) Deliver(rec record.Record) error {
	d.mutex.Lock()
	defer d.unlockAndFlush()
	d.cnt.RxFrames++
	if d.inReset {
		return ErrInReset
	}
	return d.deliver(rec)
}

func (d *Device) deliver(rec record.Record) error {
	if rec.DstIP != d.localIP() {
		d.cnt.RxDropFilter++
		return ErrFiltered
	}
	low, high := d.active[regs.PortLow], d.active[regs.PortHigh]
	port := uint32(rec.DstPort)
	if port < low || port > high || int(port-low) >= len(d.rx) {
		d.cnt.RxDropFilter++
		return ErrFiltered
	}

	i := int(port - low)
	ch := &d.rx[i]
	if !ch.open {
		d.cnt.RxDropClosed++
		return ErrSocketClosed
	}
	st := ch.ring.Status()
	if st.Full {
		d.cnt.RxDropFull++
		return ringbuffer.ErrBufferFull
	}

	slotSize := d.cfg.SlotSize
	off := int64(d.cfg.RxSlot(i, st.Head))
	slot := d.mem[off : off+int64(slotSize)]
	hdr, _ := rec.Header().MarshalBinary()
	copy(slot, hdr)
	n := copy(slot[record.HeaderLen:], rec.Payload)
	if n < len(rec.Payload) {
		d.cnt.RxTruncated++
		logger.Debug("payload exceeds slot", zap.Int("ch", i), zap.Int("payload", len(rec.Payload)), zap.Int("slot", slotSize))
	}

	ch.ring.Push(len(rec.Payload))
	d.cnt.RxDelivered++
	d.raise()
	return nil
}

func (d *Device) txPush() {
	if e := d.tx.Push(0); e != nil {
		d.cnt.TxOverrun++
		logger.Warn("TX push while full ignored")
		return
	}
	if d.cfg.AutoTransmit {
		d.transmit(-1)
	}
}

// Transmit sends up to n packets from the TX ring, or all packets if n is negative.
// Packets whose next hop is not yet resolved stay in the ring.
// It returns the number of packets sent or dropped.
func (d *Device) Transmit(n int) int {
	d.mutex.Lock()
	defer d.unlockAndFlush()
	return d.transmit(n)
}

func (d *Device) transmit(n int) (count int) {
	for ; n != 0 && d.tx.Occupancy() > 0; n-- {
		tail := d.tx.Status().Tail
		off := int64(d.cfg.TxSlot(tail))
		rec, e := record.Decode(d.mem[off : off+int64(d.cfg.SlotSize)])
		if e != nil {
			d.cnt.TxDropped++
			logger.Warn("TX record dropped", zap.Error(e))
			d.tx.Pop()
			count++
			continue
		}

		mac, ok := d.resolve(d.nextHop(rec.DstIP))
		if !ok {
			break
		}
		frame, e := udpframe.Compose(rec, d.localMAC(), mac)
		d.tx.Pop()
		count++
		if e != nil {
			d.cnt.TxDropped++
			logger.Warn("TX compose error", zap.Error(e))
			continue
		}
		d.outbox = append(d.outbox, frame)
		d.cnt.TxPackets++
	}
	return count
}

func (d *Device) nextHop(dst netaddr.IP) netaddr.IP {
	mask := d.active[regs.SubnetMask]
	local := d.active[regs.LocalIP]
	if record.IPToUint32(dst)&mask == local&mask {
		return dst
	}
	return ipFromReg(d.active[regs.Gateway])
}

// resolve looks up the ARP cache, sending a request on miss.
func (d *Device) resolve(ip netaddr.IP) (mac net.HardwareAddr, ok bool) {
	if v, ok := d.arp.Get(ip); ok {
		return v.(net.HardwareAddr), true
	}
	if !d.arpWaiting[ip] {
		d.arpWaiting[ip] = true
		frame, e := udpframe.ComposeARP(udpframe.ARP{
			Operation: udpframe.ARPRequest,
			SenderMAC: d.localMAC(),
			SenderIP:  d.localIP(),
			TargetIP:  ip,
		})
		if e == nil {
			d.outbox = append(d.outbox, frame)
			d.cnt.ARPRequests++
		}
	}
	return nil, false
}

func (d *Device) handleARP(a udpframe.ARP) error {
	if a.SenderIP.Is4() && macaddr.IsUnicast(a.SenderMAC) {
		d.arp.Add(a.SenderIP, a.SenderMAC)
		if d.arpWaiting[a.SenderIP] {
			delete(d.arpWaiting, a.SenderIP)
			if d.cfg.AutoTransmit {
				d.transmit(-1)
			}
		}
	}

	if a.Operation == udpframe.ARPRequest && a.TargetIP == d.localIP() {
		frame, e := udpframe.ComposeARP(udpframe.ARP{
			Operation: udpframe.ARPReply,
			SenderMAC: d.localMAC(),
			SenderIP:  d.localIP(),
			TargetMAC: a.SenderMAC,
			TargetIP:  a.SenderIP,
		})
		if e != nil {
			return e
		}
		d.outbox = append(d.outbox, frame)
		d.cnt.ARPReplies++
	}
	return nil
}

// SetARP adds a static ARP entry.
func (d *Device) SetARP(ip netaddr.IP, mac net.HardwareAddr) {
	d.mutex.Lock()
	defer d.unlockAndFlush()
	d.arp.Add(ip, append(net.HardwareAddr{}, mac...))
	delete(d.arpWaiting, ip)
	if d.cfg.AutoTransmit {
		d.transmit(-1)
	}
}
