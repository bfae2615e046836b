package rxchan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"go.uber.org/zap"
)

// Channel is the RX channel of one UDP port.
type Channel struct {
	m      *Manager
	index  int
	port   uint16
	desc   uint32
	logger *zap.Logger

	mutex    sync.Mutex
	open     bool
	halted   error
	haltC    chan struct{}
	mirror   int
	mirrored bool
	queue    chan Delivery
	cnt      Counters
}

func newChannel(m *Manager, index int) *Channel {
	port := m.portLow + uint16(index)
	return &Channel{
		m:      m,
		index:  index,
		port:   port,
		desc:   regs.RxDescriptor(index),
		logger: logger.With(zap.Uint16("port", port)),
		haltC:  make(chan struct{}),
		queue:  make(chan Delivery, m.cfg.QueueCapacity),
	}
}

// Port returns the UDP port.
func (ch *Channel) Port() uint16 {
	return ch.port
}

// IsOpen determines whether the socket is open.
func (ch *Channel) IsOpen() bool {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	return ch.open
}

// Halted returns the error that halted the channel, or nil.
func (ch *Channel) Halted() error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	return ch.halted
}

// Counters returns a snapshot of counters.
func (ch *Channel) Counters() Counters {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	return ch.cnt
}

func (ch *Channel) readDescriptor() (d regs.Descriptor, e error) {
	d = ch.m.layout.Decode(ch.m.bus.Read32(ch.desc))
	if e = d.Validate(ch.m.geom.RingLength); e != nil {
		return d, e
	}
	if ch.mirrored && d.Tail != ch.mirror {
		return d, fmt.Errorf("%w: tail %d differs from expected %d", regs.ErrDescriptorInconsistent, d.Tail, ch.mirror)
	}
	return d, nil
}

// setOpen toggles the open-socket flag. It leaves ring contents alone.
func (ch *Channel) setOpen(open bool) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	ch.open = open
	ch.mirrored = false
	ch.writeOpenBit()
	ch.logger.Debug("socket state", zap.Bool("open", open))
}

// writeOpenBit sets the hardware open-socket flag from the software state.
// A halted channel keeps the flag cleared, so that the core stops asserting its interrupt.
func (ch *Channel) writeOpenBit() {
	v := uint32(0)
	if ch.open && ch.halted == nil {
		v = 1
	}
	regio.Update(ch.m.bus, ch.desc, v, ch.m.layout.OpenSocketBit(), 1)
}

func (ch *Channel) halt(e error) {
	ch.halted = e
	close(ch.haltC)
	ch.writeOpenBit()
	ch.logger.Error("channel halted", zap.Error(e))
	ch.m.emitter.Emit(EventInconsistent, ch.port, e)
}

// receiveOne consumes at most one packet.
// hasData reports whether the channel signaled: the hardware ring held a packet, or its
// descriptor was found inconsistent.
// held reports that a packet was left in the hardware ring because the delivery queue is full.
func (ch *Channel) receiveOne() (received, hasData, held bool) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	if !ch.open || ch.halted != nil {
		return false, false, false
	}

	d, e := ch.readDescriptor()
	if e != nil {
		ch.halt(e)
		return false, true, false
	}
	ch.mirror, ch.mirrored = d.Tail, true
	if d.Empty {
		return false, false, false
	}
	if len(ch.queue) == cap(ch.queue) {
		return false, true, true
	}

	dl := ch.readSlot(d.Tail)
	ch.m.irq.Acknowledge()
	regio.Pulse(ch.m.bus, ch.desc, regs.BitPopped)
	ch.mirror = ringbuffer.Advance(d.Tail, ch.m.geom.RingLength)

	switch {
	case dl.Err == nil:
		ch.cnt.Packets++
		ch.cnt.Bytes += uint64(len(dl.Record.Payload))
	case errors.Is(dl.Err, record.ErrTruncated):
		ch.cnt.Truncated++
		ch.logger.Warn("truncated packet", zap.Error(dl.Err))
		ch.m.emitter.Emit(EventTruncated, ch.port, dl.Err)
	default:
		ch.cnt.Malformed++
		ch.logger.Warn("malformed packet", zap.Error(dl.Err))
	}
	ch.queue <- dl
	return true, true, false
}

func (ch *Channel) readSlot(idx int) (dl Delivery) {
	slotSize := ch.m.geom.SlotSize
	off := int64(ch.m.geom.RxSlot(ch.index, idx))

	hdrBuf := make([]byte, record.HeaderLen)
	if _, e := ch.m.mem.ReadAt(hdrBuf, off); e != nil {
		dl.Err = e
		return
	}
	var hdr record.Header
	if dl.Err = hdr.UnmarshalBinary(hdrBuf); dl.Err != nil {
		return
	}

	bodyLen := slotSize - record.HeaderLen
	if hdr.PayloadSize <= uint64(bodyLen) {
		bodyLen = int(hdr.PayloadSize)
	}
	body := make([]byte, bodyLen)
	if _, e := ch.m.mem.ReadAt(body, off+record.HeaderLen); e != nil {
		dl.Err = e
		return
	}
	dl.Record, dl.Err = record.FromHeader(hdr, body)
	return
}

// Probe determines whether a packet is ready, without consuming it.
func (ch *Channel) Probe() (bool, error) {
	if len(ch.queue) > 0 {
		return true, nil
	}
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	if ch.halted != nil {
		return false, ch.halted
	}
	d, e := ch.readDescriptor()
	if e != nil {
		return false, e
	}
	return !d.Empty, nil
}

// Recv waits for a packet until ctx expires.
// A truncated packet is returned together with record.ErrTruncated.
func (ch *Channel) Recv(ctx context.Context) (rec record.Record, e error) {
	ch.mutex.Lock()
	haltC := ch.haltC
	ch.mutex.Unlock()

	select {
	case dl := <-ch.queue:
		ch.m.resume()
		return dl.Record, dl.Err
	default:
	}

	select {
	case dl := <-ch.queue:
		ch.m.resume()
		return dl.Record, dl.Err
	case <-haltC:
		return rec, ch.Halted()
	case <-ctx.Done():
		return rec, fmt.Errorf("%w: %v", regio.ErrTimeout, ctx.Err())
	}
}

// Reinit clears a halted state after re-reading a consistent descriptor, and restores the
// open-socket flag if the socket is open.
func (ch *Channel) Reinit() error {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	ch.mirrored = false
	d, e := ch.readDescriptor()
	if e != nil {
		return e
	}
	if ch.halted != nil {
		ch.halted = nil
		ch.haltC = make(chan struct{})
		ch.writeOpenBit()
	}
	ch.mirror, ch.mirrored = d.Tail, true
	ch.logger.Info("channel reinitialized", zap.Stringer("descriptor", d))
	return nil
}
