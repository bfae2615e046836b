package hwsim

import (
	"github.com/usnistgov/udpcore/core/bitfield"
	"github.com/usnistgov/udpcore/hw/regs"
	"go.uber.org/zap"
)

// Read32 implements regio.Bus.
func (d *Device) Read32(offset uint32) uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if ch, ok := d.rxChannelOf(offset); ok {
		return d.rxDescriptor(ch)
	}

	switch offset {
	case regs.TxHead:
		return uint32(d.tx.Status().Head)
	case regs.TxTail:
		return uint32(d.tx.Status().Tail)
	case regs.TxEmpty:
		return b2u(d.tx.Status().Empty)
	case regs.TxFull:
		return b2u(d.tx.Status().Full)
	case regs.TxPushed:
		return b2u(d.txPushed)
	case regs.TxPopped:
		return 0
	case regs.RxPushIRQ:
		return b2u(d.level())
	}

	if offset >= regs.ActiveBase {
		return d.active[offset-regs.ActiveBase]
	}
	return d.reg[offset]
}

func (d *Device) rxChannelOf(offset uint32) (ch int, ok bool) {
	if offset >= regs.ActiveBase {
		return 0, false
	}
	ch, ok = regs.RxChannelOf(offset)
	return ch, ok && ch < len(d.rx)
}

func (d *Device) rxDescriptor(i int) uint32 {
	ch := &d.rx[i]
	if ch.forced != nil {
		return *ch.forced
	}
	st := ch.ring.Status()
	return d.layout.Encode(regs.Descriptor{
		Popped:     ch.popped,
		Full:       st.Full,
		Empty:      st.Empty,
		Tail:       st.Tail,
		Head:       st.Head,
		OpenSocket: ch.open,
	})
}

// Write32 implements regio.Bus.
func (d *Device) Write32(offset, value uint32) {
	d.mutex.Lock()
	defer d.unlockAndFlush()

	if ch, ok := d.rxChannelOf(offset); ok {
		d.writeRxDescriptor(ch, value)
		return
	}

	switch offset {
	case regs.TxHead, regs.TxTail, regs.TxEmpty, regs.TxFull, regs.TxPopped, regs.RxPushIRQ:
		return
	case regs.TxPushed:
		pushed := bitfield.Bit(value, 0)
		if pushed && !d.txPushed {
			d.txPush()
		}
		d.txPushed = pushed
		return
	case regs.Reset:
		asserted := bitfield.Bit(value, 0)
		if d.inReset && !asserted {
			d.applyPending = true
			d.tryApply()
		}
		d.inReset = asserted
	case regs.GIE:
		rising := d.reg[regs.GIE] == 0 && value != 0
		d.reg[offset] = value
		if rising {
			d.raise()
		}
		return
	}

	if offset >= regs.ActiveBase {
		return
	}
	d.reg[offset] = value
}

func (d *Device) writeRxDescriptor(i int, value uint32) {
	ch := &d.rx[i]
	popped := bitfield.Bit(value, regs.BitPopped)
	if popped && !ch.popped {
		if _, ok := ch.ring.Pop(); !ok {
			logger.Debug("pop on empty ring ignored", zap.Int("ch", i))
		}
	}
	ch.popped = popped

	open := bitfield.Bit(value, d.layout.OpenSocketBit())
	if open != ch.open {
		ch.open = open
		logger.Debug("socket state", zap.Int("ch", i), zap.Bool("open", open))
	}
	d.raise()
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
