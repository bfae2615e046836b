// Package irq programs the interrupt registers of the offload core and delivers interrupt
// notifications to the receive path.
//
// Interrupts are level-triggered: the core raises its line while any open RX channel holds data.
// The handler disables global interrupt generation, hands off to the receive path, and clears the
// status register. The receive path re-enables global interrupts after draining.
package irq

import (
	"errors"
	"sync"

	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"go.uber.org/zap"
)

var logger = logging.New("IRQ")

// ErrSpuriousInterrupt indicates an interrupt with no channel holding data.
var ErrSpuriousInterrupt = errors.New("spurious interrupt")

// MaskRxPush is the interrupt enable bit for RX push events.
const MaskRxPush uint32 = 1

// Controller programs ISR, IER, and GIE.
type Controller struct {
	bus   regio.Bus
	mutex sync.Locker
}

// NewController creates a Controller.
// mutex serializes control register access; if nil, the Controller uses its own mutex.
func NewController(bus regio.Bus, mutex sync.Locker) *Controller {
	if mutex == nil {
		mutex = &sync.Mutex{}
	}
	return &Controller{bus: bus, mutex: mutex}
}

// Enable writes the interrupt enable mask and turns on global interrupts.
// A zero mask turns global interrupts off.
func (c *Controller) Enable(mask uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.bus.Write32(regs.IER, mask)
	gie := uint32(0)
	if mask != 0 {
		gie = 1
	}
	c.bus.Write32(regs.GIE, gie)
	logger.Debug("enable", zap.Uint32("mask", mask))
}

// Disable turns off interrupt generation.
func (c *Controller) Disable() {
	c.Enable(0)
}

// Mask turns off global interrupts, keeping the enable mask.
func (c *Controller) Mask() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.bus.Write32(regs.GIE, 0)
}

// Unmask turns global interrupts back on if any source is enabled.
func (c *Controller) Unmask() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.bus.Read32(regs.IER) != 0 {
		c.bus.Write32(regs.GIE, 1)
	}
}

// Acknowledge clears interrupt status.
func (c *Controller) Acknowledge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.bus.Write32(regs.ISR, 0)
}

// Pending returns interrupt status.
func (c *Controller) Pending() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.bus.Read32(regs.ISR)
}

// Enabled determines whether global interrupts are on.
func (c *Controller) Enabled() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.bus.Read32(regs.GIE) != 0
}

// Handle performs top-half processing of an interrupt: mask, hand off, clear status.
func (c *Controller) Handle(line *Line) {
	c.Mask()
	line.Raise()
	c.Acknowledge()
}
