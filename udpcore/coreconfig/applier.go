package coreconfig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"go.uber.org/zap"
)

// Applier writes configuration registers.
type Applier struct {
	bus   regio.Bus
	mutex sync.Locker
	numRx int
}

// NewApplier creates an Applier.
// mutex serializes control register access; if nil, the Applier uses its own mutex.
func NewApplier(bus regio.Bus, mutex sync.Locker, numRx int) *Applier {
	if mutex == nil {
		mutex = &sync.Mutex{}
	}
	return &Applier{bus: bus, mutex: mutex, numRx: numRx}
}

// Write validates cfg and writes it into pending registers without requesting activation.
func (a *Applier) Write(cfg Config) error {
	if e := cfg.Validate(a.numRx); e != nil {
		return e
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.write(cfg)
	return nil
}

func (a *Applier) write(cfg Config) {
	values := cfg.Registers()
	for _, off := range regs.ConfigRegisters {
		a.bus.Write32(off, values[off])
	}
}

// Apply writes cfg into pending registers and requests activation.
// It returns once the request is issued; activation may be deferred by the core.
func (a *Applier) Apply(cfg Config) error {
	if e := cfg.Validate(a.numRx); e != nil {
		return e
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.write(cfg)
	regio.Pulse(a.bus, regs.Reset, 0)
	logger.Info("configuration apply requested",
		zap.Stringer("mac", cfg.MAC),
		zap.Stringer("local-ip", cfg.LocalIP),
		zap.Uint16("port-low", cfg.PortLow),
		zap.Uint16("port-high", cfg.PortHigh),
	)
	return nil
}

// IsApplied determines whether active configuration equals pending configuration.
func (a *Applier) IsApplied() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for _, off := range regs.ConfigRegisters {
		if a.bus.Read32(off) != a.bus.Read32(regs.Active(off)) {
			return false
		}
	}
	return true
}

// WaitApplied polls IsApplied every interval until it is true or ctx expires.
func (a *Applier) WaitApplied(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !a.IsApplied() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConfigNotApplied, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (a *Applier) read(base uint32) Config {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	values := map[uint32]uint32{}
	for _, off := range regs.ConfigRegisters {
		values[off] = a.bus.Read32(base + off)
	}
	return FromRegisters(values)
}

// Read returns pending configuration.
func (a *Applier) Read() Config {
	return a.read(0)
}

// ReadActive returns active configuration.
func (a *Applier) ReadActive() Config {
	return a.read(regs.ActiveBase)
}
