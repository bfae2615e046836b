package udpcore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/usnistgov/udpcore/core/events"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore/coreconfig"
	"github.com/usnistgov/udpcore/udpcore/rxchan"
	"github.com/usnistgov/udpcore/udpcore/txchan"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Driver owns an offload core.
type Driver struct {
	cfg     Config
	bus     regio.Bus
	mem     regio.Memory
	layout  regs.Layout
	ctrl    sync.Mutex
	irq     *irq.Controller
	applier *coreconfig.Applier
	emitter *events.Emitter
	rx      *rxchan.Manager
	tx      *txchan.Manager

	closers   []io.Closer
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open initializes the core and starts the RX loop.
//
// Bring-up holds the core in reset while it writes configuration, drains every RX descriptor,
// clears the TX handshake, closes every socket, and programs interrupts. Releasing reset
// activates the configuration.
func Open(hw Hardware, cfg Config) (drv *Driver, e error) {
	cfg.ApplyDefaults()
	if e = cfg.Validate(); e != nil {
		if hw.Closer != nil {
			e = multierr.Append(e, hw.Closer.Close())
		}
		return nil, e
	}

	drv = &Driver{
		cfg:     cfg,
		bus:     hw.Bus,
		mem:     hw.Memory,
		layout:  cfg.Geometry.Layout(),
		emitter: events.NewEmitter(),
		stopped: make(chan struct{}),
	}
	if hw.Closer != nil {
		drv.closers = append(drv.closers, hw.Closer)
	}
	defer func() {
		if e != nil {
			e = multierr.Append(e, drv.closeResources())
			drv = nil
		}
	}()

	if size := uint64(hw.Memory.Size()); size < cfg.Geometry.TotalSize() {
		return drv, fmt.Errorf("shared memory has %d bytes, geometry needs %d", size, cfg.Geometry.TotalSize())
	}

	drv.irq = irq.NewController(drv.bus, &drv.ctrl)
	drv.applier = coreconfig.NewApplier(drv.bus, &drv.ctrl, cfg.Geometry.NumRx)
	drv.tx = txchan.New(drv.bus, drv.mem, cfg.Geometry, cfg.TX, drv.emitter)

	var line *irq.Line
	if hw.Interrupts != nil && !cfg.DisableIRQ {
		line = irq.NewLine()
		var closer io.Closer
		if closer, e = hw.Interrupts(drv.irq, line); e != nil {
			return drv, fmt.Errorf("interrupt source %w", e)
		}
		if closer != nil {
			drv.closers = append(drv.closers, closer)
		}
	}

	if e = drv.bringUp(line != nil); e != nil {
		return drv, e
	}

	if drv.rx, e = rxchan.New(rxchan.Hardware{
		Bus:      drv.bus,
		Memory:   drv.mem,
		Geometry: cfg.Geometry,
		IRQ:      drv.irq,
		Line:     line,
		Emitter:  drv.emitter,
	}, cfg.Core.PortLow, cfg.Core.NumPorts(), cfg.RX); e != nil {
		return drv, e
	}

	if cfg.ApplyTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ApplyTimeout.Duration())
		defer cancel()
		if e = drv.applier.WaitApplied(ctx, time.Millisecond); e != nil {
			return drv, e
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	drv.cancel = cancel
	go func() {
		defer close(drv.stopped)
		drv.rx.Run(ctx)
	}()

	logger.Info("driver opened",
		zap.Stringer("mac", cfg.Core.MAC),
		zap.Stringer("local-ip", cfg.Core.LocalIP),
		zap.Uint16("port-low", cfg.Core.PortLow),
		zap.Uint16("port-high", cfg.Core.PortHigh),
		zap.Bool("irq", line != nil),
	)
	return drv, nil
}

func (drv *Driver) bringUp(useIRQ bool) error {
	drv.ctrl.Lock()
	regio.Update(drv.bus, regs.Reset, 1, 0, 1)
	drv.ctrl.Unlock()

	if e := drv.applier.Write(drv.cfg.Core); e != nil {
		return e
	}

	openBit := drv.layout.OpenSocketBit()
	for ch := 0; ch < drv.cfg.Geometry.NumRx; ch++ {
		off := regs.RxDescriptor(ch)
		regio.Pulse(drv.bus, off, regs.BitPopped)
		regio.Update(drv.bus, off, 0, openBit, 1)
	}
	drv.tx.Reset()

	drv.irq.Acknowledge()
	if useIRQ {
		drv.irq.Enable(irq.MaskRxPush)
	} else {
		drv.irq.Disable()
	}

	drv.ctrl.Lock()
	regio.Update(drv.bus, regs.Reset, 0, 0, 1)
	drv.ctrl.Unlock()
	return nil
}

// Config returns the configuration in effect.
func (drv *Driver) Config() Config {
	return drv.cfg
}

// Emitter returns the event emitter.
// Events are rxchan.EventTruncated, rxchan.EventSpurious, rxchan.EventInconsistent, and
// txchan.EventInconsistent.
func (drv *Driver) Emitter() *events.Emitter {
	return drv.emitter
}

// RX returns the RX channel manager.
func (drv *Driver) RX() *rxchan.Manager {
	return drv.rx
}

// TX returns the TX channel manager.
func (drv *Driver) TX() *txchan.Manager {
	return drv.tx
}

// IRQ returns the interrupt controller.
func (drv *Driver) IRQ() *irq.Controller {
	return drv.irq
}

// Applier returns the configuration applier.
func (drv *Driver) Applier() *coreconfig.Applier {
	return drv.applier
}

// OpenPort starts accepting packets on a port.
func (drv *Driver) OpenPort(port uint16) error {
	return drv.rx.Open(port)
}

// ClosePort stops accepting packets on a port.
func (drv *Driver) ClosePort(port uint16) error {
	return drv.rx.Close(port)
}

// Recv waits for a packet on a port until ctx expires.
func (drv *Driver) Recv(ctx context.Context, port uint16) (record.Record, error) {
	return drv.rx.Recv(ctx, port)
}

// Send places a packet in the TX ring.
func (drv *Driver) Send(rec record.Record) error {
	return drv.tx.Enqueue(rec)
}

// SendWait places a packet in the TX ring, waiting for space until ctx expires.
func (drv *Driver) SendWait(ctx context.Context, rec record.Record) error {
	return drv.tx.EnqueueWait(ctx, rec)
}

// Close stops the RX loop, closes every socket, disables interrupts, and releases hardware.
// It is safe to call concurrently; every call returns the result of the first.
func (drv *Driver) Close() error {
	drv.closeOnce.Do(func() {
		drv.cancel()
		<-drv.stopped
		drv.rx.CloseAll()
		drv.irq.Disable()
		drv.irq.Acknowledge()
		logger.Info("driver closed")
		drv.closeErr = drv.closeResources()
	})
	return drv.closeErr
}

func (drv *Driver) closeResources() (e error) {
	for i := len(drv.closers) - 1; i >= 0; i-- {
		e = multierr.Append(e, drv.closers[i].Close())
	}
	drv.closers = nil
	return e
}
