// Package tunbridge moves IPv4/UDP packets between a TUN device and the driver.
package tunbridge

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/udpcore"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("TunBridge")

// Config contains Bridge configuration.
type Config struct {
	// Ports lists driver ports whose packets are written to the TUN device.
	// The default is every port in the configured range.
	Ports []uint16 `json:"ports,omitempty"`

	// MTU is the read buffer size.
	// The default is udpframe.MTU.
	MTU int `json:"mtu,omitempty"`
}

// Counters contains Bridge counters.
type Counters struct {
	ToCore      uint64 `json:"toCore"`
	FromCore    uint64 `json:"fromCore"`
	NotUDP      uint64 `json:"notUdp"`
	SendErrors  uint64 `json:"sendErrors"`
	WriteErrors uint64 `json:"writeErrors"`
}

// Bridge moves packets between a TUN device and a Driver.
type Bridge struct {
	cfg Config
	drv *udpcore.Driver
	dev io.ReadWriter

	mutex sync.Mutex
	cnt   Counters
}

// New creates a Bridge.
func New(drv *udpcore.Driver, dev io.ReadWriter, cfg Config) *Bridge {
	if len(cfg.Ports) == 0 {
		core := drv.Config().Core
		for p := int(core.PortLow); p <= int(core.PortHigh); p++ {
			cfg.Ports = append(cfg.Ports, uint16(p))
		}
	}
	if cfg.MTU <= 0 {
		cfg.MTU = udpframe.MTU
	}
	return &Bridge{cfg: cfg, drv: drv, dev: dev}
}

// Counters returns a snapshot of counters.
func (b *Bridge) Counters() Counters {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.cnt
}

func (b *Bridge) count(f func(cnt *Counters)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	f(&b.cnt)
}

// Run opens the ports and moves packets until ctx is cancelled or the TUN device fails.
// The caller should close the TUN device after cancelling ctx, so that a pending read returns.
func (b *Bridge) Run(ctx context.Context) (e error) {
	for i, port := range b.cfg.Ports {
		if e = b.drv.OpenPort(port); e != nil {
			for _, p := range b.cfg.Ports[:i] {
				b.drv.ClosePort(p)
			}
			return e
		}
	}
	defer func() {
		for _, p := range b.cfg.Ports {
			e = multierr.Append(e, b.drv.ClosePort(p))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var writeMutex sync.Mutex
	for _, port := range b.cfg.Ports {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			b.fromCore(ctx, port, &writeMutex)
		}(port)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- b.toCore(ctx) }()

	select {
	case <-ctx.Done():
	case e = <-readErr:
		cancel()
	}
	wg.Wait()
	if errors.Is(e, io.EOF) {
		e = nil
	}
	return e
}

func (b *Bridge) toCore(ctx context.Context) error {
	buf := make([]byte, b.cfg.MTU)
	parser := udpframe.NewParser()
	for {
		n, e := b.dev.Read(buf)
		if e != nil {
			return e
		}
		rec, e := parser.ParseIPv4(buf[:n])
		if e != nil {
			b.count(func(cnt *Counters) { cnt.NotUDP++ })
			continue
		}
		if e = b.drv.SendWait(ctx, rec); e != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.count(func(cnt *Counters) { cnt.SendErrors++ })
			logger.Warn("send error", zap.Stringer("record", rec), zap.Error(e))
			continue
		}
		b.count(func(cnt *Counters) { cnt.ToCore++ })
	}
}

func (b *Bridge) fromCore(ctx context.Context, port uint16, writeMutex *sync.Mutex) {
	for {
		rec, e := b.drv.Recv(ctx, port)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(e, record.ErrTruncated):
			logger.Debug("truncated packet dropped", zap.Stringer("record", rec))
			continue
		case e != nil:
			logger.Warn("receive error", zap.Uint16("port", port), zap.Error(e))
			return
		}

		pkt, e := udpframe.ComposeIPv4(rec)
		if e == nil {
			writeMutex.Lock()
			_, e = b.dev.Write(pkt)
			writeMutex.Unlock()
		}
		if e != nil {
			b.count(func(cnt *Counters) { cnt.WriteErrors++ })
			logger.Warn("TUN write error", zap.Error(e))
			continue
		}
		b.count(func(cnt *Counters) { cnt.FromCore++ })
	}
}
