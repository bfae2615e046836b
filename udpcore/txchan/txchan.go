// Package txchan places packets into the TX ring of the offload core.
package txchan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/math"
	"github.com/usnistgov/udpcore/core/events"
	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/nnduration"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"go.uber.org/zap"
)

var logger = logging.New("TxChan")

// EventInconsistent is emitted with (e error) when the TX ring halts.
// It is emitted with the Manager locked; listeners must not call back into the Manager.
const EventInconsistent = "txInconsistent"

// Config contains Manager configuration.
type Config struct {
	// RetryInitial is the first wait in EnqueueWait while the ring is full.
	// The default is 20us.
	RetryInitial nnduration.Microseconds `json:"retryInitial,omitempty"`

	// RetryMaximum is the longest wait in EnqueueWait; waits double until this limit.
	// The default is 1ms.
	RetryMaximum nnduration.Microseconds `json:"retryMaximum,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.RetryInitial == 0 {
		cfg.RetryInitial = 20
	}
	if cfg.RetryMaximum == 0 {
		cfg.RetryMaximum = 1000
	}
	cfg.RetryMaximum = nnduration.Microseconds(math.MaxInt64(int64(cfg.RetryMaximum), int64(cfg.RetryInitial)))
}

// Counters contains TX counters.
type Counters struct {
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
	Full     uint64 `json:"full"`
	Oversize uint64 `json:"oversize"`
}

// Manager owns the TX ring.
type Manager struct {
	cfg     Config
	bus     regio.Bus
	mem     regio.Memory
	geom    regs.Geometry
	emitter *events.Emitter

	mutex  sync.Mutex
	cnt    Counters
	halted error
}

// New creates a Manager.
// If emitter is nil, the Manager creates its own.
func New(bus regio.Bus, mem regio.Memory, geom regs.Geometry, cfg Config, emitter *events.Emitter) *Manager {
	cfg.applyDefaults()
	if emitter == nil {
		emitter = events.NewEmitter()
	}
	return &Manager{
		cfg:     cfg,
		bus:     bus,
		mem:     mem,
		geom:    geom,
		emitter: emitter,
	}
}

// Emitter returns the event emitter.
func (m *Manager) Emitter() *events.Emitter {
	return m.emitter
}

// Counters returns a snapshot of counters.
func (m *Manager) Counters() Counters {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.cnt
}

// Status reads TX ring state.
func (m *Manager) Status() (d regs.Descriptor, e error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.status()
}

func (m *Manager) status() (d regs.Descriptor, e error) {
	d = regs.Descriptor{
		Head:   int(m.bus.Read32(regs.TxHead)),
		Tail:   int(m.bus.Read32(regs.TxTail)),
		Empty:  m.bus.Read32(regs.TxEmpty) != 0,
		Full:   m.bus.Read32(regs.TxFull) != 0,
		Pushed: m.bus.Read32(regs.TxPushed) != 0,
	}
	return d, d.Validate(m.geom.RingLength)
}

// Reset clears the pushed handshake bit.
func (m *Manager) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.bus.Write32(regs.TxPushed, 0)
}

// Halted returns the error that halted the TX ring, or nil.
func (m *Manager) Halted() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.halted
}

// Reinit clears a halted state after re-reading a consistent TX ring state.
func (m *Manager) Reinit() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	d, e := m.status()
	if e != nil {
		return e
	}
	if m.halted != nil {
		m.halted = nil
		logger.Info("TX ring reinitialized", zap.Stringer("descriptor", d))
	}
	return nil
}

// Enqueue writes rec into the slot at TX head and pulses the pushed bit.
// It returns ringbuffer.ErrBufferFull if the ring is full, or record.ErrTruncated if rec does
// not fit in a slot; in both cases nothing is written.
// An inconsistent ring state halts the TX ring: Enqueue fails with regs.ErrDescriptorInconsistent
// until Reinit succeeds.
func (m *Manager) Enqueue(rec record.Record) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.halted != nil {
		return m.halted
	}
	if rec.WireLen() > m.geom.SlotSize {
		m.cnt.Oversize++
		return fmt.Errorf("%w: %d > %d", record.ErrTruncated, rec.WireLen(), m.geom.SlotSize)
	}

	d, e := m.status()
	if e != nil {
		m.halted = e
		logger.Error("TX ring halted", zap.Error(e), zap.Stringer("descriptor", d))
		m.emitter.Emit(EventInconsistent, e)
		return e
	}
	if d.Full {
		m.cnt.Full++
		return ringbuffer.ErrBufferFull
	}

	wire := make([]byte, rec.WireLen())
	if e = rec.Encode(wire); e != nil {
		return e
	}
	if _, e = m.mem.WriteAt(wire, int64(m.geom.TxSlot(d.Head))); e != nil {
		return fmt.Errorf("write TX slot %d %w", d.Head, e)
	}
	regio.Pulse(m.bus, regs.TxPushed, 0)

	m.cnt.Packets++
	m.cnt.Bytes += uint64(len(rec.Payload))
	return nil
}

// EnqueueWait retries Enqueue while the ring is full, until ctx expires.
func (m *Manager) EnqueueWait(ctx context.Context, rec record.Record) error {
	backoff, maximum := m.cfg.RetryInitial.Duration(), m.cfg.RetryMaximum.Duration()
	for {
		e := m.Enqueue(rec)
		if !errors.Is(e, ringbuffer.ErrBufferFull) {
			return e
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", regio.ErrTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.MinInt64(int64(backoff*2), int64(maximum)))
	}
}
