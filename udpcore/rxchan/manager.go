package rxchan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/usnistgov/udpcore/core/events"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"go.uber.org/zap"
)

// Hardware contains the device handles used by a Manager.
type Hardware struct {
	Bus      regio.Bus
	Memory   regio.Memory
	Geometry regs.Geometry
	IRQ      *irq.Controller

	// Line delivers interrupt notifications.
	// If nil, the Manager polls at Config.PollInterval.
	Line *irq.Line

	// Emitter receives channel events.
	// If nil, the Manager creates its own.
	Emitter *events.Emitter
}

// Manager owns the RX channels of a contiguous port range.
type Manager struct {
	cfg      Config
	bus      regio.Bus
	mem      regio.Memory
	geom     regs.Geometry
	layout   regs.Layout
	irq      *irq.Controller
	line     *irq.Line
	emitter  *events.Emitter
	portLow  uint16
	channels []*Channel

	openMutex sync.RWMutex
	openList  []*Channel

	spuriousMutex sync.Mutex
	nSpurious     uint64

	// parkMutex guards parked and freed, and orders them with Unmask.
	parkMutex sync.Mutex
	parked    bool
	freed     bool
}

// New creates a Manager with numPorts channels starting at portLow.
func New(hw Hardware, portLow uint16, numPorts int, cfg Config) (*Manager, error) {
	cfg.applyDefaults()
	if numPorts <= 0 || numPorts > hw.Geometry.NumRx {
		return nil, fmt.Errorf("%d ports do not fit in %d RX channels", numPorts, hw.Geometry.NumRx)
	}
	if hw.IRQ == nil {
		hw.IRQ = irq.NewController(hw.Bus, nil)
	}
	if hw.Emitter == nil {
		hw.Emitter = events.NewEmitter()
	}

	m := &Manager{
		cfg:     cfg,
		bus:     hw.Bus,
		mem:     hw.Memory,
		geom:    hw.Geometry,
		layout:  hw.Geometry.Layout(),
		irq:     hw.IRQ,
		line:    hw.Line,
		emitter: hw.Emitter,
		portLow: portLow,
	}
	for i := 0; i < numPorts; i++ {
		m.channels = append(m.channels, newChannel(m, i))
	}
	return m, nil
}

// Emitter returns the event emitter.
func (m *Manager) Emitter() *events.Emitter {
	return m.emitter
}

// Channels returns all channels in port order.
func (m *Manager) Channels() []*Channel {
	return append([]*Channel{}, m.channels...)
}

// Channel returns the channel of a port.
func (m *Manager) Channel(port uint16) (*Channel, error) {
	i := int(port) - int(m.portLow)
	if i < 0 || i >= len(m.channels) {
		return nil, fmt.Errorf("%w: %d", ErrNoChannel, port)
	}
	return m.channels[i], nil
}

// Open sets the open-socket flag of a port, so that the core starts accepting its packets.
func (m *Manager) Open(port uint16) error {
	ch, e := m.Channel(port)
	if e != nil {
		return e
	}
	m.openMutex.Lock()
	defer m.openMutex.Unlock()
	if ch.IsOpen() {
		return nil
	}
	ch.setOpen(true)
	m.openList = append(m.openList, ch)
	return nil
}

// Close clears the open-socket flag of a port.
// Packets already in the hardware ring or the channel queue are kept, and are delivered if the
// port is reopened.
func (m *Manager) Close(port uint16) error {
	ch, e := m.Channel(port)
	if e != nil {
		return e
	}
	m.openMutex.Lock()
	defer m.openMutex.Unlock()
	ch.setOpen(false)
	for i, o := range m.openList {
		if o == ch {
			m.openList = append(m.openList[:i], m.openList[i+1:]...)
			break
		}
	}
	return nil
}

// CloseAll clears the open-socket flag of every channel.
func (m *Manager) CloseAll() {
	m.openMutex.Lock()
	defer m.openMutex.Unlock()
	for _, ch := range m.channels {
		ch.setOpen(false)
	}
	m.openList = nil
}

// Probe determines whether a packet is ready on a port.
func (m *Manager) Probe(port uint16) (bool, error) {
	ch, e := m.Channel(port)
	if e != nil {
		return false, e
	}
	return ch.Probe()
}

// Recv waits for a packet on a port until ctx expires.
func (m *Manager) Recv(ctx context.Context, port uint16) (rec record.Record, e error) {
	ch, e := m.Channel(port)
	if e != nil {
		return rec, e
	}
	if !ch.IsOpen() {
		return rec, fmt.Errorf("%w: %d", ErrClosed, port)
	}
	return ch.Recv(ctx)
}

// Reinit clears a halted channel.
func (m *Manager) Reinit(port uint16) error {
	ch, e := m.Channel(port)
	if e != nil {
		return e
	}
	return ch.Reinit()
}

// NSpurious returns the number of spurious interrupts.
func (m *Manager) NSpurious() uint64 {
	m.spuriousMutex.Lock()
	defer m.spuriousMutex.Unlock()
	return m.nSpurious
}

// Poll walks open channels round-robin until none holds a packet or budget packets are consumed.
// It returns the number of consumed packets, and whether any channel held data.
func (m *Manager) Poll(budget int) (processed int, hasData bool) {
	processed, hasData, _ = m.poll(budget)
	return
}

func (m *Manager) poll(budget int) (processed int, hasData, held bool) {
	m.openMutex.RLock()
	list := append([]*Channel{}, m.openList...)
	m.openMutex.RUnlock()

	for processed < budget {
		found := false
		held = false
		for _, ch := range list {
			if processed >= budget {
				break
			}
			received, data, h := ch.receiveOne()
			hasData = hasData || data
			held = held || h
			if received {
				found = true
				processed++
			}
		}
		if !found {
			break
		}
	}
	return processed, hasData, held
}

// Service handles one interrupt: it masks global interrupts, polls in budgeted rounds until a
// round falls short of the budget, then unmasks.
//
// If a packet was left in the hardware ring because its delivery queue is full, the interrupt
// level stays asserted, so Service leaves global interrupts masked. The Manager is then parked
// until Recv frees queue space; see Parked.
func (m *Manager) Service(ctx context.Context) (total int) {
	m.irq.Mask()
	m.parkMutex.Lock()
	m.freed = false
	m.parkMutex.Unlock()

	hasData, held := false, false
	for ctx.Err() == nil {
		n, data, h := m.poll(m.cfg.Budget)
		total += n
		hasData = hasData || data
		held = h
		if n < m.cfg.Budget {
			break
		}
	}

	if !hasData {
		m.spuriousMutex.Lock()
		m.nSpurious++
		m.spuriousMutex.Unlock()
		logger.Debug("spurious interrupt")
		m.emitter.Emit(EventSpurious, irq.ErrSpuriousInterrupt)
	}

	m.parkMutex.Lock()
	defer m.parkMutex.Unlock()
	if held && !m.freed {
		if !m.parked {
			logger.Debug("interrupts parked on full delivery queue")
		}
		m.parked = true
		return total
	}
	m.parked = false
	m.irq.Unmask()
	return total
}

// Parked determines whether global interrupts are left masked because of a full delivery queue.
func (m *Manager) Parked() bool {
	m.parkMutex.Lock()
	defer m.parkMutex.Unlock()
	return m.parked
}

// resume is called after a delivery is taken from a channel queue.
func (m *Manager) resume() {
	m.parkMutex.Lock()
	defer m.parkMutex.Unlock()
	m.freed = true
	if m.parked {
		m.parked = false
		m.irq.Unmask()
	}
}

// Run consumes packets until ctx is cancelled.
// While parked, other channels are serviced every PollInterval.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.PollInterval.DurationOr(1)
	var irqC <-chan struct{}
	var pollC <-chan time.Time
	if m.line != nil {
		irqC = m.line.C()
	} else {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pollC = ticker.C
	}
	logger.Info("RX loop started", zap.Bool("irq", m.line != nil), zap.Int("channels", len(m.channels)))
	defer logger.Info("RX loop stopped")

	parkTimer := time.NewTimer(interval)
	parkTimer.Stop()
	defer parkTimer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-irqC:
			m.Service(ctx)
		case <-parkTimer.C:
			m.Service(ctx)
		case <-pollC:
			m.Poll(m.cfg.Budget)
			continue
		}

		if !parkTimer.Stop() {
			select {
			case <-parkTimer.C:
			default:
			}
		}
		if m.Parked() {
			parkTimer.Reset(interval)
		}
	}
}
