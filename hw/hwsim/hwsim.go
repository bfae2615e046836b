// Package hwsim is a behavioral model of the offload core.
//
// Device implements the register bus and owns shared memory, so that the driver can run against
// it without hardware. It keeps one ring per RX channel plus the TX ring, reacts to pulse edges,
// gates configuration updates on in-flight transactions, raises a level-triggered interrupt while
// an open channel holds data, and terminates the Ethernet side with ARP resolution.
package hwsim

import (
	"errors"
	"fmt"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/hw/ringbuffer"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

var logger = logging.New("HwSim")

// Drop reasons reported by Deliver and Receive.
var (
	ErrInReset      = errors.New("device held in reset")
	ErrFiltered     = errors.New("packet not addressed to this device")
	ErrSocketClosed = errors.New("socket closed")
)

// Config contains Device configuration.
type Config struct {
	regs.Geometry

	// AutoTransmit causes the device to send TX packets as soon as they are pushed.
	// Otherwise, they stay in the TX ring until Transmit is called.
	AutoTransmit bool `json:"autoTransmit,omitempty"`

	// ARPCacheSize is the capacity of the ARP cache.
	// The default is 64.
	ARPCacheSize int `json:"arpCacheSize,omitempty"`
}

func (cfg *Config) applyDefaults() {
	cfg.Geometry.ApplyDefaults()
	if cfg.ARPCacheSize <= 0 {
		cfg.ARPCacheSize = 64
	}
}

// Counters contains Device counters.
type Counters struct {
	RxFrames     uint64 `json:"rxFrames"`
	RxDelivered  uint64 `json:"rxDelivered"`
	RxTruncated  uint64 `json:"rxTruncated"`
	RxDropFilter uint64 `json:"rxDropFilter"`
	RxDropClosed uint64 `json:"rxDropClosed"`
	RxDropFull   uint64 `json:"rxDropFull"`
	TxPackets    uint64 `json:"txPackets"`
	TxOverrun    uint64 `json:"txOverrun"`
	TxDropped    uint64 `json:"txDropped"`
	ARPRequests  uint64 `json:"arpRequests"`
	ARPReplies   uint64 `json:"arpReplies"`
	Applied      uint64 `json:"applied"`
}

type rxChannel struct {
	ring   *ringbuffer.Ring[int]
	open   bool
	popped bool
	forced *uint32
}

// Device is a simulated offload core.
type Device struct {
	mutex  sync.Mutex
	cfg    Config
	layout regs.Layout
	reg    map[uint32]uint32
	active map[uint32]uint32
	mem    regio.Bytes
	rx     []rxChannel
	tx     *ringbuffer.Ring[int]

	txPushed     bool
	inReset      bool
	applyPending bool
	inFlight     int

	line       *irq.Line
	arp        *lru.Cache
	arpWaiting map[netaddr.IP]bool
	parser     *udpframe.Parser
	onTransmit func(frame []byte)
	outbox     [][]byte
	cnt        Counters
}

var _ regio.Bus = (*Device)(nil)

// New creates a Device.
func New(cfg Config) (*Device, error) {
	cfg.applyDefaults()
	if e := cfg.Geometry.Validate(); e != nil {
		return nil, e
	}
	arp, e := lru.New(cfg.ARPCacheSize)
	if e != nil {
		return nil, fmt.Errorf("lru.New %w", e)
	}

	d := &Device{
		cfg:        cfg,
		layout:     cfg.Geometry.Layout(),
		reg:        map[uint32]uint32{},
		active:     map[uint32]uint32{},
		mem:        make(regio.Bytes, cfg.Geometry.TotalSize()),
		rx:         make([]rxChannel, cfg.NumRx),
		tx:         ringbuffer.New[int](cfg.RingLength),
		arp:        arp,
		arpWaiting: map[netaddr.IP]bool{},
		parser:     udpframe.NewParser(),
	}
	for i := range d.rx {
		d.rx[i].ring = ringbuffer.New[int](cfg.RingLength)
	}
	return d, nil
}

// Geometry returns shared memory geometry.
func (d *Device) Geometry() regs.Geometry {
	return d.cfg.Geometry
}

// Memory returns shared memory.
func (d *Device) Memory() regio.Memory {
	return d.mem
}

// AttachLine connects the interrupt output.
func (d *Device) AttachLine(line *irq.Line) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.line = line
}

// OnTransmit sets a callback that receives every transmitted Ethernet frame.
// The callback is invoked without holding internal locks, so it may call Receive.
func (d *Device) OnTransmit(cb func(frame []byte)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onTransmit = cb
}

// Counters returns a snapshot of counters.
func (d *Device) Counters() Counters {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.cnt
}

// RxStatus returns the ring status of an RX channel.
func (d *Device) RxStatus(ch int) ringbuffer.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.rx[ch].ring.Status()
}

// TxStatus returns the ring status of the TX ring.
func (d *Device) TxStatus() ringbuffer.Status {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.tx.Status()
}

// ForceDescriptor makes reads of an RX descriptor return word until ReleaseDescriptor.
// It emulates a corrupted or desynchronized descriptor.
func (d *Device) ForceDescriptor(ch int, word uint32) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.rx[ch].forced = &word
}

// ReleaseDescriptor undoes ForceDescriptor.
func (d *Device) ReleaseDescriptor(ch int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.rx[ch].forced = nil
}

// BeginTransaction marks a data transaction in flight.
// Configuration apply requests are deferred while any transaction is in flight.
func (d *Device) BeginTransaction() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.inFlight++
}

// EndTransaction completes a data transaction, performing a deferred apply if one is pending.
func (d *Device) EndTransaction() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.inFlight > 0 {
		d.inFlight--
	}
	d.tryApply()
}

func (d *Device) tryApply() {
	if !d.applyPending || d.inFlight > 0 {
		return
	}
	for _, off := range regs.ConfigRegisters {
		d.active[off] = d.reg[off]
	}
	d.applyPending = false
	d.cnt.Applied++
	logger.Debug("configuration applied",
		zap.Stringer("local-ip", d.localIP()),
		zap.Uint32("port-low", d.active[regs.PortLow]),
		zap.Uint32("port-high", d.active[regs.PortHigh]),
	)
}

func (d *Device) localMAC() net.HardwareAddr {
	return macaddr.FromRegisters(d.active[regs.MACHi], d.active[regs.MACLo])
}

func (d *Device) localIP() netaddr.IP {
	return ipFromReg(d.active[regs.LocalIP])
}

func ipFromReg(v uint32) netaddr.IP {
	return netaddr.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (d *Device) unlockAndFlush() {
	outbox, cb := d.outbox, d.onTransmit
	d.outbox = nil
	d.mutex.Unlock()
	if cb == nil {
		return
	}
	for _, frame := range outbox {
		cb(frame)
	}
}

// raise asserts the interrupt if an open channel holds data and interrupts are enabled.
func (d *Device) raise() {
	if !d.level() || d.reg[regs.GIE] == 0 || d.reg[regs.IER]&irq.MaskRxPush == 0 {
		return
	}
	d.reg[regs.ISR] |= irq.MaskRxPush
	if d.line != nil {
		d.line.Raise()
	}
}

func (d *Device) level() bool {
	for i := range d.rx {
		if ch := &d.rx[i]; ch.open && ch.ring.Occupancy() > 0 {
			return true
		}
	}
	return false
}
