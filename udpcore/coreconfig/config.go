// Package coreconfig writes network parameters into the offload core.
//
// The core keeps two copies of its configuration. Register writes land in the pending copy;
// a pulse on the reset/apply register requests the core to copy pending into active, which it
// does once no data transaction is in flight. Apply therefore never blocks on the core, and
// callers that need the new parameters in effect use WaitApplied.
package coreconfig

import (
	"errors"
	"fmt"
	"net"

	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/hw/regs"
	"inet.af/netaddr"
)

var logger = logging.New("CoreConfig")

// ErrConfigNotApplied indicates the core did not activate pending configuration in time.
var ErrConfigNotApplied = errors.New("configuration not applied")

// Defaults.
var (
	DefaultMAC        = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x00}
	DefaultLocalIP    = netaddr.IPv4(192, 168, 1, 128)
	DefaultGateway    = netaddr.IPv4(192, 168, 1, 2)
	DefaultSubnetMask = netaddr.IPv4(255, 255, 255, 0)
)

// Default port range.
const (
	DefaultPortLow  = 7400
	DefaultPortHigh = 7500
)

// Config contains network parameters of the core.
type Config struct {
	// MAC is the local MAC-48 address.
	MAC macaddr.Flag `json:"mac"`

	// LocalIP is the local IPv4 address.
	LocalIP netaddr.IP `json:"localIP"`

	// Gateway is the IPv4 address of the next hop for off-subnet destinations.
	Gateway netaddr.IP `json:"gateway"`

	// SubnetMask is the local subnet mask.
	SubnetMask netaddr.IP `json:"subnetMask"`

	// PortLow and PortHigh delimit the inclusive range of listened UDP ports.
	// Each port in the range is bound to one RX channel.
	PortLow  uint16 `json:"portLow"`
	PortHigh uint16 `json:"portHigh"`

	// SharedMemBase is the bus address of ring buffer memory.
	SharedMemBase uint64 `json:"sharedMemBase"`
}

// ApplyDefaults fills unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.MAC.Empty() {
		cfg.MAC.HardwareAddr = append(net.HardwareAddr{}, DefaultMAC...)
	}
	if cfg.LocalIP.IsZero() {
		cfg.LocalIP = DefaultLocalIP
	}
	if cfg.Gateway.IsZero() {
		cfg.Gateway = DefaultGateway
	}
	if cfg.SubnetMask.IsZero() {
		cfg.SubnetMask = DefaultSubnetMask
	}
	if cfg.PortLow == 0 && cfg.PortHigh == 0 {
		cfg.PortLow, cfg.PortHigh = DefaultPortLow, DefaultPortHigh
	}
}

// Validate checks the configuration against a core with numRx RX channels.
func (cfg Config) Validate(numRx int) error {
	if !macaddr.IsUnicast(cfg.MAC.HardwareAddr) {
		return fmt.Errorf("MAC %s is not a unicast MAC-48 address", cfg.MAC)
	}
	for _, f := range []struct {
		name string
		ip   netaddr.IP
	}{{"LocalIP", cfg.LocalIP}, {"Gateway", cfg.Gateway}, {"SubnetMask", cfg.SubnetMask}} {
		if !f.ip.Is4() {
			return fmt.Errorf("%s %s is not IPv4", f.name, f.ip)
		}
	}
	if mask := record.IPToUint32(cfg.SubnetMask); ^mask&(^mask+1) != 0 {
		return fmt.Errorf("SubnetMask %s is not contiguous", cfg.SubnetMask)
	}
	if cfg.PortLow > cfg.PortHigh {
		return fmt.Errorf("PortLow %d exceeds PortHigh %d", cfg.PortLow, cfg.PortHigh)
	}
	if n := cfg.NumPorts(); n > numRx {
		return fmt.Errorf("port range of %d exceeds %d RX channels", n, numRx)
	}
	if cfg.SharedMemBase > 0xFFFFFFFF {
		return fmt.Errorf("SharedMemBase %X is not 32-bit addressable", cfg.SharedMemBase)
	}
	return nil
}

// NumPorts returns the number of ports in the listened range.
func (cfg Config) NumPorts() int {
	return int(cfg.PortHigh) - int(cfg.PortLow) + 1
}

// HasPort determines whether port is within the listened range.
func (cfg Config) HasPort(port uint16) bool {
	return port >= cfg.PortLow && port <= cfg.PortHigh
}

// Prefix returns the local subnet.
func (cfg Config) Prefix() netaddr.IPPrefix {
	ones := 0
	for mask := record.IPToUint32(cfg.SubnetMask); mask != 0; mask <<= 1 {
		ones++
	}
	p, _ := cfg.LocalIP.Prefix(uint8(ones))
	return p
}

// Registers encodes the configuration as register values keyed by offset.
func (cfg Config) Registers() map[uint32]uint32 {
	hi, lo := macaddr.ToRegisters(cfg.MAC.HardwareAddr)
	return map[uint32]uint32{
		regs.MACLo:      lo,
		regs.MACHi:      hi,
		regs.Gateway:    record.IPToUint32(cfg.Gateway),
		regs.SubnetMask: record.IPToUint32(cfg.SubnetMask),
		regs.LocalIP:    record.IPToUint32(cfg.LocalIP),
		regs.SharedMem:  uint32(cfg.SharedMemBase),
		regs.PortLow:    uint32(cfg.PortLow),
		regs.PortHigh:   uint32(cfg.PortHigh),
	}
}

// FromRegisters decodes register values.
func FromRegisters(values map[uint32]uint32) (cfg Config) {
	cfg.MAC.HardwareAddr = macaddr.FromRegisters(values[regs.MACHi], values[regs.MACLo])
	cfg.Gateway = record.IPFromUint32(values[regs.Gateway])
	cfg.SubnetMask = record.IPFromUint32(values[regs.SubnetMask])
	cfg.LocalIP = record.IPFromUint32(values[regs.LocalIP])
	cfg.SharedMemBase = uint64(values[regs.SharedMem])
	cfg.PortLow = uint16(values[regs.PortLow])
	cfg.PortHigh = uint16(values[regs.PortHigh])
	return cfg
}
