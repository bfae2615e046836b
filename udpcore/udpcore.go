// Package udpcore drives a UDP/Ethernet offload core through its register page and shared memory.
package udpcore

import (
	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/nnduration"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/hw/regs"
	"github.com/usnistgov/udpcore/udpcore/coreconfig"
	"github.com/usnistgov/udpcore/udpcore/rxchan"
	"github.com/usnistgov/udpcore/udpcore/txchan"
)

var logger = logging.New("UdpCore")

// ErrTimeout indicates a bounded wait has expired.
var ErrTimeout = regio.ErrTimeout

// Config contains Driver configuration.
type Config struct {
	Core     coreconfig.Config `json:"core"`
	Geometry regs.Geometry     `json:"geometry"`
	RX       rxchan.Config     `json:"rx"`
	TX       txchan.Config     `json:"tx"`

	// DisableIRQ selects polling even if an interrupt source is available.
	DisableIRQ bool `json:"disableIrq,omitempty"`

	// ApplyTimeout is how long Open waits for the core to activate configuration.
	// Zero skips the wait.
	ApplyTimeout nnduration.Milliseconds `json:"applyTimeout,omitempty"`
}

// ApplyDefaults fills unset fields with defaults.
func (cfg *Config) ApplyDefaults() {
	cfg.Core.ApplyDefaults()
	cfg.Geometry.ApplyDefaults()
}

// Validate checks configuration.
func (cfg Config) Validate() error {
	if e := cfg.Geometry.Validate(); e != nil {
		return e
	}
	return cfg.Core.Validate(cfg.Geometry.NumRx)
}
