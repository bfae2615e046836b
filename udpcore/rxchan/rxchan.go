// Package rxchan consumes packets from the RX rings of the offload core.
//
// Each listened UDP port has one RX channel: a ring in shared memory plus a descriptor register
// carrying ring indices, full/empty flags, the pop handshake bit, and the open-socket flag.
// The Manager waits on the interrupt line (or a poll ticker when interrupts are unavailable),
// walks open channels within a budget, copies each packet out of its slot, acknowledges the
// interrupt, and pulses the pop bit.
package rxchan

import (
	"errors"

	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/nnduration"
	"github.com/usnistgov/udpcore/hw/record"
)

var logger = logging.New("RxChan")

// Event names emitted on the Manager's emitter.
// Per-channel events are emitted with the channel locked; listeners must not call back into
// the same channel.
const (
	// EventTruncated is emitted with (port uint16, e error) when a packet exceeds slot capacity.
	EventTruncated = "truncated"
	// EventSpurious is emitted with (e error) when an interrupt finds no channel holding data.
	EventSpurious = "spurious"
	// EventInconsistent is emitted with (port uint16, e error) when a channel halts.
	EventInconsistent = "inconsistent"
)

// ErrNoChannel indicates a port outside the listened range.
var ErrNoChannel = errors.New("port has no RX channel")

// ErrClosed indicates the channel is not open.
var ErrClosed = errors.New("RX channel closed")

// Config contains Manager configuration.
type Config struct {
	// Budget is the maximum number of packets consumed per activation before interrupts are
	// re-enabled. The default is 64.
	Budget int `json:"budget,omitempty"`

	// PollInterval is the polling period when no interrupt line is available.
	// The default is 1ms.
	PollInterval nnduration.Milliseconds `json:"pollInterval,omitempty"`

	// QueueCapacity is the number of received packets buffered per channel.
	// When the buffer is full, packets stay in the hardware ring.
	// The default is 64.
	QueueCapacity int `json:"queueCapacity,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.Budget <= 0 {
		cfg.Budget = 64
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
}

// Delivery is a received packet.
// If Err is not nil, Record is incomplete and must not be treated as valid.
type Delivery struct {
	Record record.Record
	Err    error
}

// Counters contains per-channel counters.
type Counters struct {
	Packets   uint64 `json:"packets"`
	Bytes     uint64 `json:"bytes"`
	Truncated uint64 `json:"truncated"`
	Malformed uint64 `json:"malformed"`
}
