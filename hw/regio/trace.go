package regio

import (
	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/hw/regs"
	"go.uber.org/zap"
)

type tracedBus struct {
	Bus
	logger *zap.Logger
}

// Traced wraps a Bus to log every register write at debug level.
func Traced(bus Bus, logger *zap.Logger) Bus {
	if logger == nil {
		logger = logging.New("RegTrace")
	}
	return tracedBus{bus, logger}
}

func (tb tracedBus) Write32(offset, value uint32) {
	tb.logger.Debug("write", zap.String("reg", regs.Name(offset)), logging.Reg("value", offset, value))
	tb.Bus.Write32(offset, value)
}
