// Command udpcore-ctrl operates a UDP offload core.
package main

import (
	"context"
	"os"
	"os/signal"
	"sort"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/core/version"
	"github.com/usnistgov/udpcore/core/yamlflag"
	"github.com/usnistgov/udpcore/hw/irq"
	"github.com/usnistgov/udpcore/hw/regio"
	"github.com/usnistgov/udpcore/udpcore"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("main")

var (
	cfg     udpcore.Config
	devMem  regio.DevMemConfig
	irqPath string
	sim     bool
	drv     *udpcore.Driver
	peer    *simPeer
)

func openDriver(c *cli.Context) (e error) {
	cfg.ApplyDefaults()
	var hw udpcore.Hardware
	if sim {
		if peer, e = newSimPeer(cfg); e != nil {
			return e
		}
		hw = udpcore.SimHardware(peer.dev)
	} else {
		devMem.SharedMemBase = cfg.Core.SharedMemBase
		devMem.SharedMemSize = int(cfg.Geometry.TotalSize())
		if hw, e = udpcore.DevMemHardware(devMem, irqPath); e != nil {
			return e
		}
	}

	if drv, e = udpcore.Open(hw, cfg); e != nil {
		return e
	}
	logger.Debug("driver ready", zap.Any("version", version.V), zap.Bool("sim", sim))
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
}

var app = &cli.App{
	Version: version.V.String(),
	Usage: "Operate UDP offload core.",
	Flags: []cli.Flag{
		&cli.GenericFlag{
			Name:  "config",
			Usage: "driver configuration `YAML` or @filename",
			Value: yamlflag.New(&cfg),
		},
		&cli.BoolFlag{
			Name:        "sim",
			Usage:       "use a simulated core with an echoing peer",
			Destination: &sim,
		},
		&cli.StringFlag{
			Name:        "devmem",
			Usage:       "memory device `path`",
			Value:       "/dev/mem",
			Destination: &devMem.Path,
		},
		&cli.Uint64Flag{
			Name:        "regbase",
			Usage:       "register window physical `address`",
			Value:       0xA0010000,
			Destination: &devMem.RegisterBase,
		},
		&cli.StringFlag{
			Name:        "irq",
			Usage:       "interrupt device `path`, empty to poll",
			Value:       irq.DefaultDevIRQPath,
			Destination: &irqPath,
		},
	},
	After: func(c *cli.Context) error {
		if drv == nil {
			return nil
		}
		return drv.Close()
	},
}

func defineCommand(command *cli.Command) {
	app.Commands = append(app.Commands, command)
}

func main() {
	sort.Sort(cli.CommandsByName(app.Commands))
	e := app.Run(os.Args)
	if e != nil {
		logger.Fatal("exit", zap.Error(e))
	}
}
