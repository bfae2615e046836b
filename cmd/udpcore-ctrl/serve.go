package main

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/udpcore/core/subtract"
	"github.com/usnistgov/udpcore/udpcore/rxchan"
	"github.com/usnistgov/udpcore/udpcore/txchan"
	"go.uber.org/zap"
)

type serveCounters struct {
	RX       rxchan.Counters
	TX       txchan.Counters
	Spurious uint64
}

func readServeCounters() (cnt serveCounters) {
	for _, ch := range drv.RX().Channels() {
		c := ch.Counters()
		cnt.RX.Packets += c.Packets
		cnt.RX.Bytes += c.Bytes
		cnt.RX.Truncated += c.Truncated
		cnt.RX.Malformed += c.Malformed
	}
	cnt.TX = drv.TX().Counters()
	cnt.Spurious = drv.RX().NSpurious()
	return cnt
}

func init() {
	var interval time.Duration
	defineCommand(&cli.Command{
		Name:  "serve",
		Usage: "Keep the core running and report counters, with systemd notification.",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:        "open",
				Usage:       "`port` to open",
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "counter report `interval`",
				Value:       10 * time.Second,
				Destination: &interval,
			},
		},
		Before: openDriver,
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c)
			defer cancel()

			emitter := drv.Emitter()
			defer emitter.On(rxchan.EventInconsistent, func(port uint16, e error) {
				logger.Error("channel halted", zap.Uint16("port", port), zap.Error(e))
			})()
			defer emitter.On(txchan.EventInconsistent, func(e error) {
				logger.Error("TX ring halted", zap.Error(e))
			})()
			defer emitter.On(rxchan.EventTruncated, func(port uint16, e error) {
				logger.Warn("packet truncated", zap.Uint16("port", port), zap.Error(e))
			})()

			for _, port := range c.IntSlice("open") {
				if e := drv.OpenPort(uint16(port)); e != nil {
					return e
				}
			}

			daemon.SdNotify(false, daemon.SdNotifyReady)
			var watchdog <-chan time.Time
			if d, e := daemon.SdWatchdogEnabled(false); d > 0 && e == nil {
				t := time.NewTicker(d / 2)
				defer t.Stop()
				watchdog = t.C
			}
			report := time.NewTicker(interval)
			defer report.Stop()

			last := readServeCounters()
			for {
				select {
				case <-ctx.Done():
					logger.Info("shutdown requested by signal")
					daemon.SdNotify(false, daemon.SdNotifyStopping)
					return nil
				case <-watchdog:
					daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				case <-report.C:
					curr := readServeCounters()
					diff := subtract.Sub(curr, last)
					last = curr
					logger.Info("counters",
						zap.String("rx-packets", humanize.Comma(int64(diff.RX.Packets))),
						zap.String("rx-bytes", humanize.Bytes(diff.RX.Bytes)),
						zap.Uint64("rx-truncated", diff.RX.Truncated),
						zap.String("tx-packets", humanize.Comma(int64(diff.TX.Packets))),
						zap.String("tx-bytes", humanize.Bytes(diff.TX.Bytes)),
						zap.Uint64("tx-full", diff.TX.Full),
						zap.Uint64("spurious", diff.Spurious),
					)
				}
			}
		},
	})
}
