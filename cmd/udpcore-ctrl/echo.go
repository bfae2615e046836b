package main

import (
	"errors"
	"net"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"github.com/usnistgov/udpcore/udpcore/udpsock"
	"go.uber.org/zap"
)

func init() {
	var port int
	defineCommand(&cli.Command{
		Name:  "echo",
		Usage: "Reflect every datagram received on a port.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Usage:       "local `port`, 0 for the highest free port",
				Destination: &port,
			},
		},
		Before: openDriver,
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c)
			defer cancel()

			conn, e := udpsock.Listen(drv, uint16(port))
			if e != nil {
				return e
			}
			go func() {
				<-ctx.Done()
				conn.Close()
			}()
			logger.Info("echo server listening", zap.Stringer("local", conn.LocalAddr()))

			buf := make([]byte, udpframe.MaxPayload)
			for {
				n, addr, e := conn.ReadFrom(buf)
				switch {
				case errors.Is(e, net.ErrClosed):
					return nil
				case e != nil:
					logger.Warn("receive error", zap.Error(e))
					continue
				}
				if _, e = conn.WriteTo(buf[:n], addr); e != nil {
					logger.Warn("send error", zap.Stringer("peer", addr), zap.Error(e))
				}
			}
		},
	})
}
