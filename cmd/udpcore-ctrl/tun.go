package main

import (
	"fmt"

	"github.com/songgao/water"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/udpcore/udpcore/tunbridge"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

func openTun(name, addr string, mtu int) (*water.Interface, error) {
	ifc, e := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	})
	if e != nil {
		return nil, fmt.Errorf("water.New %w", e)
	}

	e = func() error {
		link, e := netlink.LinkByName(ifc.Name())
		if e != nil {
			return fmt.Errorf("netlink.LinkByName(%s) %w", ifc.Name(), e)
		}
		if e = netlink.LinkSetMTU(link, mtu); e != nil {
			return fmt.Errorf("netlink.LinkSetMTU %w", e)
		}
		if addr != "" {
			a, e := netlink.ParseAddr(addr)
			if e != nil {
				return fmt.Errorf("netlink.ParseAddr(%s) %w", addr, e)
			}
			if e = netlink.AddrAdd(link, a); e != nil {
				return fmt.Errorf("netlink.AddrAdd %w", e)
			}
		}
		if e = netlink.LinkSetUp(link); e != nil {
			return fmt.Errorf("netlink.LinkSetUp %w", e)
		}
		return nil
	}()
	if e != nil {
		ifc.Close()
		return nil, e
	}
	return ifc, nil
}

func init() {
	var name, addr string
	var mtu int
	defineCommand(&cli.Command{
		Name:  "tun",
		Usage: "Bridge UDP traffic between a TUN interface and the core.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Usage:       "TUN interface `name`",
				Value:       "udpcore0",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "interface address in `CIDR` notation",
				Value:       "192.168.1.2/24",
				Destination: &addr,
			},
			&cli.IntFlag{
				Name:        "mtu",
				Usage:       "interface `MTU`",
				Value:       udpframe.MTU,
				Destination: &mtu,
			},
			&cli.IntSliceFlag{
				Name:        "port",
				Usage:       "core `port` to bridge, default every port",
			},
		},
		Before: openDriver,
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c)
			defer cancel()

			ifc, e := openTun(name, addr, mtu)
			if e != nil {
				return e
			}
			go func() {
				<-ctx.Done()
				ifc.Close()
			}()

			var bcfg tunbridge.Config
			bcfg.MTU = mtu
			for _, port := range c.IntSlice("port") {
				bcfg.Ports = append(bcfg.Ports, uint16(port))
			}
			b := tunbridge.New(drv, ifc, bcfg)
			logger.Info("TUN bridge running", zap.String("ifname", ifc.Name()))
			e = b.Run(ctx)
			logger.Info("TUN bridge stopped", zap.Any("counters", b.Counters()))
			return e
		},
	})
}
