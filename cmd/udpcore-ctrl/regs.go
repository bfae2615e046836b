package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func init() {
	var format string
	defineCommand(&cli.Command{
		Name:  "regs",
		Usage: "Dump control registers, active configuration, and RX descriptors.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output `format`: yaml, json, or text",
				Value:       "yaml",
				Destination: &format,
			},
		},
		Before: openDriver,
		Action: func(c *cli.Context) error {
			list := drv.DumpRegisters()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(list)
			case "json":
				for _, rv := range list {
					j, _ := json.Marshal(rv)
					fmt.Println(string(j))
				}
			case "text":
				for _, rv := range list {
					fmt.Println(rv)
				}
			default:
				return fmt.Errorf("unknown format %s", format)
			}
			return nil
		},
	})
}

func init() {
	defineCommand(&cli.Command{
		Name:  "show-config",
		Usage: "Show driver configuration and active core configuration.",
		Before: openDriver,
		Action: func(c *cli.Context) error {
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(map[string]any{
				"driver":     drv.Config(),
				"active":     drv.Applier().ReadActive(),
				"applied":    drv.Applier().IsApplied(),
				"irqEnabled": drv.IRQ().Enabled(),
			})
		},
	})
}
