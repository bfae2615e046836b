package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/udpcore/core/runningstat"
	"github.com/usnistgov/udpcore/core/subtract"
	"github.com/usnistgov/udpcore/udpcore/udpsock"
	"go4.org/must"
)

type benchResult struct {
	Sent     uint64
	Received uint64
	Lost     uint64
	RTT      runningstat.Snapshot
}

func init() {
	var dst string
	var port, count, size int
	var interval, timeout time.Duration
	defineCommand(&cli.Command{
		Name:  "bench",
		Usage: "Measure round-trip time against an echo server.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dst",
				Usage:       "echo server `address`",
				Value:       "192.168.1.2:7",
				Destination: &dst,
			},
			&cli.IntFlag{
				Name:        "port",
				Usage:       "local `port`, 0 for the highest free port",
				Destination: &port,
			},
			&cli.IntFlag{
				Name:        "count",
				Usage:       "number of probes",
				Value:       1000,
				Destination: &count,
			},
			&cli.IntFlag{
				Name:        "size",
				Usage:       "payload `length`",
				Value:       64,
				Destination: &size,
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "progress report `interval`",
				Value:       time.Second,
				Destination: &interval,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "probe `timeout`",
				Value:       100 * time.Millisecond,
				Destination: &timeout,
			},
		},
		Before: openDriver,
		Action: func(c *cli.Context) error {
			ctx, cancel := signalContext(c)
			defer cancel()

			raddr, e := net.ResolveUDPAddr("udp4", dst)
			if e != nil {
				return e
			}
			if size < 8 {
				size = 8
			}
			conn, e := udpsock.Dial(drv, uint16(port), raddr)
			if e != nil {
				return e
			}
			defer must.Close(conn)

			var res, last benchResult
			rtt := runningstat.NewInt(1)
			txStart := drv.TX().Counters()
			probe, reply := make([]byte, size), make([]byte, size)
			report := time.NewTicker(interval)
			defer report.Stop()

			for seq := uint64(0); seq < uint64(count) && ctx.Err() == nil; seq++ {
				binary.BigEndian.PutUint64(probe, seq)
				t0 := time.Now()
				conn.SetDeadline(t0.Add(timeout))
				if _, e = conn.Write(probe); e != nil {
					return e
				}
				res.Sent++

				for {
					n, e := conn.Read(reply)
					if e != nil {
						var ne net.Error
						if errors.As(e, &ne) && ne.Timeout() {
							res.Lost++
							break
						}
						return e
					}
					if n >= 8 && binary.BigEndian.Uint64(reply) == seq {
						res.Received++
						rtt.Push(uint64(time.Since(t0)))
						break
					}
				}

				select {
				case <-report.C:
					res.RTT = rtt.Read()
					printBench("progress", subtract.Sub(res, last))
					last = res
				default:
				}
			}

			res.RTT = rtt.Read()
			printBench("total", res)
			tx := subtract.Sub(drv.TX().Counters(), txStart)
			fmt.Printf("tx %s packets, %s, %s ring-full retries\n",
				humanize.Comma(int64(tx.Packets)), humanize.Bytes(tx.Bytes), humanize.Comma(int64(tx.Full)))
			return nil
		},
	})
}

func printBench(label string, r benchResult) {
	fmt.Fprintf(os.Stdout, "%s sent=%s received=%s lost=%s", label,
		humanize.Comma(int64(r.Sent)), humanize.Comma(int64(r.Received)), humanize.Comma(int64(r.Lost)))
	if r.RTT.Len > 0 {
		fmt.Fprintf(os.Stdout, " rtt-mean=%v rtt-stdev=%v", time.Duration(r.RTT.Mean), time.Duration(r.RTT.Stdev))
	}
	if r.RTT.Min != nil && r.RTT.Max != nil {
		fmt.Fprintf(os.Stdout, " rtt-min=%v rtt-max=%v", time.Duration(*r.RTT.Min), time.Duration(*r.RTT.Max))
	}
	fmt.Fprintln(os.Stdout)
}
