// Package udpsock exposes driver ports as net.PacketConn.
package udpsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/usnistgov/udpcore/core/logging"
	"github.com/usnistgov/udpcore/hw/record"
	"github.com/usnistgov/udpcore/udpcore"
	"go.uber.org/zap"
	"inet.af/netaddr"
)

var logger = logging.New("UdpSock")

// ErrNoPort indicates every port in the range is in use.
var ErrNoPort = errors.New("no free port")

var listenMutex sync.Mutex

// Listen opens a port and returns a Conn bound to it.
// If port is zero, the highest free port in the range is chosen.
func Listen(drv *udpcore.Driver, port uint16) (*Conn, error) {
	listenMutex.Lock()
	defer listenMutex.Unlock()

	core := drv.Config().Core
	if port == 0 {
		for p := int(core.PortHigh); p >= int(core.PortLow); p-- {
			if ch, e := drv.RX().Channel(uint16(p)); e == nil && !ch.IsOpen() {
				port = uint16(p)
				break
			}
		}
		if port == 0 {
			return nil, ErrNoPort
		}
	} else if ch, e := drv.RX().Channel(port); e != nil {
		return nil, e
	} else if ch.IsOpen() {
		return nil, fmt.Errorf("port %d %w", port, os.ErrExist)
	}

	if e := drv.OpenPort(port); e != nil {
		return nil, e
	}

	c := &Conn{
		drv:   drv,
		local: netaddr.IPPortFrom(core.LocalIP, port),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	logger.Debug("listen", zap.Stringer("local", c.local))
	return c, nil
}

// Dial opens a port and returns a Conn connected to raddr.
// Packets from other sources are discarded.
func Dial(drv *udpcore.Driver, port uint16, raddr *net.UDPAddr) (*Conn, error) {
	remote, ok := netaddr.FromStdAddr(raddr.IP, raddr.Port, "")
	if !ok || !remote.IP().Unmap().Is4() {
		return nil, fmt.Errorf("remote address %s is not IPv4", raddr)
	}
	remote = netaddr.IPPortFrom(remote.IP().Unmap(), remote.Port())

	c, e := Listen(drv, port)
	if e != nil {
		return nil, e
	}
	c.remote = remote
	return c, nil
}

// Conn is a UDP socket on a driver port.
type Conn struct {
	drv    *udpcore.Driver
	local  netaddr.IPPort
	remote netaddr.IPPort

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	deadlineMutex sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

var (
	_ net.PacketConn = (*Conn)(nil)
	_ net.Conn       = (*Conn)(nil)
)

func (c *Conn) opContext(deadline *time.Time) (context.Context, context.CancelFunc) {
	c.deadlineMutex.Lock()
	dl := *deadline
	c.deadlineMutex.Unlock()
	if dl.IsZero() {
		return context.WithCancel(c.ctx)
	}
	return context.WithDeadline(c.ctx, dl)
}

func (c *Conn) opError(op string, addr net.Addr, e error) error {
	switch {
	case c.ctx.Err() != nil:
		e = net.ErrClosed
	case errors.Is(e, udpcore.ErrTimeout):
		e = os.ErrDeadlineExceeded
	}
	return &net.OpError{Op: op, Net: "udp", Source: c.LocalAddr(), Addr: addr, Err: e}
}

// ReadFrom receives a packet.
// It blocks until a packet arrives, the read deadline passes, or the Conn is closed.
// A packet truncated by the core is returned together with an error wrapping record.ErrTruncated.
func (c *Conn) ReadFrom(p []byte) (n int, addr net.Addr, e error) {
	rec, e := c.recv()
	if rec.Payload == nil && e != nil {
		return 0, nil, e
	}
	n = copy(p, rec.Payload)
	return n, netaddr.IPPortFrom(rec.SrcIP, rec.SrcPort).UDPAddr(), e
}

func (c *Conn) recv() (rec record.Record, e error) {
	if c.ctx.Err() != nil {
		return rec, c.opError("read", nil, net.ErrClosed)
	}
	ctx, cancel := c.opContext(&c.readDeadline)
	defer cancel()

	for {
		rec, e = c.drv.Recv(ctx, c.local.Port())
		switch {
		case errors.Is(e, record.ErrTruncated):
			if c.accept(rec) {
				return rec, c.opError("read", nil, e)
			}
		case e != nil:
			return record.Record{}, c.opError("read", nil, e)
		case c.accept(rec):
			return rec, nil
		}
	}
}

func (c *Conn) accept(rec record.Record) bool {
	if c.remote.IsZero() {
		return true
	}
	return rec.SrcIP == c.remote.IP() && rec.SrcPort == c.remote.Port()
}

// WriteTo sends a packet.
// While the TX ring is full, it retries until the write deadline passes or the Conn is closed.
func (c *Conn) WriteTo(p []byte, addr net.Addr) (n int, e error) {
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, c.opError("write", addr, fmt.Errorf("unsupported address type %T", addr))
	}
	dst, ok := netaddr.FromStdAddr(ua.IP, ua.Port, "")
	if !ok || !dst.IP().Unmap().Is4() {
		return 0, c.opError("write", addr, fmt.Errorf("address %s is not IPv4", addr))
	}
	return c.send(p, netaddr.IPPortFrom(dst.IP().Unmap(), dst.Port()))
}

func (c *Conn) send(p []byte, dst netaddr.IPPort) (n int, e error) {
	if c.ctx.Err() != nil {
		return 0, c.opError("write", dst.UDPAddr(), net.ErrClosed)
	}
	ctx, cancel := c.opContext(&c.writeDeadline)
	defer cancel()

	rec := record.Record{
		SrcIP:   c.local.IP(),
		SrcPort: c.local.Port(),
		DstIP:   dst.IP(),
		DstPort: dst.Port(),
		Payload: p,
	}
	if e = c.drv.SendWait(ctx, rec); e != nil {
		return 0, c.opError("write", dst.UDPAddr(), e)
	}
	return len(p), nil
}

// Read receives a packet on a connected Conn.
func (c *Conn) Read(p []byte) (n int, e error) {
	n, _, e = c.ReadFrom(p)
	return n, e
}

// Write sends a packet on a connected Conn.
func (c *Conn) Write(p []byte) (n int, e error) {
	if c.remote.IsZero() {
		return 0, c.opError("write", nil, errors.New("not connected"))
	}
	return c.send(p, c.remote)
}

// Close releases the port.
// Pending reads and writes return net.ErrClosed.
func (c *Conn) Close() (e error) {
	c.closeOnce.Do(func() {
		c.cancel()
		e = c.drv.ClosePort(c.local.Port())
		logger.Debug("close", zap.Stringer("local", c.local))
	})
	return e
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.local.UDPAddr()
}

// RemoteAddr returns the remote address of a connected Conn, or nil.
func (c *Conn) RemoteAddr() net.Addr {
	if c.remote.IsZero() {
		return nil
	}
	return c.remote.UDPAddr()
}

// SetDeadline sets read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error {
	c.deadlineMutex.Lock()
	defer c.deadlineMutex.Unlock()
	c.readDeadline, c.writeDeadline = t, t
	return nil
}

// SetReadDeadline sets the read deadline.
// It applies to reads started afterwards.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.deadlineMutex.Lock()
	defer c.deadlineMutex.Unlock()
	c.readDeadline = t
	return nil
}

// SetWriteDeadline sets the write deadline.
// It applies to writes started afterwards.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.deadlineMutex.Lock()
	defer c.deadlineMutex.Unlock()
	c.writeDeadline = t
	return nil
}
