package irq

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultDevIRQPath is the character device exposed by the interrupt forwarding kernel module.
const DefaultDevIRQPath = "/dev/udp-core-irq"

// timestampLen is the length of the timestamp returned by each blocking read.
const timestampLen = 16

// DevIRQ forwards interrupts from a character device whose read blocks until an interrupt
// arrives. Each completed read raises the Line once.
type DevIRQ struct {
	r      io.ReadCloser
	line   *Line
	ctrl   *Controller
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// OpenDevIRQ opens the interrupt device and starts forwarding.
// If ctrl is not nil, each interrupt goes through Controller.Handle.
func OpenDevIRQ(path string, line *Line, ctrl *Controller) (*DevIRQ, error) {
	if path == "" {
		path = DefaultDevIRQPath
	}
	f, e := os.Open(path)
	if e != nil {
		return nil, fmt.Errorf("os.Open(%s) %w", path, e)
	}
	return NewDevIRQ(f, line, ctrl), nil
}

// NewDevIRQ starts forwarding from a reader.
func NewDevIRQ(r io.ReadCloser, line *Line, ctrl *Controller) *DevIRQ {
	d := &DevIRQ{
		r:      r,
		line:   line,
		ctrl:   ctrl,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *DevIRQ) loop() {
	defer close(d.done)
	buf := make([]byte, timestampLen)
	for {
		n, e := d.r.Read(buf)
		select {
		case <-d.closed:
			return
		default:
		}
		if e != nil {
			if !errors.Is(e, io.EOF) && !errors.Is(e, os.ErrClosed) {
				logger.Error("interrupt device read error", zap.Error(e))
			}
			return
		}
		if n > 0 {
			logger.Debug("interrupt", zap.String("timestamp", strings.TrimRight(string(buf[:n]), "\x00")))
		}
		if d.ctrl != nil {
			d.ctrl.Handle(d.line)
		} else {
			d.line.Raise()
		}
	}
}

// Done returns a channel that is closed when forwarding stops.
func (d *DevIRQ) Done() <-chan struct{} {
	return d.done
}

// Close stops forwarding and closes the device.
// A read blocked in the kernel returns at the next interrupt at the latest.
// Subsequent calls return the result of the first.
func (d *DevIRQ) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.closeErr = d.r.Close()
	})
	return d.closeErr
}
