// Package monitor batches the bytes a board sends and delivers them to a
// display at a fixed rate.
package monitor

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/buckleypaul/boardlink/internal/transport"
)

// DefaultInterval is how often pending data is handed to the sink.
const DefaultInterval = 250 * time.Millisecond

// ErrClosed is returned by Send on a monitor that is not open.
var ErrClosed = errors.New("monitor is closed")

// LineEnding is appended to every line sent to the board.
type LineEnding int

const (
	NoLineEnding LineEnding = iota
	Newline
	CarriageReturn
	CRLF
)

// ParseLineEnding accepts the configuration names none, nl, cr and crnl.
func ParseLineEnding(s string) (LineEnding, error) {
	switch s {
	case "", "none":
		return NoLineEnding, nil
	case "nl":
		return Newline, nil
	case "cr":
		return CarriageReturn, nil
	case "crnl":
		return CRLF, nil
	}
	return NoLineEnding, errors.Errorf("unknown line ending %q", s)
}

func (e LineEnding) String() string {
	switch e {
	case Newline:
		return "nl"
	case CarriageReturn:
		return "cr"
	case CRLF:
		return "crnl"
	}
	return "none"
}

func (e LineEnding) bytes() []byte {
	switch e {
	case Newline:
		return []byte{'\n'}
	case CarriageReturn:
		return []byte{'\r'}
	case CRLF:
		return []byte{'\r', '\n'}
	}
	return nil
}

// Sink receives batches of board output. It is called from the monitor's
// consumer goroutine, never concurrently with itself.
type Sink func(data []byte)

// Opener opens the transport for a monitor, registering consumer to
// receive incoming bytes.
type Opener func(consumer transport.Consumer) (transport.Transport, error)

// Option configures a Controller.
type Option func(*Controller)

// WithInterval sets the delivery period.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLineEnding sets what Send appends to each message.
func WithLineEnding(e LineEnding) Option {
	return func(c *Controller) { c.ending = e }
}

// WithLogWriter copies every delivered batch to w.
func WithLogWriter(w io.Writer) Option {
	return func(c *Controller) { c.logw = w }
}

// Controller owns one monitor session on a port. The transport's reader
// appends into a pending buffer; a ticker goroutine swaps the buffer out
// and delivers it to the sink, so a chatty board cannot flood the display.
type Controller struct {
	port     string
	open     Opener
	sink     Sink
	interval time.Duration
	ending   LineEnding
	logw     io.Writer

	mu   sync.Mutex // guards tr and stop
	tr   transport.Transport
	stop chan struct{}
	wg   sync.WaitGroup

	bufMu   sync.Mutex
	pending []byte
	hasData atomic.Bool
}

// New returns a closed monitor for port.
func New(port string, open Opener, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		port:     port,
		open:     open,
		sink:     sink,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Port returns the monitored port.
func (c *Controller) Port() string { return c.port }

// IsOpen reports whether the monitor holds a transport.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr != nil
}

// Open acquires the transport and starts delivering. Opening an open
// monitor does nothing.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil {
		return nil
	}

	tr, err := c.open(c.append)
	if err != nil {
		return err
	}
	c.tr = tr
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.consume(c.stop)
	log.WithField("port", c.port).Info("monitor opened")
	return nil
}

// Close releases the transport, stops delivery and drops anything not yet
// delivered. Closing a closed monitor does nothing.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return nil
	}

	err := c.tr.Close()
	close(c.stop)
	c.wg.Wait()
	c.tr = nil

	c.bufMu.Lock()
	c.pending = nil
	c.hasData.Store(false)
	c.bufMu.Unlock()

	log.WithField("port", c.port).Info("monitor closed")
	return err
}

// Send writes text followed by the configured line ending.
func (c *Controller) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil {
		return ErrClosed
	}
	msg := append([]byte(text), c.ending.bytes()...)
	return c.tr.Write(msg)
}

// append is the transport consumer.
func (c *Controller) append(data []byte) {
	c.bufMu.Lock()
	c.pending = append(c.pending, data...)
	c.hasData.Store(true)
	c.bufMu.Unlock()
}

func (c *Controller) consume(stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !c.hasData.Load() {
			continue
		}

		c.bufMu.Lock()
		data := c.pending
		c.pending = nil
		c.hasData.Store(false)
		c.bufMu.Unlock()

		if len(data) == 0 {
			continue
		}
		if c.logw != nil {
			if _, err := c.logw.Write(data); err != nil {
				log.WithField("port", c.port).Warnf("monitor log: %v", err)
			}
		}
		if c.sink != nil {
			c.sink(data)
		}
	}
}
