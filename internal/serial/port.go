package serial

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.uber.org/atomic"
)

const (
	readTimeout     = 100 * time.Millisecond
	readRetryDelay  = 100 * time.Millisecond
	readChunkSize   = 1024
	defaultBaudRate = 9600
)

var (
	ErrPortInUse    = errors.New("serial port in use")
	ErrPortNotFound = errors.New("serial port not found")
	ErrClosed       = errors.New("serial port closed")
)

// Replaced in tests.
var (
	openPort      = serial.Open
	listPortNames = serial.GetPortsList
)

// OpenError reports a failure to open a serial port. Kind is ErrPortInUse,
// ErrPortNotFound, or nil for any other driver failure.
type OpenError struct {
	Port string
	Kind error
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("error opening serial port %q: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool { return e.Kind != nil && target == e.Kind }

// Config holds serial line parameters.
type Config struct {
	BaudRate int
	Parity   byte    // 'N', 'E', 'O', 'M' or 'S'
	DataBits int     // 5 to 8
	StopBits float64 // 1, 1.5 or 2
}

// DefaultConfig returns 9600 8N1.
func DefaultConfig() Config {
	return Config{BaudRate: defaultBaudRate, Parity: 'N', DataBits: 8, StopBits: 1}
}

// Mode converts the configuration to a driver mode.
func (c Config) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	switch c.Parity {
	case 'N', 0:
		mode.Parity = serial.NoParity
	case 'E':
		mode.Parity = serial.EvenParity
	case 'O':
		mode.Parity = serial.OddParity
	case 'M':
		mode.Parity = serial.MarkParity
	case 'S':
		mode.Parity = serial.SpaceParity
	default:
		return nil, errors.Errorf("invalid parity %q", c.Parity)
	}
	switch c.StopBits {
	case 1, 0:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, errors.Errorf("invalid stop bits %v", c.StopBits)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	return mode, nil
}

// Port is an open serial connection.
//
// A single reader goroutine is the only producer. When a consumer is
// registered it receives every chunk in arrival order; otherwise chunks are
// appended to a ring buffer drained by Read, ReadBytes and ReadBytesUntil.
// The buffer methods never block and assume a single reader.
type Port struct {
	name     string
	port     serial.Port
	consumer func(data []byte)

	bufMu sync.Mutex
	buf   *ringBuffer

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Open opens the named port and starts the reader goroutine. consumer may
// be nil to use the internal buffer.
func Open(name string, cfg Config, consumer func(data []byte)) (*Port, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, &OpenError{Port: name, Err: err}
	}
	if names, err := listPortNames(); err == nil && !slices.Contains(names, name) {
		return nil, &OpenError{Port: name, Kind: ErrPortNotFound, Err: ErrPortNotFound}
	}

	sp, err := openPort(name, mode)
	if err != nil {
		return nil, &OpenError{Port: name, Kind: openErrorKind(err), Err: err}
	}
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		sp.Close()
		return nil, &OpenError{Port: name, Err: err}
	}
	// Drop whatever the driver buffered before we opened.
	_ = sp.ResetInputBuffer()

	p := &Port{
		name:     name,
		port:     sp,
		consumer: consumer,
		buf:      newRingBuffer(initialBufferSize),
		done:     make(chan struct{}),
	}
	// Auto-reset boards expect DTR and RTS raised while connected.
	if err := p.SetDTR(true); err != nil {
		log.WithField("port", name).Debugf("raising DTR: %v", err)
	}
	if err := p.SetRTS(true); err != nil {
		log.WithField("port", name).Debugf("raising RTS: %v", err)
	}
	p.wg.Add(1)
	go p.readLoop()

	log.WithFields(log.Fields{"port": name, "baud": cfg.BaudRate}).Debug("serial port opened")
	return p, nil
}

func openErrorKind(err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return nil
	}
	switch portErr.Code() {
	case serial.PortBusy:
		return ErrPortInUse
	case serial.PortNotFound:
		return ErrPortNotFound
	}
	return nil
}

// Port returns the device name.
func (p *Port) Port() string { return p.name }

func (p *Port) readLoop() {
	defer p.wg.Done()
	logger := log.WithField("port", p.name)
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			if p.closed.Load() {
				return
			}
			var portErr *serial.PortError
			if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
				return
			}
			logger.Warnf("serial read: %v", err)
			select {
			case <-p.done:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}
		if n == 0 {
			continue
		}
		p.deliver(buf[:n])
	}
}

func (p *Port) deliver(chunk []byte) {
	data := make([]byte, len(chunk))
	copy(data, chunk)
	if p.consumer != nil {
		p.consumer(data)
		return
	}
	p.bufMu.Lock()
	p.buf.Write(data)
	p.bufMu.Unlock()
}

// Available returns the number of unread buffered bytes.
func (p *Port) Available() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return p.buf.Len()
}

// Read returns the next buffered byte, or -1 when the buffer is empty.
func (p *Port) Read() int {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	b, ok := p.buf.pop()
	if !ok {
		return -1
	}
	return int(b)
}

// ReadBytes drains the buffer. It returns nil when the buffer is empty.
func (p *Port) ReadBytes() []byte {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	if p.buf.Len() == 0 {
		return nil
	}
	return p.buf.Next(p.buf.Len())
}

// ReadBytesUntil returns the buffered bytes up to and including delim. It
// returns nil, consuming nothing, when delim has not been received yet.
func (p *Port) ReadBytesUntil(delim byte) []byte {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	i := p.buf.IndexByte(delim)
	if i < 0 {
		return nil
	}
	return p.buf.Next(i + 1)
}

// ReadStringUntil is ReadBytesUntil returning a string.
func (p *Port) ReadStringUntil(delim byte) (string, bool) {
	b := p.ReadBytesUntil(delim)
	return string(b), b != nil
}

// Clear drops all buffered bytes.
func (p *Port) Clear() {
	p.bufMu.Lock()
	p.buf.Reset()
	p.bufMu.Unlock()
}

// Write sends data and waits for it to be transmitted. Errors are logged
// and returned; a write to a disconnected device is not fatal.
func (p *Port) Write(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	logger := log.WithField("port", p.name)
	if _, err := p.port.Write(data); err != nil {
		logger.Warnf("serial write: %v", err)
		return errors.Wrap(err, "serial write")
	}
	if err := p.port.Drain(); err != nil {
		logger.Warnf("serial drain: %v", err)
		return errors.Wrap(err, "serial drain")
	}
	return nil
}

// SetDTR sets the DTR control line.
func (p *Port) SetDTR(on bool) error {
	return errors.Wrap(p.port.SetDTR(on), "setting DTR")
}

// SetRTS sets the RTS control line.
func (p *Port) SetRTS(on bool) error {
	return errors.Wrap(p.port.SetRTS(on), "setting RTS")
}

// Close stops the reader goroutine, waits for it, then closes the device.
// Closing a closed port is a no-op.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.port.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", p.name)
	}
	log.WithField("port", p.name).Debug("serial port closed")
	return nil
}

// Dispose closes the port and drops buffered content, for teardown before
// reopening with a different configuration.
func (p *Port) Dispose() error {
	err := p.Close()
	p.Clear()
	return err
}
