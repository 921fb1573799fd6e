package transport

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	// NetworkMonitorPort is the TCP port network boards expose their console
	// on. Unlike the HTTP upload port it is not taken from board preferences.
	NetworkMonitorPort = 6571
	// NetworkDialTimeout bounds the TCP connect.
	NetworkDialTimeout = 5 * time.Second

	readPollInterval = 250 * time.Millisecond
	readRetryDelay   = 100 * time.Millisecond
)

// ErrClosed is returned when writing to a closed transport.
var ErrClosed = errors.New("transport closed")

// ConnectError reports a failed TCP connection to a network board.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// NetworkTransport is a TCP console connection to a network-attached board.
type NetworkTransport struct {
	port     string
	conn     net.Conn
	consumer Consumer

	writeMu sync.Mutex
	closed  atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// DialNetwork connects to the board named by port on NetworkMonitorPort.
func DialNetwork(port string, consumer Consumer) (*NetworkTransport, error) {
	addr := net.JoinHostPort(Address(port), strconv.Itoa(NetworkMonitorPort))
	return dialNetwork(port, addr, consumer)
}

func dialNetwork(port, addr string, consumer Consumer) (*NetworkTransport, error) {
	conn, err := net.DialTimeout("tcp", addr, NetworkDialTimeout)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, &ConnectError{Address: addr, Err: err}
	}
	t := &NetworkTransport{
		port:     port,
		conn:     conn,
		consumer: consumer,
		stop:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t, nil
}

// Port returns the port identifier the transport was opened with.
func (t *NetworkTransport) Port() string { return t.port }

// Write sends data followed by a newline. A monitor using the nl line ending
// therefore sends two.
func (t *NetworkTransport) Write(data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	msg := make([]byte, 0, len(data)+1)
	msg = append(msg, data...)
	msg = append(msg, '\n')
	if _, err := t.conn.Write(msg); err != nil {
		log.WithField("port", t.port).Warnf("network write: %v", err)
		return errors.Wrap(err, "network write")
	}
	return nil
}

// Close stops the reader, waits for it to exit and closes the socket.
// Calling Close more than once is a no-op.
func (t *NetworkTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stop)
	// Wake a reader blocked in Read.
	t.conn.SetReadDeadline(time.Now())
	t.wg.Wait()
	return t.conn.Close()
}

func (t *NetworkTransport) readLoop() {
	defer t.wg.Done()
	logger := log.WithField("port", t.port)
	buf := make([]byte, 1024)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := t.conn.Read(buf)
		if n > 0 && t.consumer != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.consumer(data)
		}
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if t.closed.Load() {
			return
		}
		if err == io.EOF || errors.Is(err, net.ErrClosed) {
			logger.Info("connection closed by board")
			return
		}
		logger.Warnf("network read: %v", err)
		select {
		case <-t.stop:
			return
		case <-time.After(readRetryDelay):
		}
	}
}
