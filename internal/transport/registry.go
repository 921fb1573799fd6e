package transport

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrPortBusy is returned when a port is already held by another owner.
var ErrPortBusy = errors.New("port busy")

// BusyError names the port that could not be acquired.
type BusyError struct {
	Port  string
	Owner string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("port %s is busy (held by %s)", e.Port, e.Owner)
}

func (e *BusyError) Is(target error) bool { return target == ErrPortBusy }

// Registry tracks which ports are held. The OS does not prevent two handles
// on one serial device, so every open goes through here.
type Registry struct {
	mu   sync.Mutex
	held map[string]string // port -> owner description
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{held: map[string]string{}}
}

// Busy reports whether port is held.
func (r *Registry) Busy(port string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[port]
	return ok
}

func (r *Registry) acquire(port, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.held[port]; ok {
		return &BusyError{Port: port, Owner: cur}
	}
	r.held[port] = owner
	return nil
}

func (r *Registry) release(port string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, port)
}

// Reserve holds port without opening it. The returned function releases
// it and may be called more than once.
func (r *Registry) Reserve(port, owner string) (func(), error) {
	if err := r.acquire(port, owner); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { r.release(port) }) }, nil
}

// Open holds port for a monitor and calls open to create the transport.
// Closing the returned transport also releases the port.
func (r *Registry) Open(port string, open func() (Transport, error)) (Transport, error) {
	if err := r.acquire(port, "monitor"); err != nil {
		return nil, err
	}
	t, err := open()
	if err != nil {
		r.release(port)
		return nil, err
	}
	log.WithField("port", port).Debug("transport opened")
	return &lease{Transport: t, port: port, registry: r}, nil
}

type lease struct {
	Transport
	port     string
	registry *Registry
	once     sync.Once
	err      error
}

func (l *lease) Close() error {
	l.once.Do(func() {
		l.err = l.Transport.Close()
		l.registry.release(l.port)
		log.WithField("port", l.port).Debug("transport released")
	})
	return l.err
}
