// Package factory picks the transport and uploader for a port.
package factory

import (
	properties "github.com/arduino/go-properties-orderedmap"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/monitor"
	"github.com/buckleypaul/boardlink/internal/serial"
	"github.com/buckleypaul/boardlink/internal/transport"
	"github.com/buckleypaul/boardlink/internal/upload"
)

// UploaderKind names an upload strategy.
type UploaderKind int

const (
	DefaultUploader UploaderKind = iota
	HTTPUploader
)

func (k UploaderKind) String() string {
	if k == HTTPUploader {
		return "http"
	}
	return "serial"
}

// SelectUploader returns HTTPUploader when the board asks for uploads over
// HTTP and port is a network address, DefaultUploader otherwise.
func SelectUploader(prefs *properties.Map, port string) UploaderKind {
	if prefs != nil && prefs.GetBoolean("upload.via_http") && transport.Classify(port) == transport.Network {
		return HTTPUploader
	}
	return DefaultUploader
}

// Factory builds transports, uploaders and monitors that share one port
// registry.
type Factory struct {
	registry *transport.Registry

	openSerial  SerialOpener
	dialNetwork NetworkDialer
}

// SerialOpener opens a serial transport.
type SerialOpener func(name string, cfg serial.Config, consumer transport.Consumer) (transport.Transport, error)

// NetworkDialer connects to a network board's console.
type NetworkDialer func(port string, consumer transport.Consumer) (transport.Transport, error)

// Option configures a Factory.
type Option func(*Factory)

// WithSerialOpener replaces how serial ports are opened.
func WithSerialOpener(fn SerialOpener) Option {
	return func(f *Factory) { f.openSerial = fn }
}

// WithNetworkDialer replaces how network consoles are dialed.
func WithNetworkDialer(fn NetworkDialer) Option {
	return func(f *Factory) { f.dialNetwork = fn }
}

// New returns a factory over registry.
func New(registry *transport.Registry, opts ...Option) *Factory {
	f := &Factory{
		registry: registry,
		openSerial: func(name string, cfg serial.Config, consumer transport.Consumer) (transport.Transport, error) {
			p, err := serial.Open(name, cfg, consumer)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		dialNetwork: func(port string, consumer transport.Consumer) (transport.Transport, error) {
			t, err := transport.DialNetwork(port, consumer)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry returns the shared port registry.
func (f *Factory) Registry() *transport.Registry { return f.registry }

// Classify reports how port is reached.
func (f *Factory) Classify(port string) transport.Kind { return transport.Classify(port) }

// NewUploader returns the uploader SelectUploader picks.
func (f *Factory) NewUploader(prefs *properties.Map, port string) upload.Uploader {
	kind := SelectUploader(prefs, port)
	log.WithFields(log.Fields{"port": port, "uploader": kind}).Debug("selected uploader")
	if kind == HTTPUploader {
		return upload.NewHTTPUploader(f.registry)
	}
	return upload.NewSerialUploader(f.registry)
}

// Opener returns a monitor opener for port. Serial ports are opened with
// cfg; network ports ignore it.
func (f *Factory) Opener(port string, cfg serial.Config) monitor.Opener {
	return func(consumer transport.Consumer) (transport.Transport, error) {
		return f.registry.Open(port, func() (transport.Transport, error) {
			if f.Classify(port) == transport.Network {
				return f.dialNetwork(port, consumer)
			}
			return f.openSerial(port, cfg, consumer)
		})
	}
}

// NewMonitor returns a closed monitor for port.
func (f *Factory) NewMonitor(port string, cfg serial.Config, sink monitor.Sink, opts ...monitor.Option) *monitor.Controller {
	return monitor.New(port, f.Opener(port, cfg), sink, opts...)
}
