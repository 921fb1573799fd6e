// Package transport defines the communication channel to a board and the
// process-wide registry that keeps at most one open channel per port.
package transport

import (
	"regexp"
)

// Kind is the class of a port identifier.
type Kind int

const (
	Serial Kind = iota
	Network
)

func (k Kind) String() string {
	if k == Network {
		return "network"
	}
	return "serial"
}

// Any dotted quad, including invalid octets, marks a network port.
var ipv4Pattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Classify returns Network if the identifier contains a dotted-quad
// substring anywhere, Serial otherwise.
func Classify(port string) Kind {
	if ipv4Pattern.MatchString(port) {
		return Network
	}
	return Serial
}

// Address extracts the dotted-quad address from a network port identifier.
func Address(port string) string {
	return ipv4Pattern.FindString(port)
}

// Consumer receives bytes from a transport's reader goroutine, in arrival
// order. It must not block for long.
type Consumer func(data []byte)

// Transport is an open channel to a device.
type Transport interface {
	Port() string
	Write(data []byte) error
	Close() error
}
