package serial

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// TouchBaudRate opens a port at the rate that makes most USB bootloaders
	// reset into upload mode.
	TouchBaudRate = 1200

	uploadPortPollInterval = 250 * time.Millisecond
)

var detailedPorts = enumerator.GetDetailedPortsList

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Label returns a one-line description for listings.
func (p PortInfo) Label() string {
	if !p.IsUSB {
		return p.Name
	}
	label := p.Name + " (" + p.VID + ":" + p.PID
	if p.Product != "" {
		label += " " + p.Product
	}
	return label + ")"
}

// ListPorts returns available serial ports sorted by name.
func ListPorts() ([]PortInfo, error) {
	ports, err := detailedPorts()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// PortNames returns the names of the enumerated ports.
func PortNames() ([]string, error) {
	return listPortNames()
}

// Touch opens name at baud with DTR low and closes it again. At 1200 bps
// this asks the board's bootloader to reset.
func Touch(name string, baud int) error {
	p, err := openPort(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return &OpenError{Port: name, Kind: openErrorKind(err), Err: err}
	}
	defer p.Close()
	if err := p.SetDTR(false); err != nil {
		log.WithField("port", name).Warnf("touch: setting DTR: %v", err)
	}
	return nil
}

// WaitForNewPort polls the port list until a port not in before appears,
// or timeout elapses. It returns the new port name, or "" on timeout. A
// port that disappears and comes back under the same name counts as new.
func WaitForNewPort(ctx context.Context, before []string, timeout time.Duration) string {
	seen := make(map[string]bool, len(before))
	for _, name := range before {
		seen[name] = true
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(uploadPortPollInterval)
	defer ticker.Stop()

	gone := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
		}
		names, err := listPortNames()
		if err != nil {
			continue
		}
		current := make(map[string]bool, len(names))
		for _, name := range names {
			current[name] = true
			if !seen[name] || gone[name] {
				log.WithField("port", name).Debug("upload port appeared")
				return name
			}
		}
		for name := range seen {
			if !current[name] {
				gone[name] = true
			}
		}
	}
}
