// Package upload transfers compiled artifacts to boards, either by running
// the platform's external upload tool or by posting to a network board.
package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	properties "github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"

	"github.com/buckleypaul/boardlink/internal/transport"
)

// ErrConfigurationIncomplete is returned when no board preferences or no
// port are available for an upload.
var ErrConfigurationIncomplete = errors.New("upload configuration incomplete")

// SizeExceededError is returned when the artifact is larger than the
// board's upload.maximum_size. Nothing is sent to the board.
type SizeExceededError struct {
	Size int64
	Max  int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("sketch too big: %d bytes, maximum is %d bytes", e.Size, e.Max)
}

// TransferFailedError is returned when the tool exits non-zero or the
// board rejects the upload. Diagnostics holds the output verbatim.
type TransferFailedError struct {
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *TransferFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	return fmt.Sprintf("upload failed with exit code %d", e.ExitCode)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// Request describes one upload.
type Request struct {
	// Preferences is the effective board map (platform properties included).
	Preferences *properties.Map
	Port        string
	// Artifact is the compiled file to send, e.g. build/Blink.ino.hex.
	Artifact      string
	Verbose       bool
	UseProgrammer bool
	// Programmer holds the programmer's properties when UseProgrammer is set.
	Programmer *properties.Map
	// Output receives tool output as it is produced. May be nil.
	Output io.Writer
	// Progress receives a copy of every byte sent over HTTP. May be nil.
	Progress io.Writer
}

// Result reports how an upload went.
type Result struct {
	Success bool
	// Port is the port actually used, which differs from the requested one
	// when the board re-enumerated after a reset.
	Port     string
	Size     int64
	MaxSize  int64
	Output   string
	Duration time.Duration
}

// Uploader sends an artifact to a board.
type Uploader interface {
	Upload(ctx context.Context, req Request) (*Result, error)
}

// base holds what both uploaders share: port reservation, validation and
// the size check.
type base struct {
	registry *transport.Registry
}

func (b base) reserve(port string) (func(), error) {
	if port == "" || b.registry == nil {
		return func() {}, nil
	}
	return b.registry.Reserve(port, "upload")
}

// prepare validates req, reserves the port and checks the artifact size.
// The caller must call the returned release function.
func (b base) prepare(req Request, portRequired bool) (*Result, func(), error) {
	res := &Result{Port: req.Port}
	if req.Preferences == nil || req.Artifact == "" || (portRequired && req.Port == "") {
		return res, func() {}, ErrConfigurationIncomplete
	}
	release, err := b.reserve(req.Port)
	if err != nil {
		return res, func() {}, err
	}
	size, max, err := CheckSize(req.Artifact, req.Preferences)
	res.Size, res.MaxSize = size, max
	if err != nil {
		release()
		return res, func() {}, err
	}
	return res, release, nil
}
