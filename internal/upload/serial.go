package upload

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	properties "github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/serial"
	"github.com/buckleypaul/boardlink/internal/transport"
)

// UploadPortTimeout bounds the wait for a board to re-enumerate after a
// 1200 bps touch.
const UploadPortTimeout = 10 * time.Second

// SerialUploader runs the platform's upload tool (avrdude, bossac, ...)
// against a serial port.
type SerialUploader struct {
	base

	touch       func(port string, baud int) error
	portNames   func() ([]string, error)
	waitForPort func(ctx context.Context, before []string, timeout time.Duration) string
}

// NewSerialUploader returns an uploader that reserves ports in registry.
// registry may be nil.
func NewSerialUploader(registry *transport.Registry) *SerialUploader {
	return &SerialUploader{
		base:        base{registry: registry},
		touch:       serial.Touch,
		portNames:   serial.PortNames,
		waitForPort: serial.WaitForNewPort,
	}
}

// Upload implements Uploader.
func (u *SerialUploader) Upload(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, release, err := u.prepare(req, !req.UseProgrammer)
	defer release()
	if err != nil {
		return res, err
	}

	prefs := req.Preferences.Clone()
	port := req.Port
	if !req.UseProgrammer && port != "" && prefs.GetBoolean("upload.use_1200bps_touch") {
		port = u.resetBoard(ctx, port, prefs.GetBoolean("upload.wait_for_upload_port"))
		res.Port = port
	}

	args, env, err := toolCommand(req, prefs, port)
	if err != nil {
		return res, err
	}

	run := runTool(ctx, args, env, req.Output)
	res.Output = run.Output
	res.Duration = time.Since(start)
	if run.Err != nil || run.ExitCode != 0 {
		return res, &TransferFailedError{ExitCode: run.ExitCode, Diagnostics: run.Output, Err: run.Err}
	}
	res.Success = true
	return res, nil
}

// resetBoard touches port at 1200 bps so the bootloader starts. When wait
// is set it returns the port the bootloader shows up on, falling back to
// the original port if none appears in time.
func (u *SerialUploader) resetBoard(ctx context.Context, port string, wait bool) string {
	logger := log.WithField("port", port)
	var before []string
	if wait {
		names, err := u.portNames()
		if err != nil {
			logger.Warnf("listing ports before reset: %v", err)
		}
		before = names
	}

	logger.Info("forcing reset using 1200bps open/close on port")
	if err := u.touch(port, serial.TouchBaudRate); err != nil {
		// Boards already in bootloader mode may refuse the touch.
		logger.Warnf("touch: %v", err)
	}
	if !wait {
		return port
	}

	newPort := u.waitForPort(ctx, before, UploadPortTimeout)
	if newPort == "" {
		logger.Warn("upload port did not appear, using the selected port")
		return port
	}
	logger.WithField("upload_port", newPort).Info("found upload port")
	return newPort
}

// toolCommand expands the upload (or program) pattern into an argument
// list, with the tool's environment.
func toolCommand(req Request, prefs *properties.Map, port string) ([]string, []string, error) {
	action := "upload"
	if req.UseProgrammer {
		action = "program"
		if req.Programmer != nil {
			prefs.Merge(req.Programmer)
		}
	}

	tool, ok := prefs.GetOk(action + ".tool")
	if !ok || tool == "" {
		return nil, nil, errors.WithMessagef(ErrConfigurationIncomplete, "no %s.tool defined", action)
	}
	prefs.Merge(prefs.SubTree("tools." + tool))

	dir, file := filepath.Split(req.Artifact)
	prefs.Set("build.path", filepath.Clean(dir))
	prefs.Set("build.project_name", strings.TrimSuffix(file, filepath.Ext(file)))
	if port != "" {
		prefs.Set("serial.port", port)
		prefs.Set("serial.port.file", strings.TrimPrefix(port, "/dev/"))
	}
	if req.Verbose {
		prefs.Set(action+".verbose", prefs.Get(action+".params.verbose"))
	} else {
		prefs.Set(action+".verbose", prefs.Get(action+".params.quiet"))
	}

	pattern, ok := prefs.GetOk(action + ".pattern")
	if !ok || pattern == "" {
		return nil, nil, errors.WithMessagef(ErrConfigurationIncomplete, "tool %s has no %s.pattern", tool, action)
	}
	cmdline := prefs.ExpandPropsInString(pattern)
	args, err := properties.SplitQuotedString(cmdline, `"'`, false)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid %s.pattern", action)
	}
	if len(args) == 0 {
		return nil, nil, errors.WithMessagef(ErrConfigurationIncomplete, "empty %s.pattern", action)
	}

	var env []string
	if toolPath := prefs.Get("runtime.tools." + tool + ".path"); toolPath != "" {
		env = envWithPath(filepath.Join(toolPath, "bin"))
	}
	log.WithField("tool", tool).Debugf("upload command: %s", cmdline)
	return args, env, nil
}
