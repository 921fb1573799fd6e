package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// toolRun is the outcome of one external tool invocation.
type toolRun struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// runTool executes args with stdout and stderr merged, copying output to
// live as it arrives. A tool that cannot be started reports exit code -1.
func runTool(ctx context.Context, args []string, env []string, live io.Writer) toolRun {
	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if env != nil {
		cmd.Env = env
	}

	var output bytes.Buffer
	var w io.Writer = &output
	if live != nil {
		w = io.MultiWriter(&output, live)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	log.WithField("tool", args[0]).Debugf("running %s", strings.Join(args, " "))
	err := cmd.Run()
	run := toolRun{Output: output.String(), Duration: time.Since(start), Err: err}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			run.ExitCode = exitErr.ExitCode()
			run.Err = nil
		} else {
			run.ExitCode = -1
		}
	}
	return run
}

// envWithPath returns a copy of the current environment with binDir
// prepended to PATH.
func envWithPath(binDir string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env)+1)
	pathSet := false

	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			result = append(result, "PATH="+binDir+string(os.PathListSeparator)+e[5:])
			pathSet = true
		} else {
			result = append(result, e)
		}
	}

	if !pathSet {
		result = append(result, "PATH="+binDir)
	}
	return result
}
