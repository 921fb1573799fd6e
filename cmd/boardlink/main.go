package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arduino/go-paths-helper"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/config"
	"github.com/buckleypaul/boardlink/internal/factory"
	"github.com/buckleypaul/boardlink/internal/hardware"
	"github.com/buckleypaul/boardlink/internal/selection"
	"github.com/buckleypaul/boardlink/internal/session"
	"github.com/buckleypaul/boardlink/internal/store"
	"github.com/buckleypaul/boardlink/internal/transport"
)

const usage = `usage: boardlink [-data dir] [-v] <command> [flags]

commands:
  boards    list installed boards
  ports     list serial ports
  select    choose board, port and programmer (-i to pick from a list)
  prefs     print effective board preferences
  upload    upload a compiled artifact
  monitor   open the serial monitor
  history   show past uploads
  config    print settings, or set them with key=value (-global for all data dirs)
`

type command func(env *environment, args []string) error

var commands = map[string]command{
	"boards":  runBoards,
	"ports":   runPorts,
	"select":  runSelect,
	"prefs":   runPrefs,
	"upload":  runUpload,
	"monitor": runMonitor,
	"history": runHistory,
	"config":  runConfig,
}

// environment is what every command works with.
type environment struct {
	dataDir string
	cfg     config.Config
	session *session.Session
	stdout  io.Writer
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("boardlink", flag.ContinueOnError)
	dataDir := global.String("data", config.DataDir(), "data directory")
	verbose := global.Bool("v", false, "debug logging")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", rest[0], usage)
		return 2
	}

	cfg := config.Load(*dataDir)
	setupLogging(cfg, *verbose)

	env, err := newEnvironment(*dataDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer env.session.Close()

	if err := cmd(env, rest[1:]); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func setupLogging(cfg config.Config, verbose bool) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableColors: !isatty.IsTerminal(os.Stderr.Fd()),
		FullTimestamp: true,
	})
}

// logToFile moves logging off the terminal while a full-screen console
// owns it.
func logToFile(dataDir string) (io.Closer, error) {
	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "boardlink.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	return f, nil
}

func newEnvironment(dataDir string, cfg config.Config) (*environment, error) {
	dirs := cfg.HardwareDirs
	if len(dirs) == 0 {
		dirs = []string{filepath.Join(dataDir, "hardware")}
	}
	var roots []*paths.Path
	for _, d := range dirs {
		roots = append(roots, paths.New(d))
	}
	idx, err := hardware.LoadHardwareTree(roots)
	if err != nil {
		return nil, fmt.Errorf("loading hardware from %v: %w", dirs, err)
	}

	mgr, err := selection.NewManager(cfg.PreferencesFile)
	if err != nil {
		return nil, err
	}

	fac := factory.New(transport.NewRegistry())
	st := store.New(dataDir)
	return &environment{
		dataDir: dataDir,
		cfg:     cfg,
		session: session.New(idx, mgr, fac, st, cfg),
		stdout:  os.Stdout,
	}, nil
}
