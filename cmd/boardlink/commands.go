package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/buckleypaul/boardlink/internal/config"
	"github.com/buckleypaul/boardlink/internal/console"
	"github.com/buckleypaul/boardlink/internal/factory"
	"github.com/buckleypaul/boardlink/internal/selection"
	"github.com/buckleypaul/boardlink/internal/serial"
	"github.com/buckleypaul/boardlink/internal/session"
	"github.com/buckleypaul/boardlink/internal/store"
	"github.com/buckleypaul/boardlink/internal/ui"
	"github.com/buckleypaul/boardlink/internal/upload"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runBoards(env *environment, args []string) error {
	fs := newFlags("boards")
	menus := fs.Bool("menus", false, "also list menu options")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	for _, pkg := range env.session.Index.Packages() {
		for _, platform := range pkg.SortedPlatforms() {
			for _, board := range platform.OrderedBoards() {
				fmt.Fprintf(w, "%s\t%s\n", board.FQBN(), board.Name())
				if !*menus {
					continue
				}
				for _, menu := range board.MenuIDs() {
					var opts []string
					for _, o := range board.MenuOptions(menu) {
						opts = append(opts, o.ID)
					}
					fmt.Fprintf(w, "  %s\t%s: %s\n", menu, platform.MenuLabel(menu), strings.Join(opts, ", "))
				}
			}
		}
	}
	return w.Flush()
}

func runPorts(env *environment, args []string) error {
	if err := newFlags("ports").Parse(args); err != nil {
		return err
	}
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	current := env.session.Selection.Current().Port
	for _, p := range ports {
		mark := " "
		if p.Name == current {
			mark = "*"
		}
		fmt.Fprintf(env.stdout, "%s %s\n", mark, p.Label())
	}
	return nil
}

func runSelect(env *environment, args []string) error {
	fs := newFlags("select")
	fqbn := fs.String("b", "", "board as package:arch:board[:menu=option,...]")
	port := fs.String("p", "", "port")
	programmer := fs.String("P", "", "programmer as package:id")
	interactive := fs.Bool("i", false, "choose board and port from a list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interactive {
		var err error
		if *fqbn == "" {
			if *fqbn, err = console.Pick("Board", boardChoices(env)); err != nil {
				return err
			}
		}
		if *port == "" {
			if *port, err = console.Pick("Port", portChoices()); err != nil {
				return err
			}
		}
	}
	if err := applySelection(env, *fqbn, *port, *programmer); err != nil {
		return err
	}
	return printSelection(env)
}

func boardChoices(env *environment) []console.Choice {
	var choices []console.Choice
	for _, pkg := range env.session.Index.Packages() {
		for _, platform := range pkg.SortedPlatforms() {
			for _, board := range platform.OrderedBoards() {
				choices = append(choices, console.Choice{Label: board.FQBN(), Value: board.FQBN(), Desc: board.Name()})
			}
		}
	}
	return choices
}

func portChoices() []console.Choice {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil
	}
	choices := make([]console.Choice, 0, len(ports))
	for _, p := range ports {
		choices = append(choices, console.Choice{Label: p.Name, Value: p.Name, Desc: strings.TrimSpace(strings.TrimPrefix(p.Label(), p.Name))})
	}
	return choices
}

// applySelection validates and persists whatever was given; empty values
// leave the stored choice alone.
func applySelection(env *environment, fqbn, port, programmer string) error {
	mgr := env.session.Selection
	if fqbn != "" {
		if _, err := mgr.SelectBoardKey(env.session.Index, fqbn); err != nil {
			return err
		}
	}
	if port != "" {
		if err := mgr.SelectPort(port); err != nil {
			return err
		}
	}
	if programmer != "" {
		sel := mgr.Current()
		parts := strings.SplitN(programmer, ":", 2)
		if len(parts) != 2 || env.session.Index.Programmer(parts[0], sel.Platform, parts[1]) == nil {
			return &selection.SelectionError{Key: programmer, Reason: "unknown programmer"}
		}
		if err := mgr.SelectProgrammer(programmer); err != nil {
			return err
		}
	}
	return nil
}

func printSelection(env *environment) error {
	sel := env.session.Selection.Current()
	target, err := selection.Resolve(env.session.Index, sel)
	if err != nil && !errors.Is(err, selection.ErrIncomplete) {
		return err
	}
	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	if target != nil {
		fmt.Fprintf(w, "board\t%s (%s)\n", target.FQBN(), target.Preferences.Get("name"))
	} else {
		fmt.Fprintf(w, "board\t-\n")
	}
	fmt.Fprintf(w, "port\t%s\n", orDash(sel.Port))
	fmt.Fprintf(w, "programmer\t%s\n", orDash(sel.Programmer))
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runPrefs(env *environment, args []string) error {
	fs := newFlags("prefs")
	fqbn := fs.String("b", "", "board to resolve instead of the current one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sel := env.session.Selection.Current()
	if *fqbn != "" {
		key, err := selection.ParseBoardKey(*fqbn)
		if err != nil {
			return err
		}
		_, custom, err := key.Resolve(env.session.Index)
		if err != nil {
			return err
		}
		sel.Package, sel.Platform, sel.Board = key.Package, key.Platform, key.Board
		sel.Custom = custom
	}

	prefs, err := env.session.ResolveEffectivePreferences(sel)
	if err != nil {
		return err
	}
	for _, k := range prefs.Keys() {
		fmt.Fprintf(env.stdout, "%s=%s\n", k, prefs.Get(k))
	}
	return nil
}

func runUpload(env *environment, args []string) error {
	fs := newFlags("upload")
	fqbn := fs.String("b", "", "board")
	port := fs.String("p", "", "port")
	useProgrammer := fs.Bool("programmer", false, "upload using the selected programmer")
	verbose := fs.Bool("verbose", false, "verbose uploader output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: boardlink upload [-b fqbn] [-p port] [-programmer] <artifact>")
	}
	if err := applySelection(env, *fqbn, *port, ""); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := session.UploadRequest{
		Artifact:      fs.Arg(0),
		Verbose:       *verbose,
		UseProgrammer: *useProgrammer,
		Output:        env.stdout,
	}
	if bar := progressFor(env, req.Artifact); bar != nil {
		req.Progress = bar
		defer bar.Close()
	}

	res, err := env.session.Upload(ctx, req)
	fmt.Fprintln(env.stdout, ui.UploadSummary(res, err))
	return errors.Wrap(err, "upload")
}

// progressFor returns a byte progress bar for network uploads on a
// terminal. Serial tools print their own progress.
func progressFor(env *environment, artifact string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	sel := env.session.Selection.Current()
	prefs, err := env.session.ResolveEffectivePreferences(sel)
	if err != nil || factory.SelectUploader(prefs, sel.Port) != factory.HTTPUploader {
		return nil
	}
	fi, err := os.Stat(artifact)
	if err != nil {
		return nil
	}
	return progressbar.DefaultBytes(fi.Size(), "uploading")
}

func runMonitor(env *environment, args []string) error {
	fs := newFlags("monitor")
	port := fs.String("p", "", "port (defaults to the selected one)")
	baud := fs.Int("baud", env.cfg.SerialDebugRate, "baud rate")
	artifact := fs.String("artifact", "", "artifact to upload with ctrl+u")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *port != "" {
		if err := env.session.Selection.SelectPort(*port); err != nil {
			return err
		}
	}
	name := env.session.Selection.Current().Port
	if name == "" {
		return errors.WithMessage(upload.ErrConfigurationIncomplete, "no port selected")
	}

	logs, err := logToFile(env.dataDir)
	if err != nil {
		return err
	}
	defer logs.Close()

	var p *tea.Program
	actions := console.Actions{
		Send: func(text string) error { return env.session.SendToMonitor(name, text) },
	}
	if *artifact != "" {
		actions.Upload = func() (*upload.Result, error) {
			return env.session.UploadWithMonitorHandoff(context.Background(), session.UploadRequest{
				Artifact: *artifact,
				Output:   programWriter{p},
			})
		}
	}
	p = tea.NewProgram(console.New(name, *baud, actions), tea.WithAltScreen())

	if err := env.session.OpenMonitor(name, *baud, console.ProgramSink(p)); err != nil {
		return err
	}
	defer env.session.CloseMonitor(name)

	_, err = p.Run()
	return err
}

// programWriter shows uploader output in the console scrollback.
type programWriter struct{ p *tea.Program }

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Send(console.OutputMsg{Data: append([]byte(nil), b...)})
	return len(b), nil
}

func runHistory(env *environment, args []string) error {
	fs := newFlags("history")
	n := fs.Int("n", 20, "number of records to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if env.session.Store == nil {
		return nil
	}
	records, err := env.session.Store.Uploads()
	if err != nil {
		return err
	}
	if *n > 0 && len(records) > *n {
		records = records[len(records)-*n:]
	}
	return writeHistory(env.stdout, records)
}

func writeHistory(out io.Writer, records []store.UploadRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tBOARD\tPORT\tUPLOADER\tRESULT\tDURATION")
	for _, r := range records {
		result := "ok"
		if !r.Success {
			result = "failed"
			if r.Error != "" {
				result += ": " + r.Error
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), orDash(r.Board), orDash(r.Port),
			orDash(r.Uploader), result, orDash(r.Duration))
	}
	return w.Flush()
}

// runConfig prints the effective settings, or stores key=value pairs in
// the data directory config (or the global one with -global).
func runConfig(env *environment, args []string) error {
	fs := newFlags("config")
	global := fs.Bool("global", false, "write the global config instead of the data directory one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		data, err := json.MarshalIndent(env.cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(env.stdout, string(data))
		return nil
	}

	path, err := config.Path(env.dataDir, *global)
	if err != nil {
		return err
	}
	cfg := config.ReadFile(path)
	for _, arg := range fs.Args() {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return errors.Errorf("expected key=value, got %q", arg)
		}
		if err := config.Set(&cfg, key, value); err != nil {
			return err
		}
	}
	if err := config.Save(cfg, env.dataDir, *global); err != nil {
		return errors.Wrap(err, "saving config")
	}
	fmt.Fprintf(env.stdout, "wrote %s\n", path)
	return nil
}
