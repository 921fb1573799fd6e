// Package session is the entry point the command line and console use to
// act on the current selection: resolving preferences, uploading, and
// running monitors.
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	properties "github.com/arduino/go-properties-orderedmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/config"
	"github.com/buckleypaul/boardlink/internal/factory"
	"github.com/buckleypaul/boardlink/internal/hardware"
	"github.com/buckleypaul/boardlink/internal/monitor"
	"github.com/buckleypaul/boardlink/internal/selection"
	"github.com/buckleypaul/boardlink/internal/store"
	"github.com/buckleypaul/boardlink/internal/transport"
	"github.com/buckleypaul/boardlink/internal/upload"
)

const (
	reopenAttempts = 20
	reopenDelay    = 250 * time.Millisecond
)

// UploadRequest is what callers provide; the board, port and programmer
// come from the current selection.
type UploadRequest struct {
	Artifact      string
	Verbose       bool
	UseProgrammer bool
	Output        io.Writer
	Progress      io.Writer
}

type monitorEntry struct {
	ctrl    *monitor.Controller
	baud    int
	sink    monitor.Sink
	logFile *os.File
}

// Session ties the hardware index, the selection and the transports
// together. Store may be nil to skip history.
type Session struct {
	Index     *hardware.Index
	Selection *selection.Manager
	Factory   *factory.Factory
	Store     *store.Store
	Config    config.Config

	mu       sync.Mutex
	monitors map[string]*monitorEntry
}

// New returns a session with no open monitors.
func New(idx *hardware.Index, sel *selection.Manager, fac *factory.Factory, st *store.Store, cfg config.Config) *Session {
	return &Session{
		Index:     idx,
		Selection: sel,
		Factory:   fac,
		Store:     st,
		Config:    cfg,
		monitors:  map[string]*monitorEntry{},
	}
}

// ResolveEffectivePreferences returns the full upload preferences for sel:
// platform properties, board preferences and chosen menu options.
func (s *Session) ResolveEffectivePreferences(sel selection.Selection) (*properties.Map, error) {
	target, err := selection.Resolve(s.Index, sel)
	if err != nil {
		return nil, err
	}
	return target.UploadPreferences(), nil
}

// Upload sends req.Artifact to the currently selected board. Every attempt
// is recorded in the store.
func (s *Session) Upload(ctx context.Context, req UploadRequest) (*upload.Result, error) {
	sel := s.Selection.Current()
	rec := store.UploadRecord{
		Port:      sel.Port,
		Artifact:  req.Artifact,
		Timestamp: time.Now(),
	}
	if sel.HasBoard() {
		rec.Board = (&selection.BoardKey{Package: sel.Package, Platform: sel.Platform, Board: sel.Board}).String()
	}
	if req.UseProgrammer {
		rec.Programmer = sel.Programmer
	}

	res, kind, err := s.upload(ctx, sel, req)
	rec.Uploader = kind
	if res != nil {
		rec.Success = res.Success
		rec.Size, rec.MaxSize = res.Size, res.MaxSize
		rec.Duration = res.Duration.Round(time.Millisecond).String()
		if res.Port != "" {
			rec.Port = res.Port
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if s.Store != nil {
		if serr := s.Store.AddUpload(rec); serr != nil {
			log.Warnf("recording upload: %v", serr)
		}
	}
	return res, err
}

func (s *Session) upload(ctx context.Context, sel selection.Selection, req UploadRequest) (*upload.Result, string, error) {
	target, err := selection.Resolve(s.Index, sel)
	if errors.Is(err, selection.ErrIncomplete) {
		return nil, "", errors.WithMessage(upload.ErrConfigurationIncomplete, "no board selected")
	}
	if err != nil {
		return nil, "", err
	}
	if !req.UseProgrammer && sel.Port == "" {
		return nil, "", errors.WithMessage(upload.ErrConfigurationIncomplete, "no port selected")
	}
	var programmer *properties.Map
	if req.UseProgrammer {
		if target.Programmer == nil {
			return nil, "", errors.WithMessage(upload.ErrConfigurationIncomplete, "no programmer selected")
		}
		programmer = target.Programmer.Properties
	}

	prefs := target.UploadPreferences()
	kind := factory.SelectUploader(prefs, sel.Port)
	logger := log.WithFields(log.Fields{
		"board":     target.FQBN(),
		"port":      sel.Port,
		"transport": s.Factory.Classify(sel.Port),
		"uploader":  kind,
	})
	logger.Info("uploading")

	ureq := upload.Request{
		Preferences:   prefs,
		Port:          sel.Port,
		Artifact:      req.Artifact,
		Verbose:       req.Verbose,
		UseProgrammer: req.UseProgrammer,
		Programmer:    programmer,
		Output:        req.Output,
		Progress:      req.Progress,
	}
	res, err := s.Factory.NewUploader(prefs, sel.Port).Upload(ctx, ureq)
	if err != nil {
		logger.Warnf("upload failed: %v", err)
	} else {
		logger.WithField("size", res.Size).Infof("upload done in %s", res.Duration.Round(time.Millisecond))
	}
	return res, kind.String(), err
}

// OpenMonitor starts a monitor on port delivering to sink. baud 0 uses the
// configured debug rate; serial ports only accept the monitor rates.
// Opening a port that is already monitored does nothing.
func (s *Session) OpenMonitor(port string, baud int, sink monitor.Sink) error {
	if s.MonitorOpen(port) {
		return nil
	}

	serialCfg := s.Config.SerialConfig(baud)
	if s.Factory.Classify(port) == transport.Serial {
		if err := config.CheckMonitorRate(serialCfg.BaudRate); err != nil {
			return err
		}
	}

	entry := &monitorEntry{baud: baud, sink: sink}
	opts := []monitor.Option{
		monitor.WithInterval(time.Duration(s.Config.MonitorIntervalMS) * time.Millisecond),
	}
	ending, err := monitor.ParseLineEnding(s.Config.LineEnding)
	if err != nil {
		log.Warnf("%v, sending without line ending", err)
	}
	opts = append(opts, monitor.WithLineEnding(ending))

	if s.Config.LogMonitor && s.Store != nil {
		f, err := s.Store.CreateSerialLog(port, serialCfg.BaudRate)
		if err != nil {
			log.WithField("port", port).Warnf("creating monitor log: %v", err)
		} else {
			entry.logFile = f
			opts = append(opts, monitor.WithLogWriter(f))
		}
	}

	// Opening may dial a network board; other ports stay usable meanwhile.
	entry.ctrl = s.Factory.NewMonitor(port, serialCfg, sink, opts...)
	if err := entry.ctrl.Open(); err != nil {
		if entry.logFile != nil {
			entry.logFile.Close()
		}
		return err
	}

	s.mu.Lock()
	prev, ok := s.monitors[port]
	if ok && prev.ctrl.IsOpen() {
		s.mu.Unlock()
		// Lost a race with another OpenMonitor on the same port.
		return entry.close()
	}
	s.monitors[port] = entry
	s.mu.Unlock()
	if ok {
		prev.close()
	}
	return nil
}

// CloseMonitor stops the monitor on port, if any.
func (s *Session) CloseMonitor(port string) error {
	s.mu.Lock()
	entry, ok := s.monitors[port]
	delete(s.monitors, port)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.close()
}

func (e *monitorEntry) close() error {
	err := e.ctrl.Close()
	if e.logFile != nil {
		e.logFile.Close()
	}
	return err
}

// MonitorOpen reports whether port is being monitored.
func (s *Session) MonitorOpen(port string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.monitors[port]
	return ok && e.ctrl.IsOpen()
}

// SendToMonitor writes text to the monitor on port.
func (s *Session) SendToMonitor(port, text string) error {
	s.mu.Lock()
	entry, ok := s.monitors[port]
	s.mu.Unlock()
	if !ok {
		return monitor.ErrClosed
	}
	return entry.ctrl.Send(text)
}

// UploadWithMonitorHandoff uploads like Upload, first closing a monitor on
// the selected port and reopening it afterwards whether or not the upload
// succeeded.
func (s *Session) UploadWithMonitorHandoff(ctx context.Context, req UploadRequest) (*upload.Result, error) {
	port := s.Selection.Current().Port
	s.mu.Lock()
	entry, ok := s.monitors[port]
	s.mu.Unlock()

	if ok {
		log.WithField("port", port).Info("pausing monitor for upload")
		if err := s.CloseMonitor(port); err != nil {
			log.WithField("port", port).Warnf("closing monitor: %v", err)
		}
	}

	res, err := s.Upload(ctx, req)

	if ok {
		if rerr := s.reopenMonitor(ctx, port, entry); rerr != nil {
			log.WithField("port", port).Warnf("reopening monitor: %v", rerr)
			if err == nil {
				err = errors.Wrap(rerr, "reopening monitor")
			}
		}
	}
	return res, err
}

// reopenMonitor retries while the board re-enumerates after a reset.
func (s *Session) reopenMonitor(ctx context.Context, port string, entry *monitorEntry) error {
	var err error
	for i := 0; i < reopenAttempts; i++ {
		if err = s.OpenMonitor(port, entry.baud, entry.sink); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(reopenDelay):
		}
	}
	return err
}

// Close stops every monitor.
func (s *Session) Close() {
	s.mu.Lock()
	entries := s.monitors
	s.monitors = map[string]*monitorEntry{}
	s.mu.Unlock()
	for port, e := range entries {
		if err := e.close(); err != nil {
			log.WithField("port", port).Warnf("closing monitor: %v", err)
		}
	}
}
