package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/buckleypaul/boardlink/internal/monitor"
	"github.com/buckleypaul/boardlink/internal/serial"
)

const (
	DefaultDebugRate  = 9600
	DefaultLineEnding = "nl"
	DefaultIntervalMS = 250
	DefaultLogLevel   = "info"
	DefaultDataDir    = ".boardlink"
)

// MonitorBaudRates are the rates offered for the serial monitor.
var MonitorBaudRates = []int{300, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 57600, 115200}

// DebugBaudRates omits the rates that older releases accepted but that
// are unreliable on common USB bridges.
var DebugBaudRates = []int{300, 1200, 2400, 4800, 9600, 19200, 57600, 115200}

// ErrUnsupportedBaud matches every *BaudError.
var ErrUnsupportedBaud = errors.New("unsupported baud rate")

// BaudError reports a rate outside the offered list.
type BaudError struct {
	Rate    int
	Allowed []int
}

func (e *BaudError) Error() string {
	return fmt.Sprintf("unsupported baud rate %d, expected one of %v", e.Rate, e.Allowed)
}

func (e *BaudError) Is(target error) bool { return target == ErrUnsupportedBaud }

// legacyRates are rewritten to DefaultDebugRate on load.
var legacyRates = []int{14400, 28800, 38400}

// Config holds all boardlink configuration.
type Config struct {
	HardwareDirs      []string `json:"hardware_dirs,omitempty"`
	PreferencesFile   string   `json:"preferences_file,omitempty"`
	SerialDebugRate   int      `json:"serial_debug_rate,omitempty"`
	SerialParity      string   `json:"serial_parity,omitempty"`
	SerialDataBits    int      `json:"serial_data_bits,omitempty"`
	SerialStopBits    float64  `json:"serial_stop_bits,omitempty"`
	LineEnding        string   `json:"line_ending,omitempty"`
	MonitorIntervalMS int      `json:"monitor_interval_ms,omitempty"`
	LogLevel          string   `json:"log_level,omitempty"`
	LogMonitor        bool     `json:"log_monitor,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		SerialDebugRate:   DefaultDebugRate,
		SerialParity:      "N",
		SerialDataBits:    8,
		SerialStopBits:    1,
		LineEnding:        DefaultLineEnding,
		MonitorIntervalMS: DefaultIntervalMS,
		LogLevel:          DefaultLogLevel,
	}
}

// DataDir returns the default per-user data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Load reads and merges global and data-directory configs.
// Order: defaults → global (~/.config/boardlink/config.json) → <dataDir>/config.json.
func Load(dataDir string) Config {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".config", "boardlink", "config.json")
		mergeFromFile(&cfg, globalPath)
	}

	if dataDir != "" {
		mergeFromFile(&cfg, filepath.Join(dataDir, "config.json"))
		if cfg.PreferencesFile == "" {
			cfg.PreferencesFile = filepath.Join(dataDir, "preferences.txt")
		}
	}

	FixLegacy(&cfg)
	return cfg
}

// FixLegacy rewrites debug rates that are no longer offered.
func FixLegacy(cfg *Config) {
	if slices.Contains(legacyRates, cfg.SerialDebugRate) {
		cfg.SerialDebugRate = DefaultDebugRate
	}
}

// SerialConfig returns the serial line parameters, with the monitor's
// baud rate overriding the configured debug rate when non-zero.
func (c Config) SerialConfig(baud int) serial.Config {
	sc := serial.DefaultConfig()
	if c.SerialDebugRate != 0 {
		sc.BaudRate = c.SerialDebugRate
	}
	if baud != 0 {
		sc.BaudRate = baud
	}
	if c.SerialParity != "" {
		sc.Parity = c.SerialParity[0]
	}
	if c.SerialDataBits != 0 {
		sc.DataBits = c.SerialDataBits
	}
	if c.SerialStopBits != 0 {
		sc.StopBits = c.SerialStopBits
	}
	return sc
}

// Path returns the config file Save writes: <dataDir>/config.json, or the
// global file when global is set.
func Path(dataDir string, global bool) (string, error) {
	if !global {
		return filepath.Join(dataDir, "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "boardlink", "config.json"), nil
}

// ReadFile returns only the settings stored in one config file, without
// defaults. A missing file yields an empty Config.
func ReadFile(path string) Config {
	var cfg Config
	mergeFromFile(&cfg, path)
	return cfg
}

// Save writes the config to <dataDir>/config.json by default,
// or to the global config if global is true.
func Save(cfg Config, dataDir string, global bool) error {
	path, err := Path(dataDir, global)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// CheckMonitorRate returns a *BaudError unless baud is one of
// MonitorBaudRates.
func CheckMonitorRate(baud int) error {
	if !slices.Contains(MonitorBaudRates, baud) {
		return &BaudError{Rate: baud, Allowed: MonitorBaudRates}
	}
	return nil
}

// Set parses value into the setting named key, using the JSON field names.
func Set(cfg *Config, key, value string) error {
	switch key {
	case "hardware_dirs":
		cfg.HardwareDirs = filepath.SplitList(value)
	case "preferences_file":
		cfg.PreferencesFile = value
	case "serial_debug_rate":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		if !slices.Contains(DebugBaudRates, rate) {
			return &BaudError{Rate: rate, Allowed: DebugBaudRates}
		}
		cfg.SerialDebugRate = rate
	case "serial_parity":
		if len(value) != 1 || !strings.Contains("NEOMS", value) {
			return errors.Errorf("invalid %s %q, expected one of N, E, O, M, S", key, value)
		}
		cfg.SerialParity = value
	case "serial_data_bits":
		bits, err := strconv.Atoi(value)
		if err != nil || bits < 5 || bits > 8 {
			return errors.Errorf("invalid %s %q, expected 5 to 8", key, value)
		}
		cfg.SerialDataBits = bits
	case "serial_stop_bits":
		bits, err := strconv.ParseFloat(value, 64)
		if err != nil || (bits != 1 && bits != 1.5 && bits != 2) {
			return errors.Errorf("invalid %s %q, expected 1, 1.5 or 2", key, value)
		}
		cfg.SerialStopBits = bits
	case "line_ending":
		if _, err := monitor.ParseLineEnding(value); err != nil {
			return err
		}
		cfg.LineEnding = value
	case "monitor_interval_ms":
		ms, err := strconv.Atoi(value)
		if err != nil || ms <= 0 {
			return errors.Errorf("invalid %s %q", key, value)
		}
		cfg.MonitorIntervalMS = ms
	case "log_level":
		if _, err := log.ParseLevel(value); err != nil {
			return err
		}
		cfg.LogLevel = value
	case "log_monitor":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		cfg.LogMonitor = on
	default:
		return errors.Errorf("unknown setting %q", key)
	}
	return nil
}

func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}

	if len(fileCfg.HardwareDirs) > 0 {
		cfg.HardwareDirs = fileCfg.HardwareDirs
	}
	if fileCfg.PreferencesFile != "" {
		cfg.PreferencesFile = fileCfg.PreferencesFile
	}
	if fileCfg.SerialDebugRate != 0 {
		cfg.SerialDebugRate = fileCfg.SerialDebugRate
	}
	if fileCfg.SerialParity != "" {
		cfg.SerialParity = fileCfg.SerialParity
	}
	if fileCfg.SerialDataBits != 0 {
		cfg.SerialDataBits = fileCfg.SerialDataBits
	}
	if fileCfg.SerialStopBits != 0 {
		cfg.SerialStopBits = fileCfg.SerialStopBits
	}
	if fileCfg.LineEnding != "" {
		cfg.LineEnding = fileCfg.LineEnding
	}
	if fileCfg.MonitorIntervalMS != 0 {
		cfg.MonitorIntervalMS = fileCfg.MonitorIntervalMS
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogMonitor {
		cfg.LogMonitor = true
	}
}
