package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.SerialDebugRate != 9600 {
		t.Errorf("expected SerialDebugRate=9600, got=%d", cfg.SerialDebugRate)
	}
	if cfg.LineEnding != "nl" {
		t.Errorf("expected LineEnding=nl, got=%s", cfg.LineEnding)
	}
}

func TestLoadMerge(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmp := t.TempDir()
	os.WriteFile(filepath.Join(tmp, "config.json"), []byte(`{
		"hardware_dirs": ["/opt/arduino/hardware"],
		"serial_debug_rate": 115200
	}`), 0o644)

	cfg := Load(tmp)

	if diff := cmp.Diff([]string{"/opt/arduino/hardware"}, cfg.HardwareDirs); diff != "" {
		t.Errorf("hardware_dirs mismatch (-want +got):\n%s", diff)
	}
	if cfg.SerialDebugRate != 115200 {
		t.Errorf("expected debug rate 115200 from data dir, got=%d", cfg.SerialDebugRate)
	}
	// MonitorIntervalMS should still be default since not overridden
	if cfg.MonitorIntervalMS != 250 {
		t.Errorf("expected default MonitorIntervalMS=250, got=%d", cfg.MonitorIntervalMS)
	}
	if cfg.PreferencesFile != filepath.Join(tmp, "preferences.txt") {
		t.Errorf("expected preferences file in data dir, got=%s", cfg.PreferencesFile)
	}
}

func TestLoadFixesLegacyDebugRate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, rate := range []string{"14400", "28800", "38400"} {
		tmp := t.TempDir()
		os.WriteFile(filepath.Join(tmp, "config.json"), []byte(`{"serial_debug_rate": `+rate+`}`), 0o644)
		if cfg := Load(tmp); cfg.SerialDebugRate != 9600 {
			t.Errorf("rate %s: expected 9600, got=%d", rate, cfg.SerialDebugRate)
		}
	}

	cfg := Config{SerialDebugRate: 57600}
	FixLegacy(&cfg)
	if cfg.SerialDebugRate != 57600 {
		t.Errorf("expected 57600 untouched, got=%d", cfg.SerialDebugRate)
	}
}

func TestBaudRateLists(t *testing.T) {
	if len(MonitorBaudRates) != 11 {
		t.Errorf("expected 11 monitor rates, got %d", len(MonitorBaudRates))
	}
	for _, legacy := range []int{14400, 28800, 38400} {
		for _, r := range DebugBaudRates {
			if r == legacy {
				t.Errorf("debug rates must not offer %d", legacy)
			}
		}
	}
}

func TestSerialConfig(t *testing.T) {
	cfg := Defaults()
	cfg.SerialParity = "E"
	cfg.SerialStopBits = 2

	sc := cfg.SerialConfig(0)
	if sc.BaudRate != 9600 || sc.Parity != 'E' || sc.DataBits != 8 || sc.StopBits != 2 {
		t.Errorf("unexpected serial config %+v", sc)
	}
	if sc := cfg.SerialConfig(115200); sc.BaudRate != 115200 {
		t.Errorf("expected monitor rate to win, got %d", sc.BaudRate)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmp := t.TempDir()
	cfg := Config{
		PreferencesFile: "/tmp/prefs.txt",
		SerialDebugRate: 57600,
		LineEnding:      "crnl",
		LogMonitor:      true,
	}

	err := Save(cfg, tmp, false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file exists
	path := filepath.Join(tmp, "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	// Load it back
	loaded := Load(tmp)
	if loaded.PreferencesFile != "/tmp/prefs.txt" {
		t.Errorf("expected PreferencesFile=/tmp/prefs.txt, got=%s", loaded.PreferencesFile)
	}
	if loaded.SerialDebugRate != 57600 {
		t.Errorf("expected SerialDebugRate=57600, got=%d", loaded.SerialDebugRate)
	}
	if loaded.LineEnding != "crnl" || !loaded.LogMonitor {
		t.Errorf("expected crnl with monitor logging, got=%s %v", loaded.LineEnding, loaded.LogMonitor)
	}
}

func TestSaveGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := Save(Config{LogLevel: "debug"}, "", true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cfg := Load(t.TempDir()); cfg.LogLevel != "debug" {
		t.Errorf("expected global log level, got=%s", cfg.LogLevel)
	}
}

func TestCheckMonitorRate(t *testing.T) {
	for _, rate := range MonitorBaudRates {
		if err := CheckMonitorRate(rate); err != nil {
			t.Errorf("rate %d: unexpected error %v", rate, err)
		}
	}
	err := CheckMonitorRate(12345)
	if !errors.Is(err, ErrUnsupportedBaud) {
		t.Fatalf("expected ErrUnsupportedBaud, got %v", err)
	}
	var be *BaudError
	if !errors.As(err, &be) || be.Rate != 12345 {
		t.Errorf("expected *BaudError for 12345, got %#v", err)
	}
}

func TestSet(t *testing.T) {
	cfg := Defaults()
	for key, value := range map[string]string{
		"serial_debug_rate":   "115200",
		"serial_parity":       "E",
		"serial_stop_bits":    "1.5",
		"line_ending":         "crnl",
		"monitor_interval_ms": "100",
		"log_monitor":         "true",
	} {
		if err := Set(&cfg, key, value); err != nil {
			t.Fatalf("Set(%s=%s): %v", key, value, err)
		}
	}
	if cfg.SerialDebugRate != 115200 || cfg.SerialParity != "E" || cfg.SerialStopBits != 1.5 ||
		cfg.LineEnding != "crnl" || cfg.MonitorIntervalMS != 100 || !cfg.LogMonitor {
		t.Errorf("settings not applied: %+v", cfg)
	}
}

func TestSetRejects(t *testing.T) {
	cfg := Defaults()
	if err := Set(&cfg, "serial_debug_rate", "28800"); !errors.Is(err, ErrUnsupportedBaud) {
		t.Errorf("expected legacy debug rate rejected, got %v", err)
	}
	for key, value := range map[string]string{
		"serial_debug_rate": "fast",
		"serial_parity":     "X",
		"serial_data_bits":  "9",
		"serial_stop_bits":  "3",
		"line_ending":       "lf",
		"log_level":         "loud",
		"no_such_key":       "1",
	} {
		if err := Set(&cfg, key, value); err == nil {
			t.Errorf("Set(%s=%s): expected error", key, value)
		}
	}
	if cfg.SerialDebugRate != DefaultDebugRate {
		t.Errorf("rejected value was applied: %d", cfg.SerialDebugRate)
	}
}

func TestReadFileKeepsOnlyFileSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0o644)

	cfg := ReadFile(path)
	if cfg.LogLevel != "debug" || cfg.SerialDebugRate != 0 || cfg.LineEnding != "" {
		t.Errorf("expected only log_level, got %+v", cfg)
	}
}
