package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAddAndRetrieveUploads(t *testing.T) {
	tmp := t.TempDir()
	s := New(tmp)

	record := UploadRecord{
		Board:     "arduino:avr:uno",
		Port:      "/dev/ttyACM0",
		Artifact:  "build/Blink.ino.hex",
		Uploader:  "serial",
		Timestamp: time.Now(),
		Success:   true,
		Duration:  "3.1s",
		Size:      924,
		MaxSize:   32256,
	}

	if err := s.AddUpload(record); err != nil {
		t.Fatalf("AddUpload failed: %v", err)
	}

	uploads, err := s.Uploads()
	if err != nil {
		t.Fatalf("Uploads failed: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	if uploads[0].Board != "arduino:avr:uno" || uploads[0].Size != 924 {
		t.Errorf("unexpected record %+v", uploads[0])
	}
}

func TestAddMultipleRecords(t *testing.T) {
	tmp := t.TempDir()
	s := New(tmp)

	s.AddUpload(UploadRecord{Board: "arduino:avr:uno", Timestamp: time.Now(), Success: true, Duration: "5s"})
	s.AddUpload(UploadRecord{Board: "arduino:avr:yun", Timestamp: time.Now(), Success: false, Duration: "3s", Error: "board answered Internal Server Error"})
	s.AddSerialLog(SerialLog{Port: "COM3", BaudRate: 9600, Timestamp: time.Now(), LogFile: "x.log"})

	uploads, _ := s.Uploads()
	if len(uploads) != 2 {
		t.Errorf("expected 2 uploads, got %d", len(uploads))
	}
	if uploads[1].Error == "" {
		t.Error("expected failure reason to survive")
	}

	logs, _ := s.SerialLogs()
	if len(logs) != 1 {
		t.Errorf("expected 1 serial log, got %d", len(logs))
	}
}

func TestEmptyStore(t *testing.T) {
	tmp := t.TempDir()
	s := New(tmp)

	uploads, err := s.Uploads()
	if err != nil {
		t.Fatalf("Uploads on empty store failed: %v", err)
	}
	if len(uploads) != 0 {
		t.Errorf("expected 0 uploads, got %d", len(uploads))
	}
}

func TestCreateSerialLog(t *testing.T) {
	tmp := t.TempDir()
	s := New(tmp)

	f, err := s.CreateSerialLog("/dev/tty.usbmodem 1411", 115200)
	if err != nil {
		t.Fatalf("CreateSerialLog failed: %v", err)
	}
	f.WriteString("hello\n")
	f.Close()

	if filepath.Dir(f.Name()) != filepath.Join(tmp, "logs") {
		t.Errorf("log created outside logs dir: %s", f.Name())
	}
	if base := filepath.Base(f.Name()); !strings.HasPrefix(base, "tty.usbmodem_1411-") {
		t.Errorf("unexpected log name %s", base)
	}
	if data, _ := os.ReadFile(f.Name()); string(data) != "hello\n" {
		t.Errorf("unexpected log content %q", data)
	}

	logs, _ := s.SerialLogs()
	if len(logs) != 1 || logs[0].LogFile != f.Name() || logs[0].BaudRate != 115200 {
		t.Errorf("expected session recorded, got %+v", logs)
	}
}

func TestCorruptHistoryIsKeptAside(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	dir := filepath.Join(root, "history")
	os.MkdirAll(dir, 0o755)
	corrupt := []byte(`[{"board": "arduino:avr:uno"`)
	os.WriteFile(filepath.Join(dir, "uploads.json"), corrupt, 0o644)

	if _, err := s.Uploads(); err == nil {
		t.Error("expected an error reading corrupt history")
	}

	if err := s.AddUpload(UploadRecord{Board: "arduino:avr:nano", Success: true, Timestamp: time.Now()}); err != nil {
		t.Fatalf("AddUpload failed: %v", err)
	}
	records, err := s.Uploads()
	if err != nil {
		t.Fatalf("Uploads failed: %v", err)
	}
	if len(records) != 1 || records[0].Board != "arduino:avr:nano" {
		t.Errorf("expected only the new record, got %+v", records)
	}

	backups, _ := filepath.Glob(filepath.Join(dir, "uploads.json.corrupt-*"))
	if len(backups) != 1 {
		t.Fatalf("expected one backup, got %v", backups)
	}
	if data, _ := os.ReadFile(backups[0]); string(data) != string(corrupt) {
		t.Errorf("backup content changed: %q", data)
	}
}
