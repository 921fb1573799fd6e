package ui

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/buckleypaul/boardlink/internal/transport"
	"github.com/buckleypaul/boardlink/internal/upload"
)

func TestSizeLine(t *testing.T) {
	got := SizeLine(924, 32256)
	want := "Sketch uses 924 bytes (2%) of program storage space. Maximum is 32256 bytes."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := SizeLine(100, 0); !strings.HasPrefix(got, "Sketch uses 100 bytes of") {
		t.Errorf("unexpected line without maximum: %q", got)
	}
}

func TestUploadSummary(t *testing.T) {
	ok := UploadSummary(&upload.Result{Success: true, Size: 10, MaxSize: 100}, nil)
	if !strings.Contains(ok, "Done uploading") || !strings.Contains(ok, "(10%)") {
		t.Errorf("unexpected success summary %q", ok)
	}

	failed := UploadSummary(&upload.Result{}, &upload.SizeExceededError{Size: 200, Max: 100})
	if !strings.Contains(failed, "Sketch too big") {
		t.Errorf("unexpected failure summary %q", failed)
	}
}

func TestDescribe(t *testing.T) {
	cases := map[string]error{
		"in use by the monitor": &transport.BusyError{Port: "COM3", Owner: "monitor"},
		"Select a board":        errors.WithMessage(upload.ErrConfigurationIncomplete, "no port selected"),
		"Problem uploading":     &upload.TransferFailedError{ExitCode: 1},
		"something else":        errors.New("something else"),
	}
	for want, err := range cases {
		if got := Describe(err); !strings.Contains(got, want) {
			t.Errorf("Describe(%v) = %q, want it to contain %q", err, got, want)
		}
	}
}
