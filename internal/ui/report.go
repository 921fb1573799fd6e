package ui

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/buckleypaul/boardlink/internal/transport"
	"github.com/buckleypaul/boardlink/internal/upload"
)

// SizeLine describes how much program storage the artifact uses.
func SizeLine(size, max int64) string {
	if max <= 0 {
		return fmt.Sprintf("Sketch uses %d bytes of program storage space.", size)
	}
	return fmt.Sprintf("Sketch uses %d bytes (%d%%) of program storage space. Maximum is %d bytes.",
		size, size*100/max, max)
}

// UploadSummary renders the outcome of an upload in one or two lines.
func UploadSummary(res *upload.Result, err error) string {
	var b strings.Builder
	if err == nil && res != nil && res.Success {
		b.WriteString(SuccessBadge("DONE") + " Done uploading.")
	} else {
		b.WriteString(ErrorBadge("FAILED") + " " + Describe(err))
	}
	if res != nil && res.Size > 0 {
		b.WriteString("\n" + DimStyle.Render(SizeLine(res.Size, res.MaxSize)))
	}
	return b.String()
}

// Describe turns an upload error into a message for the user.
func Describe(err error) string {
	if err == nil {
		return "Upload did not complete."
	}
	var tooBig *upload.SizeExceededError
	var failed *upload.TransferFailedError
	var busy *transport.BusyError
	switch {
	case errors.As(err, &tooBig):
		return "Sketch too big; reduce its size or choose a board with more memory."
	case errors.As(err, &busy):
		return fmt.Sprintf("Port %s is in use by the %s.", busy.Port, busy.Owner)
	case errors.Is(err, upload.ErrConfigurationIncomplete):
		return "Select a board and a port first (" + err.Error() + ")."
	case errors.As(err, &failed):
		return "Problem uploading to board: " + failed.Error()
	}
	return err.Error()
}
