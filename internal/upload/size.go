package upload

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	properties "github.com/arduino/go-properties-orderedmap"
	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// ArtifactSize returns the number of bytes that will be written to the
// board: the data bytes of an Intel HEX file, the file size otherwise.
func ArtifactSize(path string) (int64, error) {
	if !strings.EqualFold(filepath.Ext(path), ".hex") {
		info, err := os.Stat(path)
		if err != nil {
			return 0, errors.Wrap(err, "reading artifact")
		}
		return info.Size(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "reading artifact")
	}
	defer f.Close()
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return 0, errors.Wrapf(err, "parsing %s", filepath.Base(path))
	}
	var size int64
	for _, seg := range mem.GetDataSegments() {
		size += int64(len(seg.Data))
	}
	return size, nil
}

// CheckSize measures the artifact against upload.maximum_size. A board
// without a maximum accepts any size; a size equal to the maximum fits.
func CheckSize(artifact string, prefs *properties.Map) (size, max int64, err error) {
	size, err = ArtifactSize(artifact)
	if err != nil {
		return 0, 0, err
	}
	raw, ok := prefs.GetOk("upload.maximum_size")
	if !ok || raw == "" {
		return size, 0, nil
	}
	max, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return size, 0, errors.Wrapf(err, "invalid upload.maximum_size %q", raw)
	}
	if size > max {
		return size, max, &SizeExceededError{Size: size, Max: max}
	}
	return size, max, nil
}
