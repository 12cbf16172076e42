package initiator

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cyberinferno/filecopy/protocol"
)

var (
	// ErrNotExist marks a requested path that does not exist.
	ErrNotExist = errors.New("does not exist, it will be ignored")
	// ErrNotRegular marks a requested path that is not a regular file.
	ErrNotRegular = errors.New("is not a regular file")
	// ErrBatchFull marks paths beyond the largest count a batch header holds.
	ErrBatchFull = fmt.Errorf("batch already holds %d files", math.MaxInt16)
)

// Skipped is a requested path that was dropped before the batch header was
// computed.
type Skipped struct {
	Path   string
	Reason error
}

// FilterFiles keeps, in order, the paths that exist, are regular files and
// whose wire name fits a file header. Everything else is returned as skipped
// and never counted in the batch.
//
// Parameters:
//   - paths: Requested local paths
//
// Returns:
//   - The paths to send
//   - The dropped paths with the reason for each
func FilterFiles(paths []string) ([]string, []Skipped) {
	var kept []string
	var skipped []Skipped

	for _, p := range paths {
		if reason := checkFile(p); reason != nil {
			skipped = append(skipped, Skipped{Path: p, Reason: reason})
			continue
		}

		if len(kept) == math.MaxInt16 {
			skipped = append(skipped, Skipped{Path: p, Reason: ErrBatchFull})
			continue
		}

		kept = append(kept, p)
	}

	return kept, skipped
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotExist
		}
		return err
	}

	if !info.Mode().IsRegular() {
		return ErrNotRegular
	}

	if name := protocol.WireName(path); len(name) > protocol.MaxNameLength {
		return protocol.ErrNameTooLong
	}

	return nil
}
