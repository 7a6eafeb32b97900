// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CommittedPath is the marker file holding the byte length of the committed
// prefix of the CSV log at path. The writer replaces it after every append
// has been fsynced, so a reader in another process never sees part of a batch.
func CommittedPath(path string) string {
	return path + ".committed"
}

func writeCommitted(path string, size int64) error {
	marker := CommittedPath(path)
	tmp, err := os.CreateTemp(filepath.Dir(marker), "."+filepath.Base(marker)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create commit marker: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.WriteString(strconv.FormatInt(size, 10) + "\n")
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, marker)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write commit marker: %w", err)
	}
	return nil
}

// readCommitted reports the committed length recorded for path. ok is false
// when no writer has opened the log yet.
func readCommitted(path string) (size int64, ok bool, err error) {
	b, err := os.ReadFile(CommittedPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read commit marker: %w", err)
	}
	size, err = strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || size < 0 {
		return 0, false, fmt.Errorf("commit marker %s: invalid offset %q", CommittedPath(path), strings.TrimSpace(string(b)))
	}
	return size, true, nil
}
