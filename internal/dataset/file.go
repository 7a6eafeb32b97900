// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/adiadia/salesflow/internal/domain"
)

type cachedSnapshot struct {
	info fs.FileInfo
	snap Snapshot
}

// matches reports whether info still describes the file the snapshot was
// parsed from. Publish renames a new file into place, so identity changes
// even when size and mtime collide.
func (c *cachedSnapshot) matches(info fs.FileInfo) bool {
	return os.SameFile(c.info, info) &&
		c.info.Size() == info.Size() &&
		c.info.ModTime().Equal(info.ModTime())
}

// FileStore keeps the dataset in a single CSV file. Publish swaps the file in
// with a rename; Load parses it once per version and serves the parsed copy
// from an atomic pointer afterwards.
type FileStore struct {
	path  string
	cache atomic.Pointer[cachedSnapshot]
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Publish(ctx context.Context, records []domain.CanonicalRecord) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("create dataset dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return Snapshot{}, fmt.Errorf("create temp dataset: %w", err)
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	if err := Encode(io.MultiWriter(tmp, h), records); err != nil {
		return Snapshot{}, fmt.Errorf("write temp dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return Snapshot{}, fmt.Errorf("sync temp dataset: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return Snapshot{}, fmt.Errorf("chmod temp dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Snapshot{}, fmt.Errorf("close temp dataset: %w", err)
	}

	// Last point at which a cancelled compaction can still back out.
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return Snapshot{}, fmt.Errorf("swap dataset: %w", err)
	}
	renamed = true

	if err := syncDir(dir); err != nil {
		return Snapshot{}, fmt.Errorf("sync dataset dir: %w", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat dataset: %w", err)
	}

	snap := Snapshot{
		Records:     slices.Clone(records),
		Published:   true,
		PublishedAt: info.ModTime().UTC(),
		Checksum:    hex.EncodeToString(h.Sum(nil)),
	}
	s.cache.Store(&cachedSnapshot{info: info, snap: snap})

	return snap, nil
}

// Load returns the current snapshot. A dataset that was never published is an
// empty, unpublished snapshot and not an error.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat dataset: %w", err)
	}

	if c := s.cache.Load(); c != nil && c.matches(info) {
		return c.snap, nil
	}

	body, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read dataset: %w", err)
	}

	records, err := Decode(bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, err
	}

	sum := sha256.Sum256(body)
	snap := Snapshot{
		Records:     records,
		Published:   true,
		PublishedAt: info.ModTime().UTC(),
		Checksum:    hex.EncodeToString(sum[:]),
	}

	// Only cache when the bytes read match the version that was stat'ed.
	if int64(len(body)) == info.Size() {
		s.cache.Store(&cachedSnapshot{info: info, snap: snap})
	}
	return snap, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
