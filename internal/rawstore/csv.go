// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/adiadia/salesflow/internal/domain"
)

// CSVStore keeps the raw log in a single CSV file whose header is
// domain.RawFields. Only one process may append to a given file; others read
// it through CSVReader, bounded by the commit marker.
type CSVStore struct {
	path string

	mu    sync.Mutex
	f     *os.File
	size  int64 // committed bytes
	count int64
}

// OpenCSV opens or creates the log at path. A record torn by a crash during
// an earlier append is cut off the tail of the file.
func OpenCSV(path string) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create raw store directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open raw store %s: %w", path, err)
	}

	s := &CSVStore{path: path, f: f}
	if err := s.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *CSVStore) Path() string {
	return s.path
}

func headerLine() []byte {
	return []byte(strings.Join(domain.RawFields, ",") + "\n")
}

func (s *CSVStore) recover() error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat raw store: %w", err)
	}

	header := headerLine()
	if info.Size() < int64(len(header)) {
		// Empty, or a header torn before it was fully written.
		existing := make([]byte, info.Size())
		if _, err := s.f.ReadAt(existing, 0); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read raw store header: %w", err)
		}
		if !bytes.HasPrefix(header, existing) {
			return fmt.Errorf("raw store %s: unexpected header", s.path)
		}
		if err := s.f.Truncate(0); err != nil {
			return fmt.Errorf("reset raw store: %w", err)
		}
		if _, err := s.f.WriteAt(header, 0); err != nil {
			return fmt.Errorf("write raw store header: %w", err)
		}
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("sync raw store header: %w", err)
		}
		s.size = int64(len(header))
		return writeCommitted(s.path, s.size)
	}

	r := newReader(io.NewSectionReader(s.f, 0, info.Size()))
	got, err := r.Read()
	if err != nil || !slices.Equal(got, domain.RawFields) {
		return fmt.Errorf("raw store %s: unexpected header", s.path)
	}

	good := r.InputOffset()
	var (
		count   int64
		tornAt  int64 = -1
		lastOff       = good
	)
	for {
		start := r.InputOffset()
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tornAt < 0 {
				tornAt = start
			}
			continue
		}
		if tornAt >= 0 {
			return fmt.Errorf("raw store %s: corrupt record at offset %d", s.path, tornAt)
		}
		count++
		lastOff = start
		good = r.InputOffset()
	}

	end := good
	if tornAt < 0 && good == info.Size() && count > 0 && !endsWithNewline(s.f, good) {
		// The final record parsed but its terminator never landed.
		end = lastOff
		count--
	}
	if tornAt >= 0 {
		end = tornAt
	}
	if end < info.Size() {
		if err := s.f.Truncate(end); err != nil {
			return fmt.Errorf("truncate torn raw record: %w", err)
		}
	}

	s.size = end
	s.count = count
	return writeCommitted(s.path, s.size)
}

func endsWithNewline(f *os.File, size int64) bool {
	if size == 0 {
		return false
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, size-1); err != nil {
		return false
	}
	return b[0] == '\n'
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.RawFields)
	return cr
}

// Append writes events as one contiguous block, fsyncs it, then moves the
// commit marker past it. On any failure the file is cut back to its previous
// length and the marker is left where it was.
func (s *CSVStore) Append(ctx context.Context, events []domain.RawEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, ev := range events {
		if err := w.Write(encodeRow(ev)); err != nil {
			return 0, storageErr("encode raw event", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, storageErr("encode raw event", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, storageErr("append", ErrClosed)
	}

	n, err := s.f.WriteAt(buf.Bytes(), s.size)
	if err == nil {
		err = s.f.Sync()
	}
	if err == nil {
		err = writeCommitted(s.path, s.size+int64(n))
	}
	if err != nil {
		if n > 0 {
			_ = s.f.Truncate(s.size)
		}
		return 0, storageErr("append", err)
	}

	s.size += int64(n)
	s.count += int64(len(events))
	return len(events), nil
}

// ReadAll returns every committed event in storage order. Appends that
// commit while the read is in progress are not included.
func (s *CSVStore) ReadAll(ctx context.Context) ([]domain.RawEntry, error) {
	s.mu.Lock()
	f, size, count := s.f, s.size, s.count
	s.mu.Unlock()

	if f == nil {
		return nil, ErrClosed
	}

	r := newReader(io.NewSectionReader(f, 0, size))
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read raw store header: %w", err)
	}

	entries := make([]domain.RawEntry, 0, count)
	for seq := int64(1); ; seq++ {
		if seq%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read raw record %d: %w", seq, err)
		}
		entries = append(entries, domain.RawEntry{
			Seq:   seq,
			Event: decodeRow(row),
		})
	}
	return entries, nil
}

func (s *CSVStore) Len(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrClosed
	}
	return s.count, nil
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
