// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"

	"github.com/adiadia/salesflow/internal/domain"
)

// CSVReader reads a raw log that another process appends to. It never
// modifies the file. Only the prefix covered by the commit marker is read, so
// a batch still being written or later rolled back is never seen. A log with
// no marker has never been opened by a writer; it is read in full, minus an
// incomplete trailing record.
type CSVReader struct {
	path string
}

func NewCSVReader(path string) *CSVReader {
	return &CSVReader{path: path}
}

func (r *CSVReader) Path() string {
	return r.path
}

// ReadAll returns every complete record in storage order. A file that does
// not exist yet is an empty log.
func (r *CSVReader) ReadAll(ctx context.Context) ([]domain.RawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The marker is read first; the writer only grows the file past it.
	committed, marked, err := readCommitted(r.path)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read raw store %s: %w", r.path, err)
	}
	if marked {
		if committed > int64(len(body)) {
			return nil, fmt.Errorf("raw store %s: committed offset %d beyond end of file %d", r.path, committed, len(body))
		}
		body = body[:committed]
	}

	header := headerLine()
	if len(body) < len(header) {
		if bytes.HasPrefix(header, body) {
			return nil, nil
		}
		return nil, fmt.Errorf("raw store %s: unexpected header", r.path)
	}

	cr := newReader(bytes.NewReader(body))
	got, err := cr.Read()
	if err != nil || !slices.Equal(got, domain.RawFields) {
		return nil, fmt.Errorf("raw store %s: unexpected header", r.path)
	}

	var (
		entries []domain.RawEntry
		tornAt  int64 = -1
		size          = int64(len(body))
	)
	for {
		if len(entries)%1024 == 1023 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		start := cr.InputOffset()
		row, err := cr.Read()
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
			return nil, fmt.Errorf("raw store %s: corrupt record at offset %d", r.path, tornAt)
		}
		if cr.InputOffset() == size && body[size-1] != '\n' {
			// Parsed, but the terminator has not landed yet.
			break
		}
		entries = append(entries, domain.RawEntry{
			Seq:   int64(len(entries) + 1),
			Event: decodeRow(row),
		})
	}
	return entries, nil
}
