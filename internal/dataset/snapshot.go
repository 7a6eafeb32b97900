// SPDX-License-Identifier: Apache-2.0

// Package dataset owns the canonical dataset file: atomic publication by the
// compactor and snapshot reads for everyone else.
package dataset

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrCorrupt = errors.New("canonical dataset is corrupt")

// Snapshot is one published version of the dataset. Records are shared with
// the store's cache and must not be modified.
type Snapshot struct {
	Records     []domain.CanonicalRecord
	Published   bool
	PublishedAt time.Time
	Checksum    string
}

func (s Snapshot) Len() int {
	return len(s.Records)
}

// Publisher replaces the dataset as one atomic step.
type Publisher interface {
	Publish(ctx context.Context, records []domain.CanonicalRecord) (Snapshot, error)
}

// Reader returns the last fully published snapshot.
type Reader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Encode writes records as canonical CSV, header first.
func Encode(w io.Writer, records []domain.CanonicalRecord) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	if err := cw.Write(domain.CanonicalColumns); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(rec.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Checksum is the hex sha256 of the canonical encoding of records.
func Checksum(records []domain.CanonicalRecord) (string, error) {
	h := sha256.New()
	if err := Encode(h, records); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Decode parses canonical CSV produced by Encode.
func Decode(r io.Reader) ([]domain.CanonicalRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(domain.CanonicalColumns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}
	if !slices.Equal(header, domain.CanonicalColumns) {
		return nil, fmt.Errorf("%w: unexpected header %v", ErrCorrupt, header)
	}

	var out []domain.CanonicalRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrCorrupt, line, err)
		}
		out = append(out, rec)
	}
}

func parseRow(row []string) (domain.CanonicalRecord, error) {
	var (
		rec domain.CanonicalRecord
		err error
	)

	if rec.CustomerID, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnCustomerID, err)
	}
	rec.CustomerName = row[1]
	if rec.ProductID, err = strconv.ParseInt(row[2], 10, 64); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnProductID, err)
	}
	rec.ProductName = row[3]
	if rec.UnitPrice, err = decimal.NewFromString(row[4]); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnUnitPrice, err)
	}
	if rec.Quantity, err = strconv.ParseInt(row[5], 10, 64); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnQuantity, err)
	}
	if rec.Amount, err = decimal.NewFromString(row[6]); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnAmount, err)
	}
	rec.PaymentMethod = row[7]
	if rec.RegisteredAt, err = time.Parse(domain.TimestampLayout, row[8]); err != nil {
		return rec, fmt.Errorf("%s: %w", domain.ColumnRegisteredAt, err)
	}
	rec.RegisteredAt = rec.RegisteredAt.UTC()

	return rec, nil
}
