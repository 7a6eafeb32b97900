// SPDX-License-Identifier: Apache-2.0

// Package rawstore holds the append-only log of events as they were received.
package rawstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/adiadia/salesflow/internal/domain"
)

// Store is an append-only raw event log. Append writes a batch as one unit:
// either every event lands or none does.
type Store interface {
	Append(ctx context.Context, events []domain.RawEvent) (int, error)
	ReadAll(ctx context.Context) ([]domain.RawEntry, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

var ErrClosed = errors.New("raw store closed")

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, op, err)
}

// encodeCell renders one raw value as a CSV cell.
func encodeCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func encodeRow(ev domain.RawEvent) []string {
	row := make([]string, len(domain.RawFields))
	for i, field := range domain.RawFields {
		row[i] = encodeCell(ev[field])
	}
	return row
}

func decodeRow(row []string) domain.RawEvent {
	ev := make(domain.RawEvent, len(domain.RawFields))
	for i, field := range domain.RawFields {
		if i < len(row) {
			ev[field] = row[i]
		}
	}
	return ev
}
