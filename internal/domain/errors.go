// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrMalformedRequest = errors.New("malformed request")
var ErrStorageFailure = errors.New("storage failure")
var ErrCompactionAborted = errors.New("compaction aborted")

// Field validation failures. They surface only during compaction.
var ErrMissingRequiredField = errors.New("missing required field")
var ErrInvalidNumeric = errors.New("invalid numeric value")
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Rejection explains why a RawEvent produced no CanonicalRecord.
type Rejection struct {
	Reason error
	Field  string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Field)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// ReasonLabel maps a rejection to a short stable label for logs and metrics.
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrMissingRequiredField):
		return "missing_required_field"
	case errors.Is(err, ErrInvalidNumeric):
		return "invalid_numeric"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	default:
		return "unknown"
	}
}

var RejectionLabels = []string{
	"missing_required_field",
	"invalid_numeric",
	"invalid_timestamp",
}
