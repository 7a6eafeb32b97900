// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"context"

	"github.com/google/uuid"
)

type batchIDContextKey struct{}

var ctxBatchIDKey batchIDContextKey

// WithBatchID tags an ingestion context with the id of the webhook batch
// being appended. Backends that keep batch ids read it from here.
func WithBatchID(ctx context.Context, batchID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxBatchIDKey, batchID)
}

func BatchIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxBatchIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
