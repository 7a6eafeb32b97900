// SPDX-License-Identifier: Apache-2.0

package rawstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestBatchIDContextRoundTrip(t *testing.T) {
	id := uuid.New()
	got, ok := BatchIDFromContext(WithBatchID(context.Background(), id))
	if !ok || got != id {
		t.Fatalf("expected batch id %s got %s (ok=%v)", id, got, ok)
	}

	if _, ok := BatchIDFromContext(WithBatchID(context.Background(), uuid.Nil)); ok {
		t.Fatal("expected nil batch id to be treated as absent")
	}
	if _, ok := BatchIDFromContext(context.Background()); ok {
		t.Fatal("expected missing batch id to be absent")
	}
}
