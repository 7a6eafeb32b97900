// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/adiadia/salesflow/internal/metrics"
	"github.com/adiadia/salesflow/internal/rawstore"
	"github.com/google/uuid"
)

type webhookResponse struct {
	Message  string    `json:"message"`
	Accepted int       `json:"accepted"`
	BatchID  uuid.UUID `json:"batch_id"`
}

var errBodyTooLarge = errors.New("request body too large")

func webhookHandler(raw RawAppender, trigger CompactionTrigger, maxBody int64, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, maxBody)
		events, err := decodeBatch(body)
		if err != nil {
			if errors.Is(err, errBodyTooLarge) {
				metrics.IncWebhookBatch(metrics.OutcomeTooLarge)
				logger.Warn("webhook body too large", "limit_bytes", maxBody)
				writeError(w, http.StatusRequestEntityTooLarge, err.Error())
				return
			}
			metrics.IncWebhookBatch(metrics.OutcomeMalformed)
			logger.Warn("webhook rejected malformed body", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		batchID := uuid.New()
		accepted := 0
		if len(events) > 0 {
			accepted, err = raw.Append(rawstore.WithBatchID(r.Context(), batchID), events)
			if err != nil {
				metrics.IncWebhookBatch(metrics.OutcomeFailed)
				logger.Error("webhook append failed",
					"batch_id", batchID,
					"events", len(events),
					"error", err,
				)
				writeError(w, http.StatusInternalServerError, "failed to store events")
				return
			}
		}

		metrics.IncWebhookBatch(metrics.OutcomeAccepted)
		metrics.AddWebhookEvents(accepted)
		logger.Info("events stored", "batch_id", batchID, "accepted", accepted)

		if trigger != nil && accepted > 0 {
			trigger.Trigger()
		}

		writeJSON(w, http.StatusOK, webhookResponse{
			Message:  "events stored",
			Accepted: accepted,
			BatchID:  batchID,
		})
	}
}

// decodeBatch accepts exactly one JSON object or one array of objects.
// Numbers keep their literal text.
func decodeBatch(body io.Reader) ([]domain.RawEvent, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", domain.ErrMalformedRequest)
		}
		return nil, bodyError(err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err != nil {
			if tooLarge := bodyError(err); errors.Is(tooLarge, errBodyTooLarge) {
				return nil, tooLarge
			}
		}
		return nil, fmt.Errorf("%w: body must contain exactly one JSON value", domain.ErrMalformedRequest)
	}

	switch v := payload.(type) {
	case map[string]any:
		return []domain.RawEvent{v}, nil
	case []any:
		events := make([]domain.RawEvent, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is not a JSON object", domain.ErrMalformedRequest, i)
			}
			events = append(events, obj)
		}
		return events, nil
	default:
		return nil, fmt.Errorf("%w: body must be a JSON object or an array of objects", domain.ErrMalformedRequest)
	}
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
}
