// SPDX-License-Identifier: Apache-2.0

// Package notify tells an external endpoint when a new dataset is published.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/metrics"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
	webhookHeaderSig     = "X-Signature"
)

type publishedPayload struct {
	Event       string         `json:"event"`
	Records     int            `json:"records"`
	Checksum    string         `json:"checksum"`
	PublishedAt time.Time      `json:"published_at"`
	RawEvents   int            `json:"raw_events"`
	Rejected    map[string]int `json:"rejected"`
	Duplicates  int            `json:"duplicates"`
}

type Deps struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Webhook posts a signed JSON payload for each published snapshot.
type Webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
	retryBase  time.Duration
}

// New returns nil when no URL is configured.
func New(deps Deps) *Webhook {
	url := strings.TrimSpace(deps.URL)
	if url == "" {
		return nil
	}

	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Webhook{
		url:        url,
		secret:     deps.Secret,
		httpClient: client,
		logger:     l,
		retryBase:  webhookRetryBase,
	}
}

var _ compactor.PublishListener = (*Webhook)(nil)

// Published delivers the notification. Delivery failures are logged and
// counted, never returned: the dataset is already published.
func (w *Webhook) Published(ctx context.Context, res compactor.Result, snap dataset.Snapshot) {
	if w == nil {
		return
	}

	body, err := json.Marshal(publishedPayload{
		Event:       "dataset.published",
		Records:     snap.Len(),
		Checksum:    snap.Checksum,
		PublishedAt: snap.PublishedAt,
		RawEvents:   res.RawEvents,
		Rejected:    res.Rejected,
		Duplicates:  res.Duplicates,
	})
	if err != nil {
		w.logger.Error("notify payload marshal failed", "checksum", snap.Checksum, "error", err)
		metrics.IncNotification("failed")
		return
	}

	signature := signPayload(w.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			w.logger.Error("notify request build failed",
				"checksum", snap.Checksum,
				"attempt", attempt,
				"error", err,
			)
			break
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(webhookHeaderSig, signature)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("notify failure",
				"checksum", snap.Checksum,
				"attempt", attempt,
				"error", err,
			)
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
				w.logger.Info("notify success",
					"checksum", snap.Checksum,
					"attempt", attempt,
					"response_status", resp.StatusCode,
				)
				metrics.IncNotification("delivered")
				return
			}

			lastErr = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
			w.logger.Warn("notify failure",
				"checksum", snap.Checksum,
				"attempt", attempt,
				"response_status", resp.StatusCode,
			)
		}

		if attempt < webhookRetryAttempts {
			wait := w.retryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				w.logger.Warn("notify canceled before retry",
					"checksum", snap.Checksum,
					"attempt", attempt,
					"error", ctx.Err(),
				)
				metrics.IncNotification("canceled")
				return
			case <-timer.C:
			}
		}
	}

	if lastErr != nil {
		w.logger.Error("notify retries exhausted",
			"checksum", snap.Checksum,
			"error", lastErr,
		)
		metrics.IncNotification("failed")
	}
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
