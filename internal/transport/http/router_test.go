// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/domain"
	"github.com/adiadia/salesflow/internal/rawstore"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postWebhook(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const validEvent = `{"id_cliente":1,"cliente":" ana ","genero":"F","id_producto":10,"producto":"delta","precio":5,"cantidad":2,"monto":10,"forma_pago":"efectivo","fecreg":"2024-01-01T10:00:00"}`

func TestRouter_WebhookStoresSingleObject(t *testing.T) {
	raw := &mockRawAppender{}
	trigger := &mockTrigger{}
	router := NewRouter(Deps{Raw: raw, Trigger: trigger, Logger: discardLogger()})

	rec := postWebhook(router, validEvent)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "events stored" {
		t.Fatalf("unexpected message %v", resp["message"])
	}
	if resp["accepted"] != float64(1) {
		t.Fatalf("expected accepted 1 got %v", resp["accepted"])
	}
	if resp["batch_id"] == "" {
		t.Fatal("expected batch_id in response")
	}

	if len(raw.batches) != 1 || len(raw.batches[0]) != 1 {
		t.Fatalf("expected one batch of one event, got %v", raw.batches)
	}
	ev := raw.batches[0][0]
	if ev["cliente"] != " ana " {
		t.Fatalf("expected event stored verbatim, got %q", ev["cliente"])
	}
	if ev["precio"] != json.Number("5") {
		t.Fatalf("expected literal json number, got %#v", ev["precio"])
	}
	if _, ok := rawstore.BatchIDFromContext(raw.ctx); !ok {
		t.Fatal("expected batch id on append context")
	}
	if trigger.count() != 1 {
		t.Fatalf("expected one compaction trigger got %d", trigger.count())
	}
}

func TestRouter_WebhookStoresArrayAsOneBatch(t *testing.T) {
	raw := &mockRawAppender{}
	router := NewRouter(Deps{Raw: raw, Logger: discardLogger()})

	rec := postWebhook(router, "["+validEvent+","+validEvent+",{\"extra\":true}]")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 3 {
		t.Fatalf("expected accepted 3 got %d", resp.Accepted)
	}
	if len(raw.batches) != 1 || len(raw.batches[0]) != 3 {
		t.Fatalf("expected a single append of 3 events, got %d batches", len(raw.batches))
	}
}

func TestRouter_WebhookEmptyArray(t *testing.T) {
	raw := &mockRawAppender{}
	trigger := &mockTrigger{}
	router := NewRouter(Deps{Raw: raw, Trigger: trigger, Logger: discardLogger()})

	rec := postWebhook(router, "[]")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted != 0 {
		t.Fatalf("expected accepted 0 got %d", resp.Accepted)
	}
	if len(raw.batches) != 0 {
		t.Fatal("expected nothing appended")
	}
	if trigger.count() != 0 {
		t.Fatal("expected no trigger for an empty batch")
	}
}

func TestRouter_WebhookRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"not json":         "not json",
		"empty body":       "",
		"scalar":           "42",
		"string":           `"hello"`,
		"array of scalars": `[1, 2]`,
		"mixed array":      "[" + validEvent + ", 3]",
		"trailing garbage": validEvent + " x",
		"two objects":      validEvent + validEvent,
		"truncated object": `{"id_cliente": 1`,
		"null":             "null",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			raw := &mockRawAppender{}
			router := NewRouter(Deps{Raw: raw, Logger: discardLogger()})

			rec := postWebhook(router, body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if !strings.HasPrefix(resp["error"], domain.ErrMalformedRequest.Error()) {
				t.Fatalf("expected malformed request error, got %q", resp["error"])
			}
			if len(raw.batches) != 0 {
				t.Fatal("expected nothing appended")
			}
		})
	}
}

func TestRouter_WebhookBodyTooLarge(t *testing.T) {
	raw := &mockRawAppender{}
	router := NewRouter(Deps{Raw: raw, Logger: discardLogger(), MaxBodyBytes: 64})

	rec := postWebhook(router, "["+validEvent+"]")

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413 got %d", rec.Code)
	}
	if len(raw.batches) != 0 {
		t.Fatal("expected nothing appended")
	}
}

func TestRouter_WebhookStorageFailure(t *testing.T) {
	raw := &mockRawAppender{err: errors.New("disk full")}
	trigger := &mockTrigger{}
	router := NewRouter(Deps{Raw: raw, Trigger: trigger, Logger: discardLogger()})

	rec := postWebhook(router, validEvent)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Fatal("expected storage details to stay out of the response")
	}
	if trigger.count() != 0 {
		t.Fatal("expected no trigger after a failed append")
	}
}

func TestRouter_WebhookRateLimited(t *testing.T) {
	router := NewRouter(Deps{Raw: &mockRawAppender{}, Logger: discardLogger(), WebhookRateLimitPerMin: 1})

	if rec := postWebhook(router, validEvent); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := postWebhook(router, validEvent)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRouter_WebhookConcurrentSubmissions(t *testing.T) {
	store := rawstore.NewMemoryStore()
	router := NewRouter(Deps{Raw: store, Logger: discardLogger()})

	var wg sync.WaitGroup
	for _, n := range []int{3, 4} {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			items := make([]string, n)
			for i := range items {
				items[i] = validEvent
			}
			if rec := postWebhook(router, "["+strings.Join(items, ",")+"]"); rec.Code != http.StatusOK {
				t.Errorf("expected status 200 got %d", rec.Code)
			}
		}(n)
	}
	wg.Wait()

	if n, _ := store.Len(context.Background()); n != 7 {
		t.Fatalf("expected 7 stored events got %d", n)
	}
}

func TestRouter_DatasetEmpty(t *testing.T) {
	router := NewRouter(Deps{Dataset: dataset.NewMemoryStore(), Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/dataset/records", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp recordsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Published || resp.Count != 0 || resp.Records == nil {
		t.Fatalf("expected empty unpublished response, got %+v", resp)
	}
}

func TestRouter_DatasetPublishedEmpty(t *testing.T) {
	ds := dataset.NewMemoryStore()
	if _, err := ds.Publish(context.Background(), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	router := NewRouter(Deps{Dataset: ds, Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body got %q", rec.Body.String())
	}
}

func publishedDataset(t *testing.T) *dataset.MemoryStore {
	t.Helper()
	ds := dataset.NewMemoryStore()
	_, err := ds.Publish(context.Background(), []domain.CanonicalRecord{{
		CustomerID:    1,
		CustomerName:  "Ana",
		ProductID:     10,
		ProductName:   "Delta",
		UnitPrice:     decimal.RequireFromString("5"),
		Quantity:      2,
		Amount:        decimal.RequireFromString("10"),
		PaymentMethod: "Efectivo",
		RegisteredAt:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return ds
}

func TestRouter_DatasetCSV(t *testing.T) {
	router := NewRouter(Deps{Dataset: publishedDataset(t), Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected text/csv got %s", got)
	}
	want := strings.Join(domain.CanonicalColumns, ",") + "\n1,Ana,10,Delta,5,2,10,Efectivo,2024-01-01T10:00:00Z\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req = httptest.NewRequest(http.MethodGet, "/dataset", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected status 304 got %d", rec.Code)
	}
}

func TestRouter_DatasetRecordsAndSummary(t *testing.T) {
	router := NewRouter(Deps{Dataset: publishedDataset(t), Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset/records", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var records recordsResponse
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if records.Count != 1 || !records.Published || records.PublishedAt == nil {
		t.Fatalf("unexpected records response %+v", records)
	}
	if records.Records[0].Amount.String() != "10" {
		t.Fatalf("expected exact amount, got %s", records.Records[0].Amount)
	}

	req = httptest.NewRequest(http.MethodGet, "/dataset/summary", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var summary dataset.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Transactions != 1 || summary.TotalAmount.String() != "10" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRouter_DatasetXLSX(t *testing.T) {
	router := NewRouter(Deps{Dataset: publishedDataset(t), Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset.xlsx", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != contentTypeXLSX {
		t.Fatalf("unexpected content type %s", got)
	}
	if got, _ := strconv.Atoi(rec.Header().Get("Content-Length")); got != rec.Body.Len() || got == 0 {
		t.Fatalf("expected content length to match non-empty body, got %d vs %d", got, rec.Body.Len())
	}
}

func TestRouter_DatasetLoadFailure(t *testing.T) {
	router := NewRouter(Deps{Dataset: &mockDatasetReader{err: errors.New("read failed")}, Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/dataset/records", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestRouter_AdminCompactRequiresToken(t *testing.T) {
	comp := &mockCompactor{}
	router := NewRouter(Deps{Compactor: comp, AdminToken: "admin-secret", Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodPost, "/admin/compact", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
	if comp.calls != 0 {
		t.Fatal("expected compactor not to run")
	}
}

func TestRouter_AdminCompact(t *testing.T) {
	comp := &mockCompactor{result: compactor.Result{RawEvents: 4, Records: 3, Checksum: "abc"}}
	router := NewRouter(Deps{Compactor: comp, AdminToken: "admin-secret", Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodPost, "/admin/compact", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var res compactor.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Records != 3 || res.Checksum != "abc" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRouter_AdminCompactAborted(t *testing.T) {
	comp := &mockCompactor{err: domain.ErrCompactionAborted}
	router := NewRouter(Deps{Compactor: comp, AdminToken: "admin-secret", Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodPost, "/admin/compact", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := NewRouter(Deps{Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if got := rec.Header().Get(headerRequestID); got == "" {
		t.Fatalf("expected %s response header to be set", headerRequestID)
	}
}

func TestRouter_HealthzPreservesRequestID(t *testing.T) {
	router := NewRouter(Deps{Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-from-client")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get(headerRequestID); got != "req-from-client" {
		t.Fatalf("expected %s req-from-client got %q", headerRequestID, got)
	}
}

func TestRouter_HealthzNotReadyWhenSchemaCheckFails(t *testing.T) {
	healthChecker := &mockHealthChecker{err: errors.New("schema missing")}
	router := NewRouter(Deps{Logger: discardLogger(), HealthChecker: healthChecker})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
	if healthChecker.calls != 1 {
		t.Fatalf("expected health checker call count 1 got %d", healthChecker.calls)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := NewRouter(Deps{Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "webhook_batches_total") {
		t.Fatalf("expected prometheus output to include webhook_batches_total, got %q", rec.Body.String())
	}
}

func TestRouter_Version(t *testing.T) {
	router := NewRouter(Deps{
		Logger:    discardLogger(),
		Version:   "1.2.3",
		Commit:    "abc123",
		BuildDate: "2026-02-23T00:00:00Z",
	})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.3" || resp["commit"] != "abc123" || resp["build_date"] != "2026-02-23T00:00:00Z" {
		t.Fatalf("unexpected version response %v", resp)
	}
}

func TestRouter_CORS(t *testing.T) {
	router := NewRouter(Deps{
		Dataset:            dataset.NewMemoryStore(),
		Logger:             discardLogger(),
		CORSAllowedOrigins: []string{"https://dash.example"},
	})

	req := httptest.NewRequest(http.MethodGet, "/dataset/summary", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("expected CORS allow origin header, got %q", got)
	}
}

func TestWriteJSONSetsHeadersAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"ok": "true"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type application/json got %s", got)
	}

	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["ok"] != "true" {
		t.Fatalf("expected ok=true got %s", payload["ok"])
	}
}

type mockRawAppender struct {
	mu      sync.Mutex
	batches [][]domain.RawEvent
	ctx     context.Context
	err     error
}

func (m *mockRawAppender) Append(ctx context.Context, events []domain.RawEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.ctx = ctx
	m.batches = append(m.batches, events)
	return len(events), nil
}

type mockTrigger struct {
	mu    sync.Mutex
	calls int
}

func (m *mockTrigger) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockTrigger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockDatasetReader struct {
	snap dataset.Snapshot
	err  error
}

func (m *mockDatasetReader) Load(context.Context) (dataset.Snapshot, error) {
	return m.snap, m.err
}

type mockCompactor struct {
	result compactor.Result
	err    error
	calls  int
}

func (m *mockCompactor) Compact(context.Context) (compactor.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockHealthChecker struct {
	err   error
	calls int
}

func (m *mockHealthChecker) Check(context.Context) error {
	m.calls++
	return m.err
}
