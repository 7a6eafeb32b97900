// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/domain"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type recordsResponse struct {
	Records     []domain.CanonicalRecord `json:"records"`
	Count       int                      `json:"count"`
	Published   bool                     `json:"published"`
	PublishedAt *time.Time               `json:"published_at,omitempty"`
	Checksum    string                   `json:"checksum,omitempty"`
}

func loadSnapshot(w http.ResponseWriter, r *http.Request, reader DatasetReader, logger *slog.Logger) (dataset.Snapshot, bool) {
	snap, err := reader.Load(r.Context())
	if err != nil {
		logger.Error("load dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dataset")
		return dataset.Snapshot{}, false
	}
	if snap.Checksum != "" {
		etag := strconv.Quote(snap.Checksum)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return dataset.Snapshot{}, false
		}
	}
	return snap, true
}

func datasetCSVHandler(reader DatasetReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := loadSnapshot(w, r, reader, logger)
		if !ok {
			return
		}
		// Never published and published with zero records both read as empty.
		if !snap.Published || snap.Len() == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var buf bytes.Buffer
		if err := dataset.Encode(&buf, snap.Records); err != nil {
			logger.Error("encode dataset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to encode dataset")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func datasetXLSXHandler(reader DatasetReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := loadSnapshot(w, r, reader, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := dataset.WriteXLSX(&buf, snap); err != nil {
			logger.Error("export dataset xlsx failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export dataset")
			return
		}

		w.Header().Set("Content-Type", contentTypeXLSX)
		w.Header().Set("Content-Disposition", `attachment; filename="datos_limpios.xlsx"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func datasetRecordsHandler(reader DatasetReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := loadSnapshot(w, r, reader, logger)
		if !ok {
			return
		}

		resp := recordsResponse{
			Records:   snap.Records,
			Count:     snap.Len(),
			Published: snap.Published,
			Checksum:  snap.Checksum,
		}
		if resp.Records == nil {
			resp.Records = []domain.CanonicalRecord{}
		}
		if snap.Published {
			at := snap.PublishedAt
			resp.PublishedAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func datasetSummaryHandler(reader DatasetReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := loadSnapshot(w, r, reader, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, dataset.Summarize(snap.Records))
	}
}
