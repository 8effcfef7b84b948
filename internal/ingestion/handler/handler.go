package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/logger"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	publisher *publisher.Publisher
	schema    map[string]string
	logger    *slog.Logger
}

func New(pub *publisher.Publisher, schema map[string]string) *Handler {
	return &Handler{
		publisher: pub,
		schema:    schema,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	fields, err := validator.ValidateIngestRequest(&req, h.schema)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.publisher.Ingest(ctx, req.ID, fields)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document ingested",
		"doc_id", resp.DocumentID,
		"status", resp.Status,
	)
	h.writeJSON(w, statusFor(resp), resp)
}

// Delete serves DELETE /api/v1/documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := validator.ValidateID(id); err != nil {
		h.writeValidationError(w, err)
		return
	}
	resp, err := h.publisher.Delete(ctx, id)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Error("delete failed",
			"doc_id", id,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "delete failed")
		return
	}
	h.writeJSON(w, statusFor(resp), resp)
}

func statusFor(resp *ingestion.IngestResponse) int {
	if resp.Status == ingestion.StatusPending {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
