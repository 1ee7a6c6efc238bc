// Package handler exposes the credential content store over HTTP.
package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkconsent/internal/credential"
	"zkconsent/internal/platform/middleware"
	respond "zkconsent/internal/transport/http/json"
	"zkconsent/internal/transport/http/shared"
	dErrors "zkconsent/pkg/domain-errors"
)

// maxDocumentBytes bounds uploaded credential documents.
const maxDocumentBytes = 1 << 20

// Handler handles credential document endpoints.
type Handler struct {
	content credential.ContentStore
	logger  *slog.Logger
}

// New creates a credential Handler.
func New(content credential.ContentStore, logger *slog.Logger) *Handler {
	return &Handler{content: content, logger: logger}
}

// Register registers the credential routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.handleUpload)
	r.Get("/credentials/{cid}", h.handleGet)
}

// UploadResponse reports the CID the uploaded document is stored under.
type UploadResponse struct {
	CID string `json:"cid"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "read request body"))
		return
	}
	if len(doc) > maxDocumentBytes {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "credential document too large"))
		return
	}
	if _, err := credential.Decode(doc); err != nil {
		shared.WriteError(w, err)
		return
	}

	cid, err := h.content.Put(ctx, doc)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to store credential document",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "store credential document"))
		return
	}
	respond.WriteJSON(w, http.StatusCreated, UploadResponse{CID: cid})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid := chi.URLParam(r, "cid")

	doc, err := h.content.Get(ctx, cid)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential document not found"))
			return
		}
		shared.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
