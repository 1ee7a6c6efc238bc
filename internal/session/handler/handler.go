// Package handler exposes the consent session API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkconsent/internal/platform/middleware"
	"zkconsent/internal/session/models"
	respond "zkconsent/internal/transport/http/json"
	"zkconsent/internal/transport/http/shared"
	dErrors "zkconsent/pkg/domain-errors"
)

// SessionService defines the lifecycle operations the handler exposes.
type SessionService interface {
	Create(ctx context.Context, req *models.CreateSessionRequest) (*models.CreateSessionResponse, error)
	Approve(ctx context.Context, sessionID string, req *models.ApproveRequest) (*models.SessionView, error)
	Reject(ctx context.Context, sessionID string) (*models.SessionView, error)
	Revoke(ctx context.Context, sessionID string) (*models.SessionView, error)
	Resubmit(ctx context.Context, sessionID string, req *models.ResubmitRequest) (*models.SessionView, error)
	Get(ctx context.Context, sessionID string) (*models.SessionView, error)
	List(ctx context.Context) ([]*models.SessionView, error)
}

// VerifierService runs an on-demand verification.
type VerifierService interface {
	Verify(ctx context.Context, sessionID, proofType, cidOverride string) (*models.VerifyResponse, error)
}

// ResignService re-signs the credential of a closed session.
type ResignService interface {
	Run(ctx context.Context, sessionID string) (*models.ResignResponse, error)
}

// Handler handles session endpoints.
type Handler struct {
	sessions SessionService
	verifier VerifierService
	resign   ResignService
	logger   *slog.Logger
}

// New creates a session Handler.
func New(sessions SessionService, verifier VerifierService, resign ResignService, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		verifier: verifier,
		resign:   resign,
		logger:   logger,
	}
}

// Register registers the session routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Post("/sessions/{sessionID}/approve", h.handleApprove)
	r.Post("/sessions/{sessionID}/reject", h.handleReject)
	r.Post("/sessions/{sessionID}/revoke", h.handleRevoke)
	r.Post("/sessions/{sessionID}/resubmit", h.handleResubmit)
	r.Post("/sessions/{sessionID}/resign", h.handleResign)
	r.Post("/verify", h.handleVerify)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode create session request",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	resp, err := h.sessions.Create(ctx, &req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create session",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.sessions.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req models.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.sessions.Approve(ctx, sessionID, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to approve session",
			"request_id", middleware.GetRequestID(ctx), "session_id", sessionID, "error", err)
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Reject(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Revoke(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req models.ResubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.sessions.Resubmit(ctx, sessionID, &req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleResign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	resp, err := h.resign.Run(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to re-sign credential",
			"request_id", middleware.GetRequestID(ctx), "session_id", sessionID, "error", err)
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.SessionID == "" || req.ProofType == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "sessionId and proofType required"))
		return
	}

	resp, err := h.verifier.Verify(ctx, req.SessionID, req.ProofType, req.CID)
	if err != nil {
		h.logger.WarnContext(ctx, "verification request failed",
			"request_id", middleware.GetRequestID(ctx), "session_id", req.SessionID, "error", err)
		shared.WriteError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}
