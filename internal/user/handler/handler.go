// Package handler exposes user registry lookups over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	respond "zkconsent/internal/transport/http/json"
	"zkconsent/internal/transport/http/shared"
	"zkconsent/internal/user/models"
	"zkconsent/internal/user/store"
	dErrors "zkconsent/pkg/domain-errors"
)

// Handler handles user lookup endpoints.
type Handler struct {
	users  store.Store
	logger *slog.Logger
}

// New creates a user Handler.
func New(users store.Store, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register registers the user routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users/{ref}", h.handleGet)
}

// View is the public projection of a user record. Attribute values are only
// disclosed through approved consent sessions, so the view carries identifiers
// and the current credential CID, not the attributes themselves.
type View struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	CredentialCID string    `json:"cid"`
	CreatedAt     time.Time `json:"createdAt"`
}

// handleGet resolves a user by wallet address or by current credential CID.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := chi.URLParam(r, "ref")

	user, err := h.users.GetByWallet(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		user, err = h.users.GetByCredentialCID(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "user not found"))
			return
		}
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "load user"))
		return
	}
	respond.WriteJSON(w, http.StatusOK, view(user))
}

func view(u *models.User) View {
	return View{
		ID:            u.ID,
		WalletAddress: u.WalletAddress,
		CredentialCID: u.CredentialCID,
		CreatedAt:     u.CreatedAt,
	}
}
