package store

import (
	"context"
	"errors"

	"zkconsent/internal/user/models"
)

var ErrNotFound = errors.New("user not found")

// Store persists user records.
type Store interface {
	Save(ctx context.Context, user *models.User) error
	GetByWallet(ctx context.Context, walletAddress string) (*models.User, error)
	GetByCredentialCID(ctx context.Context, cid string) (*models.User, error)
	UpdateCredentialCID(ctx context.Context, walletAddress, cid string) error
}
