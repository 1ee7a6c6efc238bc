package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"zkconsent/internal/user/models"
)

// PostgresStore persists user records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user record is required")
	}
	query := `
		INSERT INTO users (id, wallet_address, name, dob, location, credential_cid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_address) DO UPDATE
		SET name = EXCLUDED.name, dob = EXCLUDED.dob, location = EXCLUDED.location,
		    credential_cid = EXCLUDED.credential_cid
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.WalletAddress,
		user.Name,
		user.DOB,
		user.Location,
		user.CredentialCID,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	return s.getBy(ctx, "wallet_address", walletAddress)
}

func (s *PostgresStore) GetByCredentialCID(ctx context.Context, cid string) (*models.User, error) {
	return s.getBy(ctx, "credential_cid", cid)
}

func (s *PostgresStore) getBy(ctx context.Context, column, value string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, wallet_address, name, dob, location, credential_cid, created_at
		FROM users
		WHERE %s = $1
	`, column)
	var user models.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.WalletAddress,
		&user.Name,
		&user.DOB,
		&user.Location,
		&user.CredentialCID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) UpdateCredentialCID(ctx context.Context, walletAddress, cid string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credential_cid = $2 WHERE wallet_address = $1`,
		walletAddress, cid,
	)
	if err != nil {
		return fmt.Errorf("update user credential: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user credential rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
