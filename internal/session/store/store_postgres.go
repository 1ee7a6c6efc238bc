package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zkconsent/internal/session/models"
)

// PostgresStore persists consent sessions in PostgreSQL. Every transition is
// a single conditional UPDATE whose WHERE clause carries the precondition, so
// concurrent writers are serialized by the database rather than application
// locks.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed session store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const sessionColumns = `
	session_id, provider_id, provider_name, user_ref,
	proof_types, requested_fields, approved_fields,
	status, proof_status, requested_at, timer_end,
	challenge, credential_cid, verify_attempts, verification_details,
	resigned_at
`

func (s *PostgresStore) Save(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	proofTypes, requestedFields, approvedFields, details, err := marshalSessionJSON(sess)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.execer().ExecContext(ctx, query,
		sess.SessionID,
		sess.ProviderID,
		sess.ProviderName,
		sess.UserRef,
		proofTypes,
		requestedFields,
		approvedFields,
		string(sess.Status),
		string(sess.ProofStatus),
		sess.RequestedAt,
		sess.TimerEnd,
		sess.Challenge,
		sess.CredentialCID,
		sess.VerifyAttempts,
		details,
		sess.ResignedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`
	sess, err := scanSession(s.execer().QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY requested_at DESC`
	return s.querySessions(ctx, query)
}

func (s *PostgresStore) ListAwaitingVerification(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'Ongoing' AND proof_status = 'awaited'
		ORDER BY requested_at ASC
	`
	return s.querySessions(ctx, query)
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) Approve(ctx context.Context, sessionID string, approvedFields []string, timerEnd time.Time) (*models.Session, error) {
	fields, err := json.Marshal(approvedFields)
	if err != nil {
		return nil, fmt.Errorf("marshal approved fields: %w", err)
	}
	query := `
		UPDATE sessions
		SET status = 'Ongoing', proof_status = 'awaited', approved_fields = $2, timer_end = $3
		WHERE session_id = $1 AND status = 'Pending'
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID, fields, timerEnd)
}

func (s *PostgresStore) Reject(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'Rejected'
		WHERE session_id = $1 AND status = 'Pending'
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID)
}

func (s *PostgresStore) Revoke(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'Revoked'
		WHERE session_id = $1 AND status = 'Ongoing' AND timer_end > $2
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID, now)
}

func (s *PostgresStore) MarkExpired(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'Completed'
		WHERE session_id = $1 AND status = 'Ongoing' AND timer_end <= $2
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID, now)
}

func (s *PostgresStore) CommitVerification(ctx context.Context, sessionID string, outcome VerificationOutcome) (*models.Session, error) {
	details, err := json.Marshal(outcome.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal verification details: %w", err)
	}
	query := `
		UPDATE sessions
		SET proof_status = $2, status = $3, verification_details = $4,
		    verify_attempts = verify_attempts + 1
		WHERE session_id = $1 AND proof_status = 'awaited'
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query,
		sessionID, string(outcome.ProofStatus), string(outcome.Status), details)
}

func (s *PostgresStore) RearmProof(ctx context.Context, sessionID, credentialCID string, maxAttempts int) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET proof_status = 'awaited', credential_cid = $2
		WHERE session_id = $1 AND status = 'Ongoing' AND proof_status = 'Invalid'
		  AND verify_attempts < $3
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID, credentialCID, maxAttempts)
}

func (s *PostgresStore) CommitResign(ctx context.Context, sessionID, credentialCID string, now time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET credential_cid = $2, proof_status = 'Valid', resigned_at = $3
		WHERE session_id = $1 AND status IN ('Completed', 'Revoked')
		  AND resigned_at IS NULL
		RETURNING ` + sessionColumns
	return s.conditionalUpdate(ctx, sessionID, query, sessionID, credentialCID, now)
}

// conditionalUpdate runs a transition UPDATE ... RETURNING and maps an empty
// result to ErrNotFound or ErrStale depending on whether the row exists.
func (s *PostgresStore) conditionalUpdate(ctx context.Context, sessionID, query string, args ...any) (*models.Session, error) {
	sess, err := scanSession(s.execer().QueryRowContext(ctx, query, args...))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update session: %w", err)
	}
	var exists bool
	checkErr := s.execer().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`, sessionID,
	).Scan(&exists)
	if checkErr != nil {
		return nil, fmt.Errorf("check session existence: %w", checkErr)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrStale
}

func marshalSessionJSON(sess *models.Session) (proofTypes, requestedFields, approvedFields, details []byte, err error) {
	if proofTypes, err = json.Marshal(sess.ProofTypes); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal proof types: %w", err)
	}
	if requestedFields, err = json.Marshal(sess.RequestedFields); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal requested fields: %w", err)
	}
	if approvedFields, err = json.Marshal(sess.ApprovedFields); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal approved fields: %w", err)
	}
	if sess.VerificationDetails != nil {
		if details, err = json.Marshal(sess.VerificationDetails); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal verification details: %w", err)
		}
	}
	return proofTypes, requestedFields, approvedFields, details, nil
}

type sessionRow interface {
	Scan(dest ...any) error
}

func scanSession(row sessionRow) (*models.Session, error) {
	var sess models.Session
	var status, proofStatus string
	var timerEnd, resignedAt sql.NullTime
	var proofTypes, requestedFields, approvedFields, details []byte

	if err := row.Scan(
		&sess.SessionID,
		&sess.ProviderID,
		&sess.ProviderName,
		&sess.UserRef,
		&proofTypes,
		&requestedFields,
		&approvedFields,
		&status,
		&proofStatus,
		&sess.RequestedAt,
		&timerEnd,
		&sess.Challenge,
		&sess.CredentialCID,
		&sess.VerifyAttempts,
		&details,
		&resignedAt,
	); err != nil {
		return nil, err
	}

	sess.Status = models.Status(status)
	sess.ProofStatus = models.ProofStatus(proofStatus)
	if timerEnd.Valid {
		sess.TimerEnd = &timerEnd.Time
	}
	if resignedAt.Valid {
		sess.ResignedAt = &resignedAt.Time
	}
	if err := json.Unmarshal(proofTypes, &sess.ProofTypes); err != nil {
		return nil, fmt.Errorf("unmarshal proof types: %w", err)
	}
	if err := json.Unmarshal(requestedFields, &sess.RequestedFields); err != nil {
		return nil, fmt.Errorf("unmarshal requested fields: %w", err)
	}
	if len(approvedFields) > 0 {
		if err := json.Unmarshal(approvedFields, &sess.ApprovedFields); err != nil {
			return nil, fmt.Errorf("unmarshal approved fields: %w", err)
		}
	}
	if len(details) > 0 {
		var vd models.VerificationDetails
		if err := json.Unmarshal(details, &vd); err != nil {
			return nil, fmt.Errorf("unmarshal verification details: %w", err)
		}
		sess.VerificationDetails = &vd
	}
	return &sess, nil
}
