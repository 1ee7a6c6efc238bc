package store

import (
	"context"
	"errors"
	"time"

	"zkconsent/internal/session/models"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested session does not exist
// - Return ErrStale when a conditional transition's precondition no longer
//   holds (another writer committed first); callers decide whether that is
//   a swallowed concurrency no-op or a state conflict
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

var (
	ErrNotFound = errors.New("session not found")
	ErrStale    = errors.New("session transition precondition failed")
)

// VerificationOutcome is the payload committed by the proof verifier.
type VerificationOutcome struct {
	ProofStatus models.ProofStatus
	Status      models.Status
	Details     models.VerificationDetails
}

// Store persists consent sessions. Every mutation is a conditional update
// scoped to the specific transition the writer is allowed to make; there is
// no blind whole-record overwrite.
type Store interface {
	Save(ctx context.Context, sess *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)

	// ListAwaitingVerification returns sessions with status=Ongoing and
	// proofStatus=awaited, oldest first.
	ListAwaitingVerification(ctx context.Context) ([]*models.Session, error)

	// Approve commits Pending -> Ongoing, recording the approved fields and
	// the validity window end. Precondition: status = Pending.
	Approve(ctx context.Context, sessionID string, approvedFields []string, timerEnd time.Time) (*models.Session, error)

	// Reject commits Pending -> Rejected. Precondition: status = Pending.
	Reject(ctx context.Context, sessionID string) (*models.Session, error)

	// Revoke commits Ongoing -> Revoked. Preconditions: status = Ongoing and
	// timerEnd > now; the expiry comparison is evaluated atomically with the
	// update so a concurrent expiry cannot race past it.
	Revoke(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)

	// MarkExpired commits the authoritative expiry Ongoing -> Completed.
	// Preconditions: status = Ongoing and timerEnd <= now.
	MarkExpired(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)

	// CommitVerification atomically records a verification outcome.
	// Precondition: proofStatus = awaited. This is the at-most-once-commit
	// compare-and-swap: a loser of the race gets ErrStale and must treat it
	// as a no-op.
	CommitVerification(ctx context.Context, sessionID string, outcome VerificationOutcome) (*models.Session, error)

	// RearmProof re-opens verification after an Invalid outcome with a new
	// credential CID. Preconditions: status = Ongoing, proofStatus = Invalid,
	// verifyAttempts < maxAttempts.
	RearmProof(ctx context.Context, sessionID, credentialCID string, maxAttempts int) (*models.Session, error)

	// CommitResign records the re-signed credential CID, renews the proof
	// status and stamps resignedAt. Preconditions: status in
	// {Completed, Revoked} and the session has not been re-signed before.
	CommitResign(ctx context.Context, sessionID, credentialCID string, now time.Time) (*models.Session, error)
}
