package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"zkconsent/internal/session/models"
)

// InMemoryStore keeps sessions in memory. It backs tests and single-process
// deployments; the conditional transition semantics are identical to the
// Postgres implementation.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemoryStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copySess := cloneSession(sess)
	s.sessions[sess.SessionID] = copySess
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	// latest first, matching the dashboard projection
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListAwaitingVerification(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.AwaitingVerification() {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Approve(_ context.Context, sessionID string, approvedFields []string, timerEnd time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusPending {
		return nil, ErrStale
	}
	sess.Status = models.StatusOngoing
	sess.ProofStatus = models.ProofAwaited
	sess.ApprovedFields = append([]string(nil), approvedFields...)
	end := timerEnd
	sess.TimerEnd = &end
	return cloneSession(sess), nil
}

func (s *InMemoryStore) Reject(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusPending {
		return nil, ErrStale
	}
	sess.Status = models.StatusRejected
	return cloneSession(sess), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, sessionID string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusOngoing || sess.TimerEnd == nil || !sess.TimerEnd.After(now) {
		return nil, ErrStale
	}
	sess.Status = models.StatusRevoked
	return cloneSession(sess), nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, sessionID string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusOngoing || sess.TimerEnd == nil || sess.TimerEnd.After(now) {
		return nil, ErrStale
	}
	sess.Status = models.StatusCompleted
	return cloneSession(sess), nil
}

func (s *InMemoryStore) CommitVerification(_ context.Context, sessionID string, outcome VerificationOutcome) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.ProofStatus != models.ProofAwaited {
		return nil, ErrStale
	}
	sess.ProofStatus = outcome.ProofStatus
	sess.Status = outcome.Status
	details := outcome.Details
	sess.VerificationDetails = &details
	sess.VerifyAttempts++
	return cloneSession(sess), nil
}

func (s *InMemoryStore) RearmProof(_ context.Context, sessionID, credentialCID string, maxAttempts int) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusOngoing || sess.ProofStatus != models.ProofInvalid || sess.VerifyAttempts >= maxAttempts {
		return nil, ErrStale
	}
	sess.ProofStatus = models.ProofAwaited
	sess.CredentialCID = credentialCID
	return cloneSession(sess), nil
}

func (s *InMemoryStore) CommitResign(_ context.Context, sessionID, credentialCID string, now time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.StatusCompleted && sess.Status != models.StatusRevoked {
		return nil, ErrStale
	}
	if sess.ResignedAt != nil {
		return nil, ErrStale
	}
	sess.CredentialCID = credentialCID
	sess.ProofStatus = models.ProofValid
	resignedAt := now
	sess.ResignedAt = &resignedAt
	return cloneSession(sess), nil
}

func cloneSession(sess *models.Session) *models.Session {
	copySess := *sess
	copySess.ProofTypes = append([]string(nil), sess.ProofTypes...)
	copySess.RequestedFields = append([]string(nil), sess.RequestedFields...)
	copySess.ApprovedFields = append([]string(nil), sess.ApprovedFields...)
	if sess.TimerEnd != nil {
		end := *sess.TimerEnd
		copySess.TimerEnd = &end
	}
	if sess.VerificationDetails != nil {
		details := *sess.VerificationDetails
		copySess.VerificationDetails = &details
	}
	if sess.ResignedAt != nil {
		resignedAt := *sess.ResignedAt
		copySess.ResignedAt = &resignedAt
	}
	return &copySess
}
