package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkconsent/internal/session/models"
)

func newTestSession(t *testing.T, id string) *models.Session {
	t.Helper()
	sess, err := models.NewSession(id, "prov-1", "Acme Corp", "bafyuser",
		[]string{"ageVerification"}, []string{"dob"}, time.Now())
	require.NoError(t, err)
	return sess
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	sess := newTestSession(t, "s-1")
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, got.SessionID)
	assert.Equal(t, models.StatusPending, got.Status)

	// mutating the returned copy must not affect the stored session
	got.Status = models.StatusRevoked
	got.RequestedFields[0] = "ssn"

	again, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
	assert.Equal(t, "dob", again.RequestedFields[0])
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ApprovePreconditions(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))

	end := time.Now().Add(2 * time.Minute)
	got, err := s.Approve(ctx, "s-1", []string{"dob"}, end)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, got.Status)
	assert.Equal(t, models.ProofAwaited, got.ProofStatus)
	require.NotNil(t, got.TimerEnd)
	assert.True(t, got.TimerEnd.Equal(end))

	// second approval loses the precondition
	_, err = s.Approve(ctx, "s-1", []string{"dob"}, end)
	assert.ErrorIs(t, err, ErrStale)

	_, err = s.Approve(ctx, "missing", []string{"dob"}, end)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RejectOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))

	got, err := s.Reject(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)

	_, err = s.Reject(ctx, "s-1")
	assert.ErrorIs(t, err, ErrStale)
}

func TestMemoryStore_RevokeRequiresLiveWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))

	// Pending sessions cannot be revoked
	_, err := s.Revoke(ctx, "s-1", now)
	assert.ErrorIs(t, err, ErrStale)

	_, err = s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	// past the window: revoke loses to expiry
	_, err = s.Revoke(ctx, "s-1", now.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrStale)

	got, err := s.Revoke(ctx, "s-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, got.Status)
}

func TestMemoryStore_MarkExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))
	_, err := s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	// window still live
	_, err = s.MarkExpired(ctx, "s-1", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrStale)

	got, err := s.MarkExpired(ctx, "s-1", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	// expiry after revoke or completion is a no-op
	_, err = s.MarkExpired(ctx, "s-1", now.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrStale)
}

func TestMemoryStore_CommitVerificationCAS(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))
	_, err := s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	outcome := VerificationOutcome{
		ProofStatus: models.ProofValid,
		Status:      models.StatusCompleted,
		Details: models.VerificationDetails{
			ProofType:  "ageVerification",
			Verified:   true,
			VerifiedAt: now,
		},
	}
	got, err := s.CommitVerification(ctx, "s-1", outcome)
	require.NoError(t, err)
	assert.Equal(t, models.ProofValid, got.ProofStatus)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.VerifyAttempts)
	require.NotNil(t, got.VerificationDetails)
	assert.True(t, got.VerificationDetails.Verified)

	// second commit must lose
	_, err = s.CommitVerification(ctx, "s-1", outcome)
	assert.ErrorIs(t, err, ErrStale)
}

func TestMemoryStore_CommitVerificationRace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))
	_, err := s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CommitVerification(ctx, "s-1", VerificationOutcome{
				ProofStatus: models.ProofValid,
				Status:      models.StatusCompleted,
				Details:     models.VerificationDetails{Verified: true, VerifiedAt: now},
			})
			if err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one verification commit must win")

	got, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.VerifyAttempts)
}

func TestMemoryStore_RearmProof(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))
	_, err := s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	// cannot re-arm while still awaited
	_, err = s.RearmProof(ctx, "s-1", "bafynew", 3)
	assert.ErrorIs(t, err, ErrStale)

	_, err = s.CommitVerification(ctx, "s-1", VerificationOutcome{
		ProofStatus: models.ProofInvalid,
		Status:      models.StatusOngoing,
		Details:     models.VerificationDetails{Error: "pairing check failed", VerifiedAt: now},
	})
	require.NoError(t, err)

	got, err := s.RearmProof(ctx, "s-1", "bafynew", 3)
	require.NoError(t, err)
	assert.Equal(t, models.ProofAwaited, got.ProofStatus)
	assert.Equal(t, "bafynew", got.CredentialCID)
	assert.Equal(t, models.StatusOngoing, got.Status)

	// exhaust the attempt budget
	for i := 0; i < 2; i++ {
		_, err = s.CommitVerification(ctx, "s-1", VerificationOutcome{
			ProofStatus: models.ProofInvalid,
			Status:      models.StatusOngoing,
			Details:     models.VerificationDetails{Error: "pairing check failed", VerifiedAt: now},
		})
		require.NoError(t, err)
		if i == 0 {
			_, err = s.RearmProof(ctx, "s-1", "bafynew2", 3)
			require.NoError(t, err)
		}
	}

	_, err = s.RearmProof(ctx, "s-1", "bafynew3", 3)
	assert.ErrorIs(t, err, ErrStale, "attempt budget exhausted")
}

func TestMemoryStore_CommitResign(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-1")))

	// only closed sessions can be re-signed
	_, err := s.CommitResign(ctx, "s-1", "bafyresigned", now)
	assert.ErrorIs(t, err, ErrStale)

	_, err = s.Approve(ctx, "s-1", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = s.MarkExpired(ctx, "s-1", now.Add(2*time.Minute))
	require.NoError(t, err)

	got, err := s.CommitResign(ctx, "s-1", "bafyresigned", now)
	require.NoError(t, err)
	assert.Equal(t, "bafyresigned", got.CredentialCID)
	assert.Equal(t, models.ProofValid, got.ProofStatus)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.ResignedAt)
	assert.Equal(t, now, *got.ResignedAt)
	assert.False(t, got.NeedsResign())

	// re-signing is once per session
	_, err = s.CommitResign(ctx, "s-1", "bafyresigned2", now.Add(time.Second))
	assert.ErrorIs(t, err, ErrStale)
}

func TestMemoryStore_ListAwaitingVerification(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()

	older := newTestSession(t, "s-old")
	older.RequestedAt = now.Add(-time.Minute)
	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-new")))
	require.NoError(t, s.Save(ctx, newTestSession(t, "s-pending")))

	_, err := s.Approve(ctx, "s-old", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = s.Approve(ctx, "s-new", []string{"dob"}, now.Add(2*time.Minute))
	require.NoError(t, err)

	got, err := s.ListAwaitingVerification(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s-old", got[0].SessionID, "oldest first")
	assert.Equal(t, "s-new", got[1].SessionID)
}
