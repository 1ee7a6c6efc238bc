package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "zkconsent/pkg/domain-errors"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusOngoing, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusRevoked, false},
		{StatusOngoing, StatusCompleted, true},
		{StatusOngoing, StatusRevoked, true},
		{StatusOngoing, StatusPending, false},
		{StatusOngoing, StatusRejected, false},
		{StatusCompleted, StatusOngoing, false},
		{StatusCompleted, StatusPending, false},
		{StatusRejected, StatusOngoing, false},
		{StatusRevoked, StatusOngoing, false},
		{StatusRevoked, StatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesNeverReenterLifecycle(t *testing.T) {
	terminals := []Status{StatusCompleted, StatusRejected, StatusRevoked}
	all := []Status{StatusPending, StatusOngoing, StatusCompleted, StatusRejected, StatusRevoked}

	for _, from := range terminals {
		require.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s must be terminal", from)
		}
	}
}

func TestNewSessionValidation(t *testing.T) {
	now := time.Now()

	_, err := NewSession("", "prov-1", "Acme", "bafy123", []string{"age"}, []string{"dob"}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewSession("s-1", "prov-1", "Acme", "bafy123", nil, []string{"dob"}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewSession("s-1", "prov-1", "Acme", "bafy123", []string{"age"}, nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	sess, err := NewSession("s-1", "prov-1", "Acme", "bafy123", []string{"age"}, []string{"dob"}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sess.Status)
	assert.Equal(t, ProofAwaited, sess.ProofStatus)
	assert.Nil(t, sess.TimerEnd)
	assert.Empty(t, sess.ApprovedFields)
}

func TestExpiredAndRemaining(t *testing.T) {
	now := time.Now()
	sess := &Session{Status: StatusOngoing}

	assert.False(t, sess.Expired(now), "no timer means not expired")
	assert.Zero(t, sess.Remaining(now))

	end := now.Add(90 * time.Second)
	sess.TimerEnd = &end
	assert.False(t, sess.Expired(now))
	assert.Equal(t, 90*time.Second, sess.Remaining(now))

	assert.True(t, sess.Expired(now.Add(90*time.Second)), "timerEnd <= now is expired")
	assert.True(t, sess.Expired(now.Add(2*time.Minute)))
	assert.Zero(t, sess.Remaining(now.Add(2*time.Minute)))
}

func TestAwaitingVerification(t *testing.T) {
	sess := &Session{Status: StatusOngoing, ProofStatus: ProofAwaited}
	assert.True(t, sess.AwaitingVerification())

	sess.ProofStatus = ProofInvalid
	assert.False(t, sess.AwaitingVerification())

	sess.ProofStatus = ProofAwaited
	sess.Status = StatusPending
	assert.False(t, sess.AwaitingVerification())
}

func TestIsRecognizedField(t *testing.T) {
	for _, f := range RecognizedFields {
		assert.True(t, IsRecognizedField(f))
	}
	assert.False(t, IsRecognizedField("ssn"))
	assert.False(t, IsRecognizedField(""))
}
