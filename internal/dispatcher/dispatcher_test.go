package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkconsent/internal/credential"
	"zkconsent/internal/session/models"
	sessionstore "zkconsent/internal/session/store"
	"zkconsent/internal/verifier"
	"zkconsent/internal/vkey"
	"zkconsent/internal/zkp/snark"
)

const proofType = "ageVerification"

func g1Dec(k int64) []string {
	_, _, g1, _ := bn254.Generators()
	var p bn254.G1Affine
	p.ScalarMultiplication(&g1, big.NewInt(k))
	return []string{p.X.String(), p.Y.String(), "1"}
}

func g2Dec(k int64) [][]string {
	_, _, _, g2 := bn254.Generators()
	var p bn254.G2Affine
	p.ScalarMultiplication(&g2, big.NewInt(k))
	return [][]string{
		{p.X.A0.String(), p.X.A1.String()},
		{p.Y.A0.String(), p.Y.A1.String()},
		{"1", "0"},
	}
}

type fixture struct {
	d        *Dispatcher
	sessions *sessionstore.InMemoryStore
	content  *credential.InMemoryStore
	now      time.Time
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	clock := &now

	sessions := sessionstore.NewMemory()
	vkeys := vkey.NewMemory()
	content := credential.NewMemory()

	raw, err := json.Marshal(&snark.VerifyingKey{
		NPublic: 1,
		Alpha1:  g1Dec(1),
		Beta2:   g2Dec(1),
		Gamma2:  g2Dec(1),
		Delta2:  g2Dec(1),
		IC:      [][]string{g1Dec(1), g1Dec(1)},
	})
	require.NoError(t, err)
	require.NoError(t, vkeys.Put(ctx, &vkey.Record{CircuitName: proofType, Key: raw}))

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	nowFn := func() time.Time { return *clock }
	v := verifier.New(sessions, vkeys, content, logger, verifier.WithClock(nowFn))
	d := New(sessions, v, logger, WithClock(nowFn), WithInterval(time.Hour))
	return &fixture{d: d, sessions: sessions, content: content, now: now, clock: clock}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) addAwaitingSession(t *testing.T, id string, piA []string, signals []string) {
	t.Helper()
	ctx := context.Background()

	cred := &credential.Credential{
		Subject: map[string]string{"dob": "1990-01-01"},
		Proofs: map[string]*credential.ProofBundle{
			proofType: {
				Proof:         &snark.Proof{PiA: piA, PiB: g2Dec(1), PiC: g1Dec(1)},
				PublicSignals: signals,
			},
		},
	}
	doc, err := cred.Encode()
	require.NoError(t, err)
	cid, err := f.content.Put(ctx, doc)
	require.NoError(t, err)

	sess, err := models.NewSession(id, "prov-1", "Acme", "bafyuser",
		[]string{proofType}, []string{"dob"}, f.now)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Save(ctx, sess))
	_, err = f.sessions.Approve(ctx, id, []string{"dob"}, f.now.Add(2*time.Minute))
	require.NoError(t, err)

	stored, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	stored.CredentialCID = cid
	require.NoError(t, f.sessions.Save(ctx, stored))
}

func TestPollVerifiesAwaitingSessions(t *testing.T) {
	f := newFixture(t)
	f.addAwaitingSession(t, "s-valid", g1Dec(8), []string{"5"})
	f.addAwaitingSession(t, "s-invalid", g1Dec(9), []string{"5"})

	f.d.Poll()

	valid, err := f.sessions.Get(context.Background(), "s-valid")
	require.NoError(t, err)
	assert.Equal(t, models.ProofValid, valid.ProofStatus)
	assert.Equal(t, models.StatusCompleted, valid.Status, "a valid proof completes the session")

	invalid, err := f.sessions.Get(context.Background(), "s-invalid")
	require.NoError(t, err)
	assert.Equal(t, models.ProofInvalid, invalid.ProofStatus)
	assert.Equal(t, models.StatusOngoing, invalid.Status)
}

func TestPollIsIdempotentAcrossCycles(t *testing.T) {
	f := newFixture(t)
	f.addAwaitingSession(t, "s-1", g1Dec(8), []string{"5"})

	f.d.Poll()
	f.d.Poll()
	f.d.Poll()

	sess, err := f.sessions.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.VerifyAttempts, "settled sessions leave the dispatch set")
}

func TestPollCommitsExpiry(t *testing.T) {
	f := newFixture(t)
	f.addAwaitingSession(t, "s-1", g1Dec(8), []string{"5"})

	*f.clock = f.now.Add(3 * time.Minute)
	f.d.Poll()

	sess, err := f.sessions.Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, models.ProofAwaited, sess.ProofStatus, "expiry never burns an attempt")
	assert.Equal(t, 0, sess.VerifyAttempts)
}

func TestInFlightGuard(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.d.acquire("s-1"))
	assert.False(t, f.d.acquire("s-1"), "a session already in flight is skipped")
	require.True(t, f.d.acquire("s-2"))

	f.d.release("s-1")
	assert.True(t, f.d.acquire("s-1"), "released sessions can be picked up again")
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.d.Stop(ctx))
}
