// Package resign rebuilds and re-signs a user's credential after a consent
// session closes, so attributes disclosed under an expired or revoked grant
// cannot be replayed against the old document.
package resign

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"zkconsent/internal/audit"
	"zkconsent/internal/challenge"
	"zkconsent/internal/credential"
	"zkconsent/internal/session/metrics"
	"zkconsent/internal/session/models"
	sessionstore "zkconsent/internal/session/store"
	"zkconsent/internal/tracer"
	userstore "zkconsent/internal/user/store"
	"zkconsent/internal/zkp/native"
	"zkconsent/internal/zkp/snark"
	dErrors "zkconsent/pkg/domain-errors"
)

// MinAge is the threshold the rebuilt age proof attests to.
const MinAge = 18

// Service runs the re-signature workflow.
type Service struct {
	sessions   sessionstore.Store
	users      userstore.Store
	content    credential.ContentStore
	challenges *challenge.Service
	prover     *native.Prover
	signingKey ed25519.PrivateKey

	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the resign service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a resign service. signingKey signs the rebuilt credential
// document as its issuer.
func New(
	sessions sessionstore.Store,
	users userstore.Store,
	content credential.ContentStore,
	challenges *challenge.Service,
	prover *native.Prover,
	signingKey ed25519.PrivateKey,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		sessions:   sessions,
		users:      users,
		content:    content,
		challenges: challenges,
		prover:     prover,
		signingKey: signingKey,
		tracer:     tracer.NewNoop(),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run rebuilds the credential for a closed session: derive the session's
// challenge scalar, generate a fresh age proof bound to it, append the
// stage signature to the document, pin it and commit the new CID. A session
// or document that already carries the stage is a conflict, so repeated runs
// are safe.
func (s *Service) Run(ctx context.Context, sessionID string) (*models.ResignResponse, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanResign,
		tracer.String(tracer.AttrSessionID, sessionID))
	var retErr error
	defer func() { span.End(retErr) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			retErr = dErrors.New(dErrors.CodeNotFound, "session not found")
			return nil, retErr
		}
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "load session")
		return nil, retErr
	}

	var stage string
	switch sess.Status {
	case models.StatusCompleted:
		stage = credential.StageComplete
	case models.StatusRevoked:
		stage = credential.StageRevoke
	default:
		retErr = dErrors.New(dErrors.CodeStateConflict,
			fmt.Sprintf("session is %s, only closed sessions are re-signed", sess.Status))
		return nil, retErr
	}
	span.SetAttributes(tracer.String(tracer.AttrResignStage, stage))

	if sess.ResignedAt != nil {
		retErr = dErrors.New(dErrors.CodeStateConflict,
			fmt.Sprintf("session already carries a %s-stage signature", stage))
		return nil, retErr
	}

	claims, err := s.challenges.ParseSkipExpiry(sess.Challenge)
	if err != nil {
		retErr = err
		return nil, retErr
	}
	scalar := challengeScalar(claims.Nonce)

	user, err := s.users.GetByCredentialCID(ctx, sess.UserRef)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			retErr = dErrors.New(dErrors.CodeNotFound, "credential holder not found")
			return nil, retErr
		}
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "load user")
		return nil, retErr
	}

	cred, err := s.loadCredential(ctx, user.CredentialCID, user.Name, user.DOB, user.Location)
	if err != nil {
		retErr = err
		return nil, retErr
	}
	if cred.HasStage(stage) {
		retErr = dErrors.New(dErrors.CodeStateConflict,
			fmt.Sprintf("credential already carries a %s-stage signature", stage))
		return nil, retErr
	}

	birthYear, err := birthYearOf(user.DOB)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	proof, signals, err := s.prover.Prove(birthYear, native.AgeStatement{
		CurrentYear: s.now().Year(),
		MinAge:      MinAge,
		Challenge:   scalar,
	})
	if err != nil {
		retErr = err
		return nil, retErr
	}

	doc, err := s.rebuildCredential(cred, stage, proof, signals)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	cid, err := s.content.Put(ctx, doc)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	if err := s.users.UpdateCredentialCID(ctx, user.WalletAddress, cid); err != nil {
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "update user credential")
		return nil, retErr
	}

	updated, err := s.sessions.CommitResign(ctx, sessionID, cid, s.now())
	if err != nil {
		if errors.Is(err, sessionstore.ErrStale) {
			retErr = dErrors.New(dErrors.CodeStateConflict, "session already re-signed or reopened")
			return nil, retErr
		}
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "commit re-signature")
		return nil, retErr
	}

	s.metrics.IncResignatures(stage)
	s.audit.Emit(audit.Event{
		Type:       audit.EventResigned,
		SessionID:  sessionID,
		ProviderID: sess.ProviderID,
		Detail:     stage,
	})
	s.logger.Info("credential re-signed",
		"session_id", sessionID, "stage", stage, "cid", cid)

	return &models.ResignResponse{
		SessionID:     sessionID,
		CredentialCID: cid,
		Stage:         stage,
		ProofStatus:   updated.ProofStatus,
	}, nil
}

// loadCredential fetches the user's current credential document. When the
// content store has no document at the CID (fresh deployments seeded from the
// user table only), a base document is assembled from the user record instead.
func (s *Service) loadCredential(ctx context.Context, cid, name, dob, location string) (*credential.Credential, error) {
	doc, err := s.content.Get(ctx, cid)
	if err == nil {
		return credential.Decode(doc)
	}
	if !errors.Is(err, credential.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load credential document")
	}
	return &credential.Credential{
		Context: []string{"https://www.w3.org/2018/credentials/v1"},
		Type:    []string{"VerifiableCredential"},
		Subject: map[string]string{
			"name":     name,
			"dob":      dob,
			"location": location,
		},
		IssuanceDate: s.now().UTC(),
	}, nil
}

// rebuildCredential replaces the age proof bundle and appends the new
// stage-tagged issuer signature. Signatures already on the document are kept:
// the list records every lifecycle stage the credential passed through.
func (s *Service) rebuildCredential(cred *credential.Credential, stage string, proof *snark.Proof, signals []string) ([]byte, error) {
	next := *cred
	next.Proofs = make(map[string]*credential.ProofBundle, len(cred.Proofs))
	for k, v := range cred.Proofs {
		next.Proofs[k] = v
	}
	next.Proofs[native.CircuitAgeVerification] = &credential.ProofBundle{
		Proof:         proof,
		PublicSignals: signals,
	}

	sig, err := s.sign(next.Subject, stage)
	if err != nil {
		return nil, err
	}
	next.Signatures = append(append([]credential.Signature(nil), cred.Signatures...), *sig)
	return next.Encode()
}

// challengeScalar maps a challenge nonce onto the BN254 scalar field.
func challengeScalar(nonce string) *big.Int {
	sum := sha3.Sum256([]byte(nonce))
	return new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), fr.Modulus())
}

func birthYearOf(dob string) (int, error) {
	if len(dob) < 4 {
		return 0, dErrors.New(dErrors.CodeValidation, "user record has no usable date of birth")
	}
	year, err := strconv.Atoi(dob[:4])
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "user record has no usable date of birth")
	}
	return year, nil
}

// sign produces the issuer signature over the credential subject and the
// lifecycle stage, so a signature for one stage cannot be presented as
// another.
func (s *Service) sign(subject map[string]string, stage string) (*credential.Signature, error) {
	payload, err := json.Marshal(struct {
		Subject map[string]string `json:"subject"`
		Stage   string            `json:"stage"`
	}{Subject: subject, Stage: stage})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode signature payload")
	}
	sig := ed25519.Sign(s.signingKey, payload)
	return &credential.Signature{
		Stage:          stage,
		Type:           "Ed25519Signature2020",
		Created:        s.now().UTC(),
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
	}, nil
}
