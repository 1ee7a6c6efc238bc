// Package verifier checks submitted credential proofs and commits the
// outcome to the session exactly once.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zkconsent/internal/audit"
	"zkconsent/internal/credential"
	"zkconsent/internal/session/metrics"
	"zkconsent/internal/session/models"
	sessionstore "zkconsent/internal/session/store"
	"zkconsent/internal/tracer"
	"zkconsent/internal/vkey"
	"zkconsent/internal/zkp/snark"
	dErrors "zkconsent/pkg/domain-errors"
)

// Service verifies proofs against stored verification keys. Any failure after
// the session is locked in is recorded as an Invalid outcome rather than
// surfaced as a transport error, so a bad document burns an attempt instead
// of looping forever.
type Service struct {
	sessions sessionstore.Store
	vkeys    vkey.Store
	content  credential.ContentStore

	metrics *metrics.Metrics
	audit   *audit.Publisher
	tracer  tracer.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the verifier service.
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

// New constructs a verifier service.
func New(sessions sessionstore.Store, vkeys vkey.Store, content credential.ContentStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		vkeys:    vkeys,
		content:  content,
		logger:   logger,
		tracer:   tracer.NewNoop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify runs the full verification flow for one session and proof type.
// cidOverride, when non-empty, replaces the CID recorded on the session.
//
// An Invalid outcome is a successful verification run: the caller gets
// Verified=false and a message, not an error. Errors are reserved for
// sessions that cannot be verified at all (unknown, not awaiting, expired,
// missing verification key). Losing the commit race is not an error either:
// the run's own result is returned while the first committed outcome stands.
func (s *Service) Verify(ctx context.Context, sessionID, proofType, cidOverride string) (*models.VerifyResponse, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrSessionID, sessionID),
		tracer.String(tracer.AttrProofType, proofType),
	)
	var retErr error
	defer func() { span.End(retErr) }()
	defer func() { s.metrics.ObserveVerificationLatency(s.now().Sub(start).Seconds()) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			retErr = dErrors.New(dErrors.CodeNotFound, "session not found")
			return nil, retErr
		}
		retErr = dErrors.Wrap(err, dErrors.CodeInternal, "load session")
		return nil, retErr
	}

	if !sess.AwaitingVerification() {
		retErr = dErrors.New(dErrors.CodeStateConflict,
			fmt.Sprintf("session is %s/%s, not awaiting verification", sess.Status, sess.ProofStatus))
		return nil, retErr
	}
	// expiry is committed by the dispatcher, never by a verification run
	if sess.Expired(s.now()) {
		retErr = dErrors.New(dErrors.CodeSessionExpired, "session validity window elapsed")
		return nil, retErr
	}

	cid := sess.CredentialCID
	if cidOverride != "" {
		cid = cidOverride
	}
	if cid == "" {
		return s.commitInvalid(ctx, sess, proofType, "no credential document submitted")
	}
	span.SetAttributes(tracer.String(tracer.AttrCID, cid))

	bundle, failure, err := s.loadBundle(ctx, cid, proofType)
	if err != nil {
		retErr = err
		return nil, retErr
	}
	if failure != "" {
		return s.commitInvalid(ctx, sess, proofType, failure)
	}

	vk, err := s.loadVerifyingKey(ctx, proofType)
	if err != nil {
		retErr = err
		return nil, retErr
	}

	_, pairSpan := s.tracer.Start(ctx, tracer.SpanPairingCheck)
	ok, err := snark.Verify(vk, bundle.Proof, bundle.PublicSignals)
	pairSpan.End(err)
	if err != nil {
		// malformed points or signals: burn the attempt
		return s.commitInvalid(ctx, sess, proofType, err.Error())
	}
	if !ok {
		return s.commitInvalid(ctx, sess, proofType, "pairing check failed")
	}

	// a valid proof completes the consent exchange
	resp, err := s.commit(ctx, sess, sessionstore.VerificationOutcome{
		ProofStatus: models.ProofValid,
		Status:      models.StatusCompleted,
		Details: models.VerificationDetails{
			ProofType:  proofType,
			Verified:   true,
			VerifiedAt: s.now().UTC(),
		},
	})
	if err != nil {
		retErr = err
		return nil, retErr
	}
	span.SetAttributes(tracer.String(tracer.AttrOutcome, "valid"))
	s.metrics.IncVerifications("valid")
	s.audit.Emit(audit.Event{
		Type:       audit.EventProofVerified,
		SessionID:  sess.SessionID,
		ProviderID: sess.ProviderID,
		Detail:     proofType,
	})
	s.logger.Info("proof verified", "session_id", sess.SessionID, "proof_type", proofType)
	return resp, nil
}

// loadBundle fetches and structurally validates the proof bundle. It returns
// a non-empty failure string for problems that should burn an attempt, and an
// error only for infrastructure trouble worth retrying.
func (s *Service) loadBundle(ctx context.Context, cid, proofType string) (*credential.ProofBundle, string, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanFetchDocument, tracer.String(tracer.AttrCID, cid))
	doc, err := s.content.Get(ctx, cid)
	span.End(err)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return nil, fmt.Sprintf("no document at cid %s", cid), nil
		case dErrors.HasCode(err, dErrors.CodeFetchTimeout):
			return nil, err.Error(), nil
		default:
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "fetch credential document")
		}
	}

	cred, err := credential.Decode(doc)
	if err != nil {
		return nil, err.Error(), nil
	}
	bundle, err := cred.Bundle(proofType)
	if err != nil {
		return nil, err.Error(), nil
	}
	return bundle, "", nil
}

func (s *Service) loadVerifyingKey(ctx context.Context, proofType string) (*snark.VerifyingKey, error) {
	rec, err := s.vkeys.Get(ctx, proofType)
	if err != nil {
		if errors.Is(err, vkey.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("no verification key provisioned for %q", proofType))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load verification key")
	}
	var vk snark.VerifyingKey
	if err := json.Unmarshal(rec.Key, &vk); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode verification key")
	}
	return &vk, nil
}

func (s *Service) commitInvalid(ctx context.Context, sess *models.Session, proofType, detail string) (*models.VerifyResponse, error) {
	resp, err := s.commit(ctx, sess, sessionstore.VerificationOutcome{
		ProofStatus: models.ProofInvalid,
		Status:      models.StatusOngoing,
		Details: models.VerificationDetails{
			ProofType:  proofType,
			Verified:   false,
			VerifiedAt: s.now().UTC(),
			Error:      detail,
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVerifications("invalid")
	s.audit.Emit(audit.Event{
		Type:       audit.EventProofInvalid,
		SessionID:  sess.SessionID,
		ProviderID: sess.ProviderID,
		Detail:     detail,
	})
	s.logger.Warn("proof rejected", "session_id", sess.SessionID, "proof_type", proofType, "reason", detail)
	return resp, nil
}

// commit records the outcome through the store's compare-and-swap. Losing
// the race is a logged no-op: the first committed outcome stands and the
// loser still reports the result its own run produced.
func (s *Service) commit(ctx context.Context, sess *models.Session, outcome sessionstore.VerificationOutcome) (*models.VerifyResponse, error) {
	updated, err := s.sessions.CommitVerification(ctx, sess.SessionID, outcome)
	if err != nil {
		if errors.Is(err, sessionstore.ErrStale) {
			s.logger.Info("verification already committed, keeping first outcome",
				"session_id", sess.SessionID, "proof_type", outcome.Details.ProofType)
			resp := &models.VerifyResponse{
				Verified:    outcome.Details.Verified,
				ProofStatus: outcome.ProofStatus,
			}
			if !resp.Verified {
				resp.Message = outcome.Details.Error
			}
			return resp, nil
		}
		if errors.Is(err, sessionstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "commit verification")
	}

	resp := &models.VerifyResponse{
		Verified:    updated.VerificationDetails.Verified,
		ProofStatus: updated.ProofStatus,
	}
	if !resp.Verified {
		resp.Message = updated.VerificationDetails.Error
	}
	return resp, nil
}
