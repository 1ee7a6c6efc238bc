// Package service implements the consent session lifecycle: creation with a
// signed challenge, user decisions, bounded proof resubmission and read
// projections.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"zkconsent/internal/audit"
	"zkconsent/internal/challenge"
	"zkconsent/internal/session/metrics"
	"zkconsent/internal/session/models"
	"zkconsent/internal/session/store"
	userstore "zkconsent/internal/user/store"
	dErrors "zkconsent/pkg/domain-errors"
)

// Service coordinates consent sessions.
type Service struct {
	store      store.Store
	users      userstore.Store
	challenges *challenge.Service

	sessionDuration   time.Duration
	maxVerifyAttempts int

	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures the session service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithSessionDuration sets the validity window granted on approval.
func WithSessionDuration(d time.Duration) Option {
	return func(s *Service) { s.sessionDuration = d }
}

// WithMaxVerifyAttempts bounds proof resubmission.
func WithMaxVerifyAttempts(n int) Option {
	return func(s *Service) { s.maxVerifyAttempts = n }
}

// New constructs a session service.
func New(st store.Store, users userstore.Store, challenges *challenge.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:             st,
		users:             users,
		challenges:        challenges,
		sessionDuration:   2 * time.Minute,
		maxVerifyAttempts: 3,
		logger:            logger,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a Pending session for a provider's disclosure request and
// issues its challenge token.
func (s *Service) Create(ctx context.Context, req *models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request body required")
	}
	if req.Provider.ProviderID == "" || req.Provider.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "provider ID and name required")
	}
	var unrecognized []string
	for _, field := range req.RequestedFields {
		if !models.IsRecognizedField(field) {
			unrecognized = append(unrecognized, field)
		}
	}
	if len(unrecognized) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unrecognized fields: %s (recognized: %s)",
				strings.Join(unrecognized, ", "), strings.Join(models.RecognizedFields, ", ")))
	}

	user, err := s.users.GetByCredentialCID(ctx, req.UserRef)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no credential holder for the given reference")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up credential holder")
	}

	now := s.now()
	sessionID := s.newID()

	sess, err := models.NewSession(sessionID, req.Provider.ProviderID, req.Provider.Name,
		req.UserRef, req.ProofTypes, req.RequestedFields, now)
	if err != nil {
		return nil, err
	}

	token, err := s.challenges.Issue(req.UserRef, req.Provider.ProviderID, sessionID, now)
	if err != nil {
		return nil, err
	}
	sess.Challenge = token
	sess.CredentialCID = user.CredentialCID

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save session")
	}

	s.metrics.IncSessionsCreated(req.Provider.ProviderID)
	s.audit.Emit(audit.Event{
		Type:       audit.EventSessionCreated,
		SessionID:  sessionID,
		ProviderID: req.Provider.ProviderID,
	})
	s.logger.Info("session created",
		"session_id", sessionID, "provider_id", req.Provider.ProviderID)

	return &models.CreateSessionResponse{
		SessionID:       sessionID,
		Challenge:       token,
		RequestedFields: sess.RequestedFields,
		ProofTypes:      sess.ProofTypes,
		Provider:        req.Provider,
		SessionDuration: s.sessionDuration.Milliseconds(),
		RequestedAt:     now,
	}, nil
}

// Approve commits the user's grant: the session becomes Ongoing and its
// validity window starts now.
func (s *Service) Approve(ctx context.Context, sessionID string, req *models.ApproveRequest) (*models.SessionView, error) {
	if req == nil || len(req.ApprovedFields) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one approved field required")
	}

	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	requested := make(map[string]bool, len(sess.RequestedFields))
	for _, f := range sess.RequestedFields {
		requested[f] = true
	}
	for _, f := range req.ApprovedFields {
		if !requested[f] {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("field %q was not requested", f))
		}
	}

	now := s.now()
	updated, err := s.store.Approve(ctx, sessionID, req.ApprovedFields, now.Add(s.sessionDuration))
	if err != nil {
		return nil, s.mapTransitionErr(err, "only pending sessions can be approved")
	}

	s.metrics.IncSessionsApproved(updated.ProviderID)
	s.audit.Emit(audit.Event{
		Type:       audit.EventSessionApproved,
		SessionID:  sessionID,
		ProviderID: updated.ProviderID,
	})
	s.logger.Info("session approved", "session_id", sessionID)
	return s.view(updated), nil
}

// Reject declines a pending session.
func (s *Service) Reject(ctx context.Context, sessionID string) (*models.SessionView, error) {
	updated, err := s.store.Reject(ctx, sessionID)
	if err != nil {
		return nil, s.mapTransitionErr(err, "only pending sessions can be rejected")
	}

	s.metrics.IncSessionsRejected(updated.ProviderID)
	s.audit.Emit(audit.Event{
		Type:       audit.EventSessionRejected,
		SessionID:  sessionID,
		ProviderID: updated.ProviderID,
	})
	s.logger.Info("session rejected", "session_id", sessionID)
	return s.view(updated), nil
}

// Revoke withdraws an ongoing grant before its window elapses.
func (s *Service) Revoke(ctx context.Context, sessionID string) (*models.SessionView, error) {
	updated, err := s.store.Revoke(ctx, sessionID, s.now())
	if err != nil {
		// An expired window is reported distinctly from other state conflicts.
		if errors.Is(err, store.ErrStale) {
			if sess, getErr := s.store.Get(ctx, sessionID); getErr == nil &&
				sess.Status == models.StatusOngoing && sess.Expired(s.now()) {
				return nil, dErrors.New(dErrors.CodeSessionExpired, "consent window already elapsed")
			}
		}
		return nil, s.mapTransitionErr(err, "only ongoing sessions can be revoked")
	}

	s.metrics.IncSessionsRevoked(updated.ProviderID)
	s.audit.Emit(audit.Event{
		Type:       audit.EventSessionRevoked,
		SessionID:  sessionID,
		ProviderID: updated.ProviderID,
	})
	s.logger.Info("session revoked", "session_id", sessionID)
	return s.view(updated), nil
}

// Resubmit re-arms verification with a new credential document after an
// Invalid outcome. The caller must present the session's challenge token;
// attempts are bounded.
func (s *Service) Resubmit(ctx context.Context, sessionID string, req *models.ResubmitRequest) (*models.SessionView, error) {
	if req == nil || req.CredentialCID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential CID required")
	}

	claims, err := s.challenges.Validate(req.Challenge)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "challenge was issued for a different session")
	}

	updated, err := s.store.RearmProof(ctx, sessionID, req.CredentialCID, s.maxVerifyAttempts)
	if err != nil {
		return nil, s.mapTransitionErr(err,
			fmt.Sprintf("resubmission requires an ongoing session with an invalid proof and fewer than %d attempts", s.maxVerifyAttempts))
	}

	s.audit.Emit(audit.Event{
		Type:       audit.EventProofResubmit,
		SessionID:  sessionID,
		ProviderID: updated.ProviderID,
		Detail:     req.CredentialCID,
	})
	s.logger.Info("proof resubmitted", "session_id", sessionID, "cid", req.CredentialCID)
	return s.view(updated), nil
}

// Get returns the projection of one session.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.SessionView, error) {
	sess, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// List returns projections of all sessions, newest first.
func (s *Service) List(ctx context.Context) ([]*models.SessionView, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list sessions")
	}
	views := make([]*models.SessionView, len(sessions))
	for i, sess := range sessions {
		views[i] = s.view(sess)
	}
	return views, nil
}

func (s *Service) get(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	return sess, nil
}

func (s *Service) mapTransitionErr(err error, conflictMsg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	case errors.Is(err, store.ErrStale):
		return dErrors.New(dErrors.CodeStateConflict, conflictMsg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "update session")
	}
}

// view renders the session projection. Remaining time is computed against
// server time; clients must not derive state from their own clocks.
func (s *Service) view(sess *models.Session) *models.SessionView {
	now := s.now()
	return &models.SessionView{
		SessionID:       sess.SessionID,
		ProviderID:      sess.ProviderID,
		ProviderName:    sess.ProviderName,
		UserRef:         sess.UserRef,
		ProofTypes:      sess.ProofTypes,
		RequestedFields: sess.RequestedFields,
		ApprovedFields:  sess.ApprovedFields,
		Status:          sess.Status,
		ProofStatus:     sess.ProofStatus,
		RequestedAt:     sess.RequestedAt,
		TimerEnd:        sess.TimerEnd,
		RemainingMs:     sess.Remaining(now).Milliseconds(),
		CredentialCID:   sess.CredentialCID,
		VerifyAttempts:  sess.VerifyAttempts,
		NeedsResign:     sess.NeedsResign(),
		Details:         sess.VerificationDetails,
	}
}
