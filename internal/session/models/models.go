package models

import (
	"time"

	dErrors "zkconsent/pkg/domain-errors"
)

// Status is the consent session lifecycle state.
//
// The state machine is closed: Pending is the only initial state, and
// Completed, Rejected and Revoked are terminal. A session never returns to
// Pending once advanced.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusOngoing   Status = "Ongoing"
	StatusCompleted Status = "Completed"
	StatusRejected  Status = "Rejected"
	StatusRevoked   Status = "Revoked"
)

// IsValid reports whether s is a member of the closed status set.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusOngoing, StatusCompleted, StatusRejected, StatusRevoked:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusRevoked:
		return true
	}
	return false
}

// CanTransition returns true when the state machine permits from -> to.
// This is the single authority on status transitions; stores enforce the
// same conditions atomically.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusOngoing || to == StatusRejected
	case StatusOngoing:
		return to == StatusCompleted || to == StatusRevoked
	case StatusCompleted, StatusRejected, StatusRevoked:
		return false
	}
	return false
}

// ProofStatus tracks the verification outcome for the session's proof.
// It leaves "awaited" at most once per attempt cycle; re-arming it is an
// explicit, bounded resubmission.
type ProofStatus string

const (
	ProofAwaited ProofStatus = "awaited"
	ProofValid   ProofStatus = "Valid"
	ProofInvalid ProofStatus = "Invalid"
)

// IsValid reports whether p is a member of the closed proof-status set.
func (p ProofStatus) IsValid() bool {
	switch p {
	case ProofAwaited, ProofValid, ProofInvalid:
		return true
	}
	return false
}

// VerificationDetails records the last verification outcome or error.
type VerificationDetails struct {
	ProofType  string    `json:"proofType"`
	Verified   bool      `json:"verified"`
	VerifiedAt time.Time `json:"verifiedAt"`
	Error      string    `json:"error,omitempty"`
}

// Session is the unit of a consent exchange between a provider and a user.
type Session struct {
	SessionID    string
	ProviderID   string
	ProviderName string
	UserRef      string // credential CID identifying the user record

	ProofTypes      []string
	RequestedFields []string
	ApprovedFields  []string

	Status      Status
	ProofStatus ProofStatus

	RequestedAt   time.Time
	TimerEnd      *time.Time // set iff the session has ever been Ongoing
	Challenge     string
	CredentialCID string

	VerifyAttempts      int
	VerificationDetails *VerificationDetails

	// ResignedAt is set once the credential has been re-signed for this
	// session's terminal stage.
	ResignedAt *time.Time
}

// NeedsResign reports whether the session closed in a state that requires a
// stage signature the credential does not carry yet. Rejected sessions never
// granted access, so nothing is re-signed for them.
func (s *Session) NeedsResign() bool {
	return (s.Status == StatusCompleted || s.Status == StatusRevoked) && s.ResignedAt == nil
}

// RecognizedFields is the set of attribute names a provider may request,
// in the order they are presented to users.
var RecognizedFields = []string{"cid", "name", "dob", "location"}

// IsRecognizedField reports whether the attribute name can be requested.
func IsRecognizedField(name string) bool {
	for _, f := range RecognizedFields {
		if f == name {
			return true
		}
	}
	return false
}

// NewSession creates a Pending session with domain invariant checks.
func NewSession(sessionID, providerID, providerName, userRef string, proofTypes, requestedFields []string, requestedAt time.Time) (*Session, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "session ID required")
	}
	if providerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "provider ID required")
	}
	if userRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user reference required")
	}
	if len(proofTypes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one proof type required")
	}
	if len(requestedFields) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one requested field required")
	}
	return &Session{
		SessionID:       sessionID,
		ProviderID:      providerID,
		ProviderName:    providerName,
		UserRef:         userRef,
		ProofTypes:      proofTypes,
		RequestedFields: requestedFields,
		Status:          StatusPending,
		ProofStatus:     ProofAwaited,
		RequestedAt:     requestedAt,
	}, nil
}

// Expired reports whether the session's validity window has elapsed.
// Only the persisted TimerEnd compared against server time is authoritative;
// client countdowns are display projections.
func (s *Session) Expired(now time.Time) bool {
	return s.TimerEnd != nil && !s.TimerEnd.After(now)
}

// Remaining returns the time left in the validity window, zero once expired
// or before the session becomes Ongoing.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.TimerEnd == nil {
		return 0
	}
	if d := s.TimerEnd.Sub(now); d > 0 {
		return d
	}
	return 0
}

// AwaitingVerification reports whether the dispatcher should pick this
// session up on its next cycle.
func (s *Session) AwaitingVerification() bool {
	return s.Status == StatusOngoing && s.ProofStatus == ProofAwaited
}
