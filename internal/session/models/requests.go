package models

import "time"

// ProviderInfo identifies the requesting party on session creation.
type ProviderInfo struct {
	ProviderID  string `json:"providerId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	Provider        ProviderInfo `json:"provider"`
	UserRef         string       `json:"userRef"`
	RequestedFields []string     `json:"requestedFields"`
	ProofTypes      []string     `json:"proofTypes"`
}

// ApproveRequest is the payload for POST /sessions/{id}/approve.
type ApproveRequest struct {
	ApprovedFields []string `json:"approvedFields"`
}

// ResubmitRequest is the payload for POST /sessions/{id}/resubmit. Challenge
// is the token the session was created with; presenting it proves the
// resubmission comes from the same exchange.
type ResubmitRequest struct {
	CredentialCID string `json:"cid"`
	Challenge     string `json:"challenge"`
}

// VerifyRequest is the payload for POST /verify.
type VerifyRequest struct {
	CID       string `json:"cid"`
	ProofType string `json:"proofType"`
	SessionID string `json:"sessionId"`
}

// CreateSessionResponse echoes the session metadata and challenge token.
type CreateSessionResponse struct {
	SessionID       string       `json:"sessionId"`
	Challenge       string       `json:"challenge"`
	RequestedFields []string     `json:"requestedFields"`
	ProofTypes      []string     `json:"proofTypes"`
	Provider        ProviderInfo `json:"provider"`
	SessionDuration int64        `json:"sessionDurationMs"`
	RequestedAt     time.Time    `json:"requestedAt"`
}

// VerifyResponse reports a verification outcome to the caller.
type VerifyResponse struct {
	Verified    bool        `json:"verified"`
	ProofStatus ProofStatus `json:"proofStatus"`
	Message     string      `json:"message,omitempty"`
}

// SessionView is the read-only projection returned by listSessions.
type SessionView struct {
	SessionID       string               `json:"sessionId"`
	ProviderID      string               `json:"providerId"`
	ProviderName    string               `json:"providerName"`
	UserRef         string               `json:"userRef"`
	ProofTypes      []string             `json:"proofTypes"`
	RequestedFields []string             `json:"requestedFields"`
	ApprovedFields  []string             `json:"approvedFields,omitempty"`
	Status          Status               `json:"status"`
	ProofStatus     ProofStatus          `json:"proofStatus"`
	RequestedAt     time.Time            `json:"requestedAt"`
	TimerEnd        *time.Time           `json:"timerEnd,omitempty"`
	RemainingMs     int64                `json:"remainingMs"`
	CredentialCID   string               `json:"cid,omitempty"`
	VerifyAttempts  int                  `json:"verifyAttempts"`
	NeedsResign     bool                 `json:"needsResignature"`
	Details         *VerificationDetails `json:"verificationDetails,omitempty"`
}

// ResignResponse reports the outcome of a re-signature run.
type ResignResponse struct {
	SessionID     string      `json:"sessionId"`
	CredentialCID string      `json:"cid"`
	Stage         string      `json:"stage"`
	ProofStatus   ProofStatus `json:"proofStatus"`
}
