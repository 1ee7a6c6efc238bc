// Package credential defines the signed credential documents users store in
// content-addressed storage, and the stores that fetch them by CID.
package credential

import (
	"encoding/json"
	"fmt"
	"time"

	"zkconsent/internal/zkp/snark"
	dErrors "zkconsent/pkg/domain-errors"
)

// ProofBundle carries one zero-knowledge proof and the public signals it was
// generated against, keyed in the credential by proof type.
type ProofBundle struct {
	Proof         *snark.Proof `json:"proof"`
	PublicSignals []string     `json:"publicSignals"`
}

// Lifecycle stages a credential signature can be tagged with. A credential
// accumulates one signature per stage it passes through; the list is
// append-only.
const (
	StageIssue    = "issue"
	StageConsent  = "consent"
	StageRevoke   = "revoke"
	StageComplete = "complete"
)

// Signature is one stage-tagged issuer signature over the credential subject.
type Signature struct {
	Stage              string    `json:"stage"`
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod,omitempty"`
	SignatureValue     string    `json:"signatureValue"`
}

// Credential is the document stored at a CID: subject attributes, the
// append-only stage signature list and zero or more proof bundles keyed by
// proof type.
type Credential struct {
	Context      []string                `json:"@context,omitempty"`
	Type         []string                `json:"type,omitempty"`
	Subject      map[string]string       `json:"credentialSubject"`
	IssuanceDate time.Time               `json:"issuanceDate"`
	Proofs       map[string]*ProofBundle `json:"zkProofs,omitempty"`
	Signatures   []Signature             `json:"signatures,omitempty"`
}

// HasStage reports whether the credential already carries a signature for
// the given lifecycle stage.
func (c *Credential) HasStage(stage string) bool {
	for _, sig := range c.Signatures {
		if sig.Stage == stage {
			return true
		}
	}
	return false
}

// Decode parses a credential document.
func Decode(doc []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(doc, &cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStructuralProof, "credential document is not valid JSON")
	}
	return &cred, nil
}

// Encode serializes the credential document.
func (c *Credential) Encode() ([]byte, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode credential")
	}
	return doc, nil
}

// Bundle returns the proof bundle for the given proof type after a
// structural check, naming whatever is missing.
func (c *Credential) Bundle(proofType string) (*ProofBundle, error) {
	bundle, ok := c.Proofs[proofType]
	if !ok || bundle == nil {
		return nil, dErrors.New(dErrors.CodeStructuralProof,
			fmt.Sprintf("credential carries no %q proof", proofType))
	}
	if err := bundle.Proof.ValidateStructure(); err != nil {
		return nil, err
	}
	if len(bundle.PublicSignals) == 0 {
		return nil, dErrors.New(dErrors.CodeStructuralProof, "proof missing components: publicSignals")
	}
	return bundle, nil
}
