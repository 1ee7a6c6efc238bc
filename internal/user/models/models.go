// Package models defines the user records whose attributes consent sessions
// disclose.
package models

import (
	"time"

	dErrors "zkconsent/pkg/domain-errors"
)

// User is a registered credential holder. CredentialCID points at the
// currently signed credential document in content-addressed storage.
type User struct {
	ID            string
	WalletAddress string
	Name          string
	DOB           string
	Location      string
	CredentialCID string
	CreatedAt     time.Time
}

// NewUser validates and constructs a user record.
func NewUser(id, walletAddress, name, dob, location, credentialCID string, createdAt time.Time) (*User, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user ID required")
	}
	if walletAddress == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "wallet address required")
	}
	if credentialCID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential CID required")
	}
	return &User{
		ID:            id,
		WalletAddress: walletAddress,
		Name:          name,
		DOB:           dob,
		Location:      location,
		CredentialCID: credentialCID,
		CreatedAt:     createdAt,
	}, nil
}

// Field returns the value of a disclosed attribute by its recognized name.
func (u *User) Field(name string) (string, bool) {
	switch name {
	case "cid":
		return u.CredentialCID, true
	case "name":
		return u.Name, true
	case "dob":
		return u.DOB, true
	case "location":
		return u.Location, true
	}
	return "", false
}
