package models

import "time"

// SignerRole describes a participant's part in the ceremony. Only the
// "signer" role blocks ordering and completion.
type SignerRole string

const (
	RoleSigner   SignerRole = "signer"
	RoleCC       SignerRole = "cc"
	RoleApprover SignerRole = "approver"
	RoleWitness  SignerRole = "witness"
)

// SignerStatus is the per-participant ceremony state.
type SignerStatus string

const (
	SignerDraft     SignerStatus = "draft"
	SignerPending   SignerStatus = "pending"
	SignerNotified  SignerStatus = "notified"
	SignerCompleted SignerStatus = "completed"
	SignerDeclined  SignerStatus = "declined"
	SignerDelegated SignerStatus = "delegated"
)

// Signer is one participant of an envelope. The signing token, when set, is
// the sole credential for that participant's ceremony actions.
type Signer struct {
	ID             string       `firestore:"-" json:"id"`
	EnvelopeID     string       `firestore:"-" json:"envelopeId"`
	Name           string       `firestore:"name" json:"name"`
	Email          string       `firestore:"email" json:"email"`
	Role           SignerRole   `firestore:"role" json:"role"`
	Order          int          `firestore:"order" json:"order"`
	SigningGroup   int          `firestore:"signingGroup,omitempty" json:"signingGroup,omitempty"`
	Status         SignerStatus `firestore:"status" json:"status"`
	SigningToken   string       `firestore:"signingToken,omitempty" json:"-"`
	TokenExpiresAt time.Time    `firestore:"tokenExpiresAt,omitempty" json:"tokenExpiresAt,omitempty"`
	DelegatedFrom  string       `firestore:"delegatedFrom,omitempty" json:"delegatedFrom,omitempty"`
	ConsentedAt    time.Time    `firestore:"consentedAt,omitempty" json:"consentedAt,omitempty"`
	SignedAt       time.Time    `firestore:"signedAt,omitempty" json:"signedAt,omitempty"`
	DeclineReason  string       `firestore:"declineReason,omitempty" json:"declineReason,omitempty"`
	IPAddress      string       `firestore:"ipAddress,omitempty" json:"-"`
	UserAgent      string       `firestore:"userAgent,omitempty" json:"-"`
	NotifyByEmail  bool         `firestore:"notifyByEmail" json:"notifyByEmail"`
}

// Actionable reports whether the signer may still perform a ceremony action
// (view, consent, sign, decline, delegate).
func (s *Signer) Actionable() bool {
	return s.Status == SignerPending || s.Status == SignerNotified
}

// Rank is the signer's position in the sequential ordering. A signing group,
// when set, overrides the individual order so that group members are mutually
// eligible in parallel.
func (s *Signer) Rank() int {
	if s.SigningGroup > 0 {
		return s.SigningGroup
	}
	return s.Order
}

// Blocks reports whether this signer can hold up signers ranked after it.
// Non-signer roles never block; declined and delegated signers are skipped
// once their own status leaves the actionable set.
func (s *Signer) Blocks() bool {
	if s.Role != RoleSigner {
		return false
	}
	switch s.Status {
	case SignerCompleted, SignerDeclined, SignerDelegated:
		return false
	}
	return true
}

// TokenLive reports whether the signer holds a token that has not expired.
func (s *Signer) TokenLive(now time.Time) bool {
	return s.SigningToken != "" && now.Before(s.TokenExpiresAt)
}
