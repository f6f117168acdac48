package models

import "time"

// EnvelopeStatus is the lifecycle state of an envelope.
type EnvelopeStatus string

const (
	EnvelopeDraft      EnvelopeStatus = "draft"
	EnvelopeSent       EnvelopeStatus = "sent"
	EnvelopeInProgress EnvelopeStatus = "in_progress"
	EnvelopeCompleted  EnvelopeStatus = "completed"
	EnvelopeVoided     EnvelopeStatus = "voided"
	EnvelopeExpired    EnvelopeStatus = "expired"
)

// SigningOrder selects the eligibility policy for an envelope's signers.
type SigningOrder string

const (
	OrderSequential SigningOrder = "sequential"
	OrderParallel   SigningOrder = "parallel"
)

// SealState tracks the asynchronous sealing hand-off independently of the
// envelope status, so that scheduling happens exactly once and failed seals
// stay visible for retry.
type SealState string

const (
	SealNone      SealState = "none"
	SealScheduled SealState = "scheduled"
	SealRunning   SealState = "sealing"
	SealFailed    SealState = "failed"
	SealDone      SealState = "sealed"
)

// Envelope is the master record for one document-signing transaction.
// It is the unit of contention: every ceremony mutation runs inside a
// transaction rooted at this document.
type Envelope struct {
	ID                string         `firestore:"-" json:"id"`
	Subject           string         `firestore:"subject,omitempty" json:"subject"`
	Message           string         `firestore:"message,omitempty" json:"message"`
	Status            EnvelopeStatus `firestore:"status" json:"status"`
	SigningOrder      SigningOrder   `firestore:"signingOrder" json:"signingOrder"`
	OrgID             string         `firestore:"orgId,omitempty" json:"orgId"`
	CreatorID         string         `firestore:"creatorId,omitempty" json:"creatorId"`
	DocumentKey       string         `firestore:"documentKey,omitempty" json:"documentKey"`
	SealedKey         string         `firestore:"sealedKey,omitempty" json:"sealedKey"`
	CompletionCertKey string         `firestore:"completionCertKey,omitempty" json:"completionCertKey"`
	ContentHash       string         `firestore:"contentHash,omitempty" json:"contentHash,omitempty"`
	SealState         SealState      `firestore:"sealState,omitempty" json:"sealState,omitempty"`
	SealStateAt       time.Time      `firestore:"sealStateAt,omitempty" json:"sealStateAt,omitempty"`
	SealError         string         `firestore:"sealError,omitempty" json:"sealError,omitempty"`
	VoidReason        string         `firestore:"voidReason,omitempty" json:"voidReason,omitempty"`
	AuditSeq          int            `firestore:"auditSeq" json:"-"`
	CreatedAt         time.Time      `firestore:"createdAt" json:"createdAt"`
	SentAt            time.Time      `firestore:"sentAt,omitempty" json:"sentAt,omitempty"`
	CompletedAt       time.Time      `firestore:"completedAt,omitempty" json:"completedAt,omitempty"`
	ExpiresAt         time.Time      `firestore:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// Terminal reports whether the envelope has reached a state from which no
// further ceremony mutation is permitted.
func (e *Envelope) Terminal() bool {
	switch e.Status {
	case EnvelopeCompleted, EnvelopeVoided, EnvelopeExpired:
		return true
	}
	return false
}

// Voidable reports whether void may be applied to the envelope.
func (e *Envelope) Voidable() bool {
	switch e.Status {
	case EnvelopeDraft, EnvelopeSent, EnvelopeInProgress:
		return true
	}
	return false
}

// MetadataMutable reports whether subject/message edits are still allowed.
func (e *Envelope) MetadataMutable() bool {
	return e.Status == EnvelopeDraft
}

// ParticipantsMutable reports whether signer and field edits are still allowed.
func (e *Envelope) ParticipantsMutable() bool {
	return e.Status == EnvelopeDraft || e.Status == EnvelopeSent
}
