package models

import (
	"encoding/json"
	"time"
)

// EventType is the audit taxonomy. New values may be added; existing values
// are never repurposed, because certificates of completed envelopes cite them.
type EventType string

const (
	EventCreated      EventType = "created"
	EventSent         EventType = "sent"
	EventViewed       EventType = "viewed"
	EventConsentGiven EventType = "consent_given"
	EventSigned       EventType = "signed"
	EventDeclined     EventType = "declined"
	EventDelegated    EventType = "delegated"
	EventReminded     EventType = "reminded"
	EventCorrected    EventType = "corrected"
	EventTransferred  EventType = "transferred"
	EventVoided       EventType = "voided"
	EventCompleted    EventType = "completed"
	EventCommented    EventType = "commented"
)

// AuditEvent is one immutable row of the envelope's append-only trail.
// Seq is assigned transactionally at append time and defines the creation
// order the completion certificate narrates in.
type AuditEvent struct {
	ID          string         `firestore:"-" json:"id"`
	EnvelopeID  string         `firestore:"-" json:"envelopeId"`
	SignerID    string         `firestore:"signerId,omitempty" json:"signerId,omitempty"`
	EventType   EventType      `firestore:"eventType" json:"eventType"`
	EventData   map[string]any `firestore:"eventData,omitempty" json:"eventData,omitempty"`
	ActorName   string         `firestore:"actorName,omitempty" json:"actorName,omitempty"`
	ActorEmail  string         `firestore:"actorEmail,omitempty" json:"actorEmail,omitempty"`
	IPAddress   string         `firestore:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	Geolocation string         `firestore:"geolocation,omitempty" json:"geolocation,omitempty"`
	Seq         int            `firestore:"seq" json:"seq"`
	CreatedAt   time.Time      `firestore:"createdAt" json:"createdAt"`
}

// EventData is the tagged union of per-eventType payloads. Each event type
// carries a fixed schema; the union stays open-ended by adding new types.
type EventData interface {
	EventType() EventType
}

// EncodeEventData converts a typed payload into the free-form map persisted
// on the audit row.
func EncodeEventData(d EventData) (map[string]any, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

type CreatedData struct {
	SignerCount int `json:"signerCount"`
	FieldCount  int `json:"fieldCount"`
}

func (CreatedData) EventType() EventType { return EventCreated }

type SentData struct {
	SignerCount int `json:"signerCount"`
}

func (SentData) EventType() EventType { return EventSent }

type ViewedData struct{}

func (ViewedData) EventType() EventType { return EventViewed }

type ConsentData struct{}

func (ConsentData) EventType() EventType { return EventConsentGiven }

type SignedData struct {
	FieldCount int `json:"fieldCount"`
}

func (SignedData) EventType() EventType { return EventSigned }

type DeclinedData struct {
	Reason string `json:"reason"`
}

func (DeclinedData) EventType() EventType { return EventDeclined }

type DelegatedData struct {
	FromSignerID string `json:"fromSignerId"`
	FromName     string `json:"fromName"`
	FromEmail    string `json:"fromEmail"`
	ToSignerID   string `json:"toSignerId"`
	ToName       string `json:"toName"`
	ToEmail      string `json:"toEmail"`
}

func (DelegatedData) EventType() EventType { return EventDelegated }

type RemindedData struct {
	TokenRotated bool `json:"tokenRotated"`
}

func (RemindedData) EventType() EventType { return EventReminded }

// FieldChange records one element of a correction delta.
type FieldChange struct {
	Entity string `json:"entity"`
	ID     string `json:"id,omitempty"`
	Attr   string `json:"attr"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type CorrectedData struct {
	Changes []FieldChange `json:"changes"`
}

func (CorrectedData) EventType() EventType { return EventCorrected }

type TransferredData struct {
	FromOrgID string `json:"fromOrgId"`
	ToOrgID   string `json:"toOrgId"`
}

func (TransferredData) EventType() EventType { return EventTransferred }

type VoidedData struct {
	Reason string `json:"reason"`
}

func (VoidedData) EventType() EventType { return EventVoided }

type CompletedData struct {
	SealedKey   string `json:"sealedKey"`
	ContentHash string `json:"contentHash"`
}

func (CompletedData) EventType() EventType { return EventCompleted }

type CommentData struct {
	Comment string `json:"comment"`
}

func (CommentData) EventType() EventType { return EventCommented }
