package models

import "time"

// Document is one uploaded source file of an envelope. The sealed document
// and the completion certificate are derived artifacts referenced directly by
// Envelope.SealedKey / Envelope.CompletionCertKey, not rows here.
type Document struct {
	ID          string    `firestore:"-" json:"id"`
	EnvelopeID  string    `firestore:"-" json:"envelopeId"`
	Filename    string    `firestore:"filename,omitempty" json:"filename"`
	ContentType string    `firestore:"contentType,omitempty" json:"contentType"`
	StorageKey  string    `firestore:"storageKey,omitempty" json:"storageKey"`
	ContentHash string    `firestore:"contentHash,omitempty" json:"contentHash"`
	PageOrder   int       `firestore:"pageOrder" json:"pageOrder"`
	CreatedAt   time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
}
