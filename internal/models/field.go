package models

import "time"

// FieldType enumerates the kinds of values that can be burned into the
// sealed document.
type FieldType string

const (
	FieldSignature  FieldType = "signature"
	FieldInitial    FieldType = "initial"
	FieldDate       FieldType = "date"
	FieldText       FieldType = "text"
	FieldCheckbox   FieldType = "checkbox"
	FieldRadio      FieldType = "radio"
	FieldDropdown   FieldType = "dropdown"
	FieldNumber     FieldType = "number"
	FieldCurrency   FieldType = "currency"
	FieldCalculated FieldType = "calculated"
	FieldAttachment FieldType = "attachment"
)

// Field is a placed input on one page of an envelope's document. Coordinates
// are page-relative percentages in [0,100], measured from the top-left corner.
type Field struct {
	ID           string    `firestore:"-" json:"id"`
	EnvelopeID   string    `firestore:"-" json:"envelopeId"`
	DocumentID   string    `firestore:"documentId,omitempty" json:"documentId,omitempty"`
	SignerID     string    `firestore:"signerId,omitempty" json:"signerId,omitempty"`
	Type         FieldType `firestore:"type" json:"type"`
	Page         int       `firestore:"page" json:"page"`
	X            float64   `firestore:"x" json:"x"`
	Y            float64   `firestore:"y" json:"y"`
	Width        float64   `firestore:"width" json:"width"`
	Height       float64   `firestore:"height" json:"height"`
	Required     bool      `firestore:"required" json:"required"`
	Value        string    `firestore:"value,omitempty" json:"value,omitempty"`
	SignatureKey string    `firestore:"signatureKey,omitempty" json:"signatureKey,omitempty"`
	FilledAt     time.Time `firestore:"filledAt,omitempty" json:"filledAt,omitempty"`
}

// Filled reports whether a value (or signature image) has been applied.
func (f *Field) Filled() bool {
	return f.Value != "" || f.SignatureKey != ""
}

// BoxValid reports whether the normalized geometry is inside the page.
func (f *Field) BoxValid() bool {
	if f.X < 0 || f.Y < 0 || f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return f.X+f.Width <= 100 && f.Y+f.Height <= 100
}
