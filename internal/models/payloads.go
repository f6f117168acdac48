package models

// These structs define the JSON payloads for HTTP requests and responses
// between external callers (API layer, scheduler, workflow) and the ceremony
// function entrypoints.

// ManageRequest is the input for the envelope-admin function, which exposes
// the sender-side operations of the state machine. Action selects the
// operation; the remaining fields are per-action.
type ManageRequest struct {
	Action     string `json:"action"` // send | void | remind | correct | transfer
	EnvelopeID string `json:"envelopeId"`
	ActorName  string `json:"actorName,omitempty"`
	ActorEmail string `json:"actorEmail,omitempty"`

	// void
	Reason string `json:"reason,omitempty"`

	// remind
	SignerID string `json:"signerId,omitempty"`

	// transfer
	ToOrgID string `json:"toOrgId,omitempty"`

	// correct
	Subject      *string           `json:"subject,omitempty"`
	Message      *string           `json:"message,omitempty"`
	SignerNames  map[string]string `json:"signerNames,omitempty"`
	SignerEmails map[string]string `json:"signerEmails,omitempty"`
}

// ManageResponse is the output of the envelope-admin function.
type ManageResponse struct {
	Status         string         `json:"status"`
	EnvelopeStatus EnvelopeStatus `json:"envelopeStatus,omitempty"`
}

// CeremonyRequest is the input for the token-authenticated ceremony function.
// Action selects the operation; the remaining fields are per-action.
type CeremonyRequest struct {
	Action string `json:"action"` // view | consent | sign | decline | delegate | comment
	Token  string `json:"token"`

	// sign
	FieldValues   map[string]string `json:"fieldValues,omitempty"`   // fieldID -> value
	SignatureKeys map[string]string `json:"signatureKeys,omitempty"` // fieldID -> captured image blob key

	// decline
	Reason string `json:"reason,omitempty"`

	// delegate
	DelegateName  string `json:"delegateName,omitempty"`
	DelegateEmail string `json:"delegateEmail,omitempty"`

	// comment
	Comment string `json:"comment,omitempty"`
}

// CeremonyResponse is the output of the ceremony function.
type CeremonyResponse struct {
	Status         string         `json:"status"`
	EnvelopeStatus EnvelopeStatus `json:"envelopeStatus,omitempty"`
	SignerStatus   SignerStatus   `json:"signerStatus,omitempty"`
}

// SealRequest is the payload carried by the sealing trigger (workflow
// execution argument or CloudEvent data).
type SealRequest struct {
	EnvelopeID  string `json:"envelopeId"`
	ExecutionID string `json:"executionId,omitempty"`
}

// SealResponse is the output of the envelope-sealer function.
type SealResponse struct {
	Status            string `json:"status"`
	SealedKey         string `json:"sealedKey,omitempty"`
	CompletionCertKey string `json:"completionCertKey,omitempty"`
	ContentHash       string `json:"contentHash,omitempty"`
}

// SweepResponse is the output of the ceremony-sweeper function.
type SweepResponse struct {
	Status           string `json:"status"`
	ExpiredEnvelopes int    `json:"expiredEnvelopes"`
	RescheduledSeals int    `json:"rescheduledSeals"`
}
