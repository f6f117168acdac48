package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/SendSign/SendSign-sub000/internal/store"
)

// Ceremony error taxonomy. Each rejection carries the context its caller
// needs; rejected actions never write audit events or partial state.

// InvalidToken halts the ceremony: the presented token is missing, expired,
// or already consumed.
type InvalidToken struct {
	Reason string // not_found | expired | consumed
}

func (e *InvalidToken) Error() string {
	return fmt.Sprintf("invalid signing token: %s", e.Reason)
}

// NotYourTurn is an eligibility denial. Retryable once the blocking signers
// finish.
type NotYourTurn struct {
	Blocking []string // signer IDs that must complete first
}

func (e *NotYourTurn) Error() string {
	return fmt.Sprintf("not this signer's turn: blocked by %s", strings.Join(e.Blocking, ", "))
}

// ValidationError reports precondition failures the caller must fix before
// retrying, e.g. send attempted while signers lack signature fields.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Problems, "; "))
}

// InvalidStateError reports an action attempted against a terminal or
// incompatible envelope/signer state.
type InvalidStateError struct {
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Attempted, e.Current)
}

// SealingFailure is an infrastructure-level failure inside the asynchronous
// sealing pipeline. The envelope stays in_progress and the seal is retried;
// signer completions are never unwound.
type SealingFailure struct {
	Step string
	Err  error
}

func (e *SealingFailure) Error() string {
	return fmt.Sprintf("sealing failed at %s: %v", e.Step, e.Err)
}

func (e *SealingFailure) Unwrap() error { return e.Err }

// HTTPStatus maps a ceremony error to the status code its caller receives.
func HTTPStatus(err error) int {
	var invalidToken *InvalidToken
	var notYourTurn *NotYourTurn
	var validation *ValidationError
	var invalidState *InvalidStateError
	switch {
	case errors.As(err, &invalidToken):
		return http.StatusUnauthorized
	case errors.As(err, &notYourTurn):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalidState):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
