package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/SendSign/SendSign-sub000/internal/store"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", &InvalidToken{Reason: "expired"}, http.StatusUnauthorized},
		{"not your turn", &NotYourTurn{Blocking: []string{"s1"}}, http.StatusForbidden},
		{"validation", &ValidationError{Problems: []string{"missing field"}}, http.StatusUnprocessableEntity},
		{"invalid state", &InvalidStateError{Current: "voided", Attempted: "send"}, http.StatusConflict},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", store.ErrNotFound), http.StatusNotFound},
		{"wrapped token", fmt.Errorf("ceremony: %w", &InvalidToken{Reason: "consumed"}), http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Errorf("HTTPStatus = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSealingFailureUnwraps(t *testing.T) {
	cause := errors.New("bucket unreachable")
	err := &SealingFailure{Step: "upload-sealed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("SealingFailure does not unwrap to its cause")
	}
}
