package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/SendSign/SendSign-sub000/internal/gcp"
	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/services"
)

var (
	ceremonyInstance *services.Ceremony
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCeremonyAction", handleCeremonyAction)
}

func main() {}

// handleCeremonyAction is the HTTP handler for the token-authenticated
// signer surface: view, consent, sign, decline, delegate, comment.
func handleCeremonyAction(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		ceremonyInstance, initErr = gcp.NewCeremonyFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Ceremony initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.CeremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	// The actor identity of a ceremony action is the signer behind the
	// token; only the connection context is taken from the request.
	actor := services.ActorContext{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}

	ctx := r.Context()
	var err error
	switch req.Action {
	case "view":
		err = ceremonyInstance.View(ctx, req.Token, actor)
	case "consent":
		err = ceremonyInstance.Consent(ctx, req.Token, actor)
	case "sign":
		err = ceremonyInstance.RecordSignature(ctx, req.Token, req.FieldValues, req.SignatureKeys, actor)
	case "decline":
		err = ceremonyInstance.Decline(ctx, req.Token, req.Reason, actor)
	case "delegate":
		_, err = ceremonyInstance.Delegate(ctx, req.Token, req.DelegateName, req.DelegateEmail, actor)
	case "comment":
		err = ceremonyInstance.Comment(ctx, req.Token, req.Comment, actor)
	default:
		http.Error(w, "Bad Request: unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Warn("Ceremony action rejected.", "action", req.Action, "error", err)
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	res := models.CeremonyResponse{Status: "success"}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "action", req.Action)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
