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

	functions.HTTP("HandleEnvelopeAdmin", handleEnvelopeAdmin)
}

func main() {}

// handleEnvelopeAdmin is the HTTP handler for the sender-side operations:
// send, void, remind, correct, transfer.
func handleEnvelopeAdmin(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		ceremonyInstance, initErr = gcp.NewCeremonyFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Ceremony initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.EnvelopeID == "" {
		http.Error(w, "Bad Request: envelopeId is required", http.StatusBadRequest)
		return
	}

	actor := services.ActorContext{
		Name:      req.ActorName,
		Email:     req.ActorEmail,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}

	ctx := r.Context()
	var err error
	switch req.Action {
	case "send":
		err = ceremonyInstance.Send(ctx, req.EnvelopeID, actor)
	case "void":
		err = ceremonyInstance.Void(ctx, req.EnvelopeID, req.Reason, actor)
	case "remind":
		err = ceremonyInstance.Remind(ctx, req.EnvelopeID, req.SignerID, actor)
	case "correct":
		err = ceremonyInstance.Correct(ctx, req.EnvelopeID, services.Correction{
			Subject:      req.Subject,
			Message:      req.Message,
			SignerNames:  req.SignerNames,
			SignerEmails: req.SignerEmails,
		}, actor)
	case "transfer":
		err = ceremonyInstance.Transfer(ctx, req.EnvelopeID, req.ToOrgID, actor)
	default:
		http.Error(w, "Bad Request: unknown action", http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Warn("Admin action rejected.", "action", req.Action, "envelopeId", req.EnvelopeID, "error", err)
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	res := models.ManageResponse{Status: "success"}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "envelopeId", req.EnvelopeID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
