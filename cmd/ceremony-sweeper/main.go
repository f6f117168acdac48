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
	sweeperInstance *services.Sweeper
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Invoked by Cloud Scheduler.
	functions.HTTP("HandleCeremonySweep", handleCeremonySweep)
}

func main() {}

// handleCeremonySweep runs one pass of the background policies: envelope
// expiry and seal retry.
func handleCeremonySweep(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		sweeperInstance, initErr = gcp.NewSweeperFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Sweeper initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	expired, rescheduled, err := sweeperInstance.Sweep(r.Context())
	if err != nil {
		slog.Error("Sweep pass failed", "error", err)
		http.Error(w, "Internal Server Error: sweep failed", http.StatusInternalServerError)
		return
	}

	res := models.SweepResponse{Status: "success", ExpiredEnvelopes: expired, RescheduledSeals: rescheduled}
	slog.Info("Sweep complete.", "expiredEnvelopes", expired, "rescheduledSeals", rescheduled)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
