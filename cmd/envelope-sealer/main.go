package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/SendSign/SendSign-sub000/internal/gcp"
	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	sealerInstance *services.SealingPipeline
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The sealing workflow routes its
	// event here after the last required signer completes.
	functions.CloudEvent("SealEnvelope", sealEnvelope)
}

// main is required by the Go Functions Framework.
func main() {}

// sealEnvelope is the Cloud Function entry point for the sealing pipeline.
func sealEnvelope(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		sealerInstance, initErr = gcp.NewSealerFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var req models.SealRequest
	if err := json.Unmarshal(e.Data(), &req); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	if req.EnvelopeID == "" {
		slog.Error("Seal event carries no envelope ID", "data", string(e.Data()))
		return fmt.Errorf("seal event carries no envelope ID")
	}

	// A SealingFailure return marks the invocation failed; the envelope
	// keeps its in_progress status and the sweep retries the seal.
	return sealerInstance.Seal(ctx, req.EnvelopeID)
}
