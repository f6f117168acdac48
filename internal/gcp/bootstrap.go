package gcp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/services"
	"github.com/SendSign/SendSign-sub000/internal/store"
)

// Env-driven constructors for the function entrypoints. Each loads and
// validates its configuration, builds the GCP clients, and wires the
// ceremony components together.

func loadCommon(ctx context.Context) (store.Store, string, error) {
	projectID := GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, "", fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	return store.NewFirestoreStore(client), projectID, nil
}

func newScheduler(ctx context.Context, projectID string) (services.SealScheduler, error) {
	return NewWorkflowScheduler(ctx, projectID,
		GetEnv("WORKFLOW_LOCATION", "us-central1"),
		GetEnv("SEALING_WORKFLOW_ID", "envelope-sealing"))
}

func tokenTTL() time.Duration {
	hours, err := strconv.Atoi(GetEnv("TOKEN_TTL_HOURS", "72"))
	if err != nil || hours <= 0 {
		return services.DefaultTokenTTL
	}
	return time.Duration(hours) * time.Hour
}

// NewCeremonyFromEnv builds the state machine for the HTTP surfaces.
func NewCeremonyFromEnv(ctx context.Context) (*services.Ceremony, error) {
	st, projectID, err := loadCommon(ctx)
	if err != nil {
		return nil, err
	}
	scheduler, err := newScheduler(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cfg := services.CeremonyConfig{
		SigningBaseURL: GetEnv("SIGNING_BASE_URL", "https://sign.sendsign.example"),
		TokenTTL:       tokenTTL(),
	}
	return services.NewCeremony(st, services.LogNotifier{}, services.LogPublisher{}, scheduler, cfg), nil
}

// NewSealerFromEnv builds the sealing pipeline for the sealer function.
func NewSealerFromEnv(ctx context.Context) (*services.SealingPipeline, error) {
	st, _, err := loadCommon(ctx)
	if err != nil {
		return nil, err
	}
	bucket := GetEnv("DOCUMENTS_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("DOCUMENTS_BUCKET environment variable must be set")
	}
	blobs, err := NewBlobStore(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return services.NewSealingPipeline(st, blobs, services.LogPublisher{}), nil
}

// NewSweeperFromEnv builds the sweeper for the scheduled function.
func NewSweeperFromEnv(ctx context.Context) (*services.Sweeper, error) {
	st, projectID, err := loadCommon(ctx)
	if err != nil {
		return nil, err
	}
	scheduler, err := newScheduler(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return services.NewSweeper(st, scheduler), nil
}
