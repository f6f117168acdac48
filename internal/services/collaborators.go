package services

import (
	"context"
	"log/slog"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

// Collaborator boundaries. The ceremony engine treats storage, notification
// delivery, webhook fan-out and the sealing hand-off as external systems
// behind these interfaces.

// BlobMeta describes a blob being written.
type BlobMeta struct {
	ContentType string
	Filename    string
}

// Storage is the opaque byte-blob store. Documents, sealed artifacts and
// completion certificates are all keyed strings to the ceremony.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, meta BlobMeta) error
	// PutIfAbsent writes only when the key does not exist yet. An existing
	// object is not an error: sealing is idempotent by construction.
	PutIfAbsent(ctx context.Context, key string, data []byte, meta BlobMeta) error
}

// Notifier delivers signing invitations and comment notifications.
// Fire-and-forget: delivery failures are logged and never block the ceremony.
type Notifier interface {
	NotifySigner(ctx context.Context, signer *models.Signer, env *models.Envelope, signingURL string) error
	NotifyComment(ctx context.Context, signer *models.Signer, env *models.Envelope, comment string) error
}

// SemanticEvent is an integration event emitted for external webhook fan-out.
type SemanticEvent struct {
	Type       string `json:"type"` // e.g. signer.completed, envelope.completed
	EnvelopeID string `json:"envelopeId"`
	SignerID   string `json:"signerId,omitempty"`
	OrgID      string `json:"orgId,omitempty"`
}

// EventPublisher fans semantic events out to configured subscribers. The
// ceremony does not know who is subscribed.
type EventPublisher interface {
	Publish(ctx context.Context, ev SemanticEvent) error
}

// SealScheduler hands a completed envelope off to the asynchronous sealing
// pipeline. The production implementation creates a Cloud Workflows
// execution; tests use an inline implementation.
type SealScheduler interface {
	Schedule(ctx context.Context, envelopeID string) error
}

// LogNotifier is the default Notifier: it records the would-be delivery and
// succeeds. Real delivery lives outside the core.
type LogNotifier struct{}

func (LogNotifier) NotifySigner(ctx context.Context, signer *models.Signer, env *models.Envelope, signingURL string) error {
	slog.Info("Signer notification dispatched.", "envelopeId", env.ID, "signerId", signer.ID, "email", signer.Email, "signingUrl", signingURL)
	return nil
}

func (LogNotifier) NotifyComment(ctx context.Context, signer *models.Signer, env *models.Envelope, comment string) error {
	slog.Info("Comment notification dispatched.", "envelopeId", env.ID, "signerId", signer.ID)
	return nil
}

// LogPublisher is the default EventPublisher: it logs the semantic event and
// succeeds.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, ev SemanticEvent) error {
	slog.Info("Semantic event published.", "type", ev.Type, "envelopeId", ev.EnvelopeID, "signerId", ev.SignerID)
	return nil
}
