package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
	"github.com/google/uuid"
)

// ActorContext identifies who performed a ceremony action and from where.
type ActorContext struct {
	Name        string
	Email       string
	IPAddress   string
	UserAgent   string
	Geolocation string
}

// Recorder appends immutable rows to an envelope's audit trail. Rows are
// never updated or deleted: the completion certificate narrates them in
// creation order, so history must not be rewritten.
type Recorder struct {
	store store.Store
	now   func() time.Time
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st, now: time.Now}
}

// Record appends one event inside the caller's transaction. Exactly one
// event per accepted ceremony action; rejected actions record nothing.
func (r *Recorder) Record(tx store.EnvelopeTxn, signerID string, data models.EventData, actor ActorContext) error {
	payload, err := models.EncodeEventData(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event data: %w", data.EventType(), err)
	}
	ev := &models.AuditEvent{
		ID:          uuid.NewString(),
		SignerID:    signerID,
		EventType:   data.EventType(),
		EventData:   payload,
		ActorName:   actor.Name,
		ActorEmail:  actor.Email,
		IPAddress:   actor.IPAddress,
		Geolocation: actor.Geolocation,
		CreatedAt:   r.now(),
	}
	if err := tx.AppendAudit(ev); err != nil {
		return fmt.Errorf("failed to append %s audit event: %w", data.EventType(), err)
	}
	return nil
}

// Trail returns the envelope's events in creation order.
func (r *Recorder) Trail(ctx context.Context, envelopeID string) ([]*models.AuditEvent, error) {
	return r.store.AuditTrail(ctx, envelopeID)
}
