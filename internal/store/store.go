// Package store is the persistence boundary of the ceremony engine. The
// production implementation is Firestore; an in-memory implementation backs
// the service tests. RunEnvelopeTxn is the per-envelope serialization
// boundary every ceremony mutation runs under.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

// ErrNotFound is returned when an envelope, signer, or token lookup misses.
var ErrNotFound = errors.New("not found")

// EnvelopeTxn exposes the rows of one envelope inside a transaction.
//
// The Firestore implementation requires all reads to happen before the first
// write, so ceremony code must load everything it needs up front. PutEnvelope
// must be given the struct returned by Envelope(): AppendAudit bumps the
// audit sequence counter on that shared struct.
type EnvelopeTxn interface {
	Envelope() (*models.Envelope, error)
	Signers() ([]*models.Signer, error)
	Fields() ([]*models.Field, error)

	PutEnvelope(e *models.Envelope) error
	PutSigner(s *models.Signer) error
	CreateSigner(s *models.Signer) (string, error)
	PutField(f *models.Field) error
	AppendAudit(ev *models.AuditEvent) error
}

// Store is the durable-store interface of the ceremony engine.
type Store interface {
	// CreateEnvelope persists a new draft envelope with its signers, fields
	// and documents and returns the envelope ID. Caller-assigned signer,
	// field and document IDs are kept; blank IDs are generated.
	CreateEnvelope(ctx context.Context, env *models.Envelope, signers []*models.Signer, fields []*models.Field, docs []*models.Document) (string, error)

	Envelope(ctx context.Context, envelopeID string) (*models.Envelope, error)
	Signers(ctx context.Context, envelopeID string) ([]*models.Signer, error)
	Fields(ctx context.Context, envelopeID string) ([]*models.Field, error)
	Documents(ctx context.Context, envelopeID string) ([]*models.Document, error)

	// AuditTrail returns the envelope's events in creation (seq) order.
	AuditTrail(ctx context.Context, envelopeID string) ([]*models.AuditEvent, error)

	// SignerByToken resolves a live or dead signing token to its signer and
	// envelope. Returns ErrNotFound when no signer carries the token.
	SignerByToken(ctx context.Context, token string) (*models.Signer, *models.Envelope, error)

	// EnvelopesByStatus lists envelopes in any of the given states, for the
	// background sweep. CreatedBefore, when non-zero, bounds the scan.
	EnvelopesByStatus(ctx context.Context, statuses []models.EnvelopeStatus, createdBefore time.Time) ([]*models.Envelope, error)

	// RunEnvelopeTxn executes fn atomically against one envelope's rows.
	// Writes are applied only if fn returns nil.
	RunEnvelopeTxn(ctx context.Context, envelopeID string, fn func(tx EnvelopeTxn) error) error
}
