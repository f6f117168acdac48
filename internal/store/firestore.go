package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/SendSign/SendSign-sub000/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	envelopeCollection = "envelopes"
	signerCollection   = "signers"
	fieldCollection    = "fields"
	documentCollection = "documents"
	auditCollection    = "audit"
)

// FirestoreStore persists envelopes as one document per envelope with
// signers, fields, documents and audit events in subcollections. Keeping the
// whole envelope under one root document keeps every ceremony transaction
// rooted at the unit of contention.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) envRef(envelopeID string) *firestore.DocumentRef {
	return s.client.Collection(envelopeCollection).Doc(envelopeID)
}

func (s *FirestoreStore) CreateEnvelope(ctx context.Context, env *models.Envelope, signers []*models.Signer, fields []*models.Field, docs []*models.Document) (string, error) {
	envRef := s.client.Collection(envelopeCollection).NewDoc()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(envRef, env); err != nil {
			return err
		}
		// Caller-assigned IDs are kept so that fields created alongside
		// their signers can already reference them.
		for _, sg := range signers {
			ref := childRef(envRef, signerCollection, sg.ID)
			sg.ID = ref.ID
			sg.EnvelopeID = envRef.ID
			if err := tx.Create(ref, sg); err != nil {
				return err
			}
		}
		for _, f := range fields {
			ref := childRef(envRef, fieldCollection, f.ID)
			f.ID = ref.ID
			f.EnvelopeID = envRef.ID
			if err := tx.Create(ref, f); err != nil {
				return err
			}
		}
		for _, d := range docs {
			ref := childRef(envRef, documentCollection, d.ID)
			d.ID = ref.ID
			d.EnvelopeID = envRef.ID
			if err := tx.Create(ref, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create envelope: %w", err)
	}
	env.ID = envRef.ID
	return envRef.ID, nil
}

func (s *FirestoreStore) Envelope(ctx context.Context, envelopeID string) (*models.Envelope, error) {
	snap, err := s.envRef(envelopeID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get envelope %s: %w", envelopeID, err)
	}
	return envelopeFromSnap(snap)
}

func (s *FirestoreStore) Signers(ctx context.Context, envelopeID string) ([]*models.Signer, error) {
	it := s.envRef(envelopeID).Collection(signerCollection).OrderBy("order", firestore.Asc).Documents(ctx)
	return collectSigners(it, envelopeID)
}

func (s *FirestoreStore) Fields(ctx context.Context, envelopeID string) ([]*models.Field, error) {
	it := s.envRef(envelopeID).Collection(fieldCollection).Documents(ctx)
	return collectFields(it, envelopeID)
}

func (s *FirestoreStore) Documents(ctx context.Context, envelopeID string) ([]*models.Document, error) {
	it := s.envRef(envelopeID).Collection(documentCollection).OrderBy("pageOrder", firestore.Asc).Documents(ctx)
	var out []*models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		var d models.Document
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		d.ID = snap.Ref.ID
		d.EnvelopeID = envelopeID
		out = append(out, &d)
	}
	return out, nil
}

func (s *FirestoreStore) AuditTrail(ctx context.Context, envelopeID string) ([]*models.AuditEvent, error) {
	it := s.envRef(envelopeID).Collection(auditCollection).OrderBy("seq", firestore.Asc).Documents(ctx)
	var out []*models.AuditEvent
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list audit events: %w", err)
		}
		var ev models.AuditEvent
		if err := snap.DataTo(&ev); err != nil {
			return nil, fmt.Errorf("failed to decode audit event %s: %w", snap.Ref.ID, err)
		}
		ev.ID = snap.Ref.ID
		ev.EnvelopeID = envelopeID
		out = append(out, &ev)
	}
	return out, nil
}

func (s *FirestoreStore) SignerByToken(ctx context.Context, token string) (*models.Signer, *models.Envelope, error) {
	it := s.client.CollectionGroup(signerCollection).Where("signingToken", "==", token).Limit(1).Documents(ctx)
	snap, err := it.Next()
	if err == iterator.Done {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query token: %w", err)
	}
	envRef := snap.Ref.Parent.Parent
	if envRef == nil {
		return nil, nil, fmt.Errorf("signer %s has no parent envelope", snap.Ref.ID)
	}
	var sg models.Signer
	if err := snap.DataTo(&sg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode signer %s: %w", snap.Ref.ID, err)
	}
	sg.ID = snap.Ref.ID
	sg.EnvelopeID = envRef.ID

	envSnap, err := envRef.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get envelope %s: %w", envRef.ID, err)
	}
	env, err := envelopeFromSnap(envSnap)
	if err != nil {
		return nil, nil, err
	}
	return &sg, env, nil
}

func (s *FirestoreStore) EnvelopesByStatus(ctx context.Context, statuses []models.EnvelopeStatus, createdBefore time.Time) ([]*models.Envelope, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	q := s.client.Collection(envelopeCollection).Where("status", "in", vals)
	if !createdBefore.IsZero() {
		q = q.Where("createdAt", "<", createdBefore)
	}
	it := q.Documents(ctx)
	var out []*models.Envelope
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list envelopes: %w", err)
		}
		env, err := envelopeFromSnap(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *FirestoreStore) RunEnvelopeTxn(ctx context.Context, envelopeID string, fn func(tx EnvelopeTxn) error) error {
	envRef := s.envRef(envelopeID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(&firestoreTxn{tx: tx, envRef: envRef})
	})
}

// firestoreTxn adapts one *firestore.Transaction to the EnvelopeTxn
// interface. It caches the envelope read so that AppendAudit can assign
// sequence numbers from the envelope's auditSeq counter.
type firestoreTxn struct {
	tx     *firestore.Transaction
	envRef *firestore.DocumentRef
	env    *models.Envelope
}

func (t *firestoreTxn) Envelope() (*models.Envelope, error) {
	if t.env != nil {
		return t.env, nil
	}
	snap, err := t.tx.Get(t.envRef)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get envelope %s: %w", t.envRef.ID, err)
	}
	env, err := envelopeFromSnap(snap)
	if err != nil {
		return nil, err
	}
	t.env = env
	return env, nil
}

func (t *firestoreTxn) Signers() ([]*models.Signer, error) {
	it := t.tx.Documents(t.envRef.Collection(signerCollection).OrderBy("order", firestore.Asc))
	return collectSigners(it, t.envRef.ID)
}

func (t *firestoreTxn) Fields() ([]*models.Field, error) {
	it := t.tx.Documents(t.envRef.Collection(fieldCollection))
	return collectFields(it, t.envRef.ID)
}

func (t *firestoreTxn) PutEnvelope(e *models.Envelope) error {
	return t.tx.Set(t.envRef, e)
}

func (t *firestoreTxn) PutSigner(s *models.Signer) error {
	if s.ID == "" {
		return fmt.Errorf("signer has no ID")
	}
	return t.tx.Set(t.envRef.Collection(signerCollection).Doc(s.ID), s)
}

func (t *firestoreTxn) CreateSigner(s *models.Signer) (string, error) {
	ref := t.envRef.Collection(signerCollection).NewDoc()
	s.ID = ref.ID
	s.EnvelopeID = t.envRef.ID
	if err := t.tx.Create(ref, s); err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (t *firestoreTxn) PutField(f *models.Field) error {
	if f.ID == "" {
		return fmt.Errorf("field has no ID")
	}
	return t.tx.Set(t.envRef.Collection(fieldCollection).Doc(f.ID), f)
}

func (t *firestoreTxn) AppendAudit(ev *models.AuditEvent) error {
	env, err := t.Envelope()
	if err != nil {
		return fmt.Errorf("failed to read envelope for audit seq: %w", err)
	}
	env.AuditSeq++
	ev.Seq = env.AuditSeq
	ev.EnvelopeID = t.envRef.ID
	ref := t.envRef.Collection(auditCollection).Doc(ev.ID)
	if err := t.tx.Create(ref, ev); err != nil {
		return err
	}
	// Persist the bumped counter even when the caller does not rewrite the
	// envelope document itself.
	return t.tx.Update(t.envRef, []firestore.Update{{Path: "auditSeq", Value: env.AuditSeq}})
}

func childRef(envRef *firestore.DocumentRef, collection, id string) *firestore.DocumentRef {
	if id == "" {
		return envRef.Collection(collection).NewDoc()
	}
	return envRef.Collection(collection).Doc(id)
}

func envelopeFromSnap(snap *firestore.DocumentSnapshot) (*models.Envelope, error) {
	var env models.Envelope
	if err := snap.DataTo(&env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope %s: %w", snap.Ref.ID, err)
	}
	env.ID = snap.Ref.ID
	return &env, nil
}

func collectSigners(it *firestore.DocumentIterator, envelopeID string) ([]*models.Signer, error) {
	var out []*models.Signer
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list signers: %w", err)
		}
		var sg models.Signer
		if err := snap.DataTo(&sg); err != nil {
			return nil, fmt.Errorf("failed to decode signer %s: %w", snap.Ref.ID, err)
		}
		sg.ID = snap.Ref.ID
		sg.EnvelopeID = envelopeID
		out = append(out, &sg)
	}
	return out, nil
}

func collectFields(it *firestore.DocumentIterator, envelopeID string) ([]*models.Field, error) {
	var out []*models.Field
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list fields: %w", err)
		}
		var f models.Field
		if err := snap.DataTo(&f); err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", snap.Ref.ID, err)
		}
		f.ID = snap.Ref.ID
		f.EnvelopeID = envelopeID
		out = append(out, &f)
	}
	return out, nil
}
