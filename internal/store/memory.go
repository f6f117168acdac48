package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
// A single mutex stands in for Firestore's transactional isolation: every
// RunEnvelopeTxn runs fully serialized, which is strictly stronger than the
// per-envelope boundary the ceremony requires.
type MemoryStore struct {
	mu        sync.Mutex
	envelopes map[string]*models.Envelope
	signers   map[string][]*models.Signer
	fields    map[string][]*models.Field
	documents map[string][]*models.Document
	audit     map[string][]*models.AuditEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		envelopes: map[string]*models.Envelope{},
		signers:   map[string][]*models.Signer{},
		fields:    map[string][]*models.Field{},
		documents: map[string][]*models.Document{},
		audit:     map[string][]*models.AuditEvent{},
	}
}

func (s *MemoryStore) CreateEnvelope(ctx context.Context, env *models.Envelope, signers []*models.Signer, fields []*models.Field, docs []*models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	env.ID = id
	s.envelopes[id] = cloneEnvelope(env)
	for _, sg := range signers {
		if sg.ID == "" {
			sg.ID = uuid.NewString()
		}
		sg.EnvelopeID = id
		s.signers[id] = append(s.signers[id], cloneSigner(sg))
	}
	for _, f := range fields {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.EnvelopeID = id
		s.fields[id] = append(s.fields[id], cloneField(f))
	}
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.EnvelopeID = id
		dc := *d
		s.documents[id] = append(s.documents[id], &dc)
	}
	return id, nil
}

func (s *MemoryStore) Envelope(ctx context.Context, envelopeID string) (*models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.envelopes[envelopeID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (s *MemoryStore) Signers(ctx context.Context, envelopeID string) ([]*models.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signersLocked(envelopeID), nil
}

func (s *MemoryStore) Fields(ctx context.Context, envelopeID string) ([]*models.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fieldsLocked(envelopeID), nil
}

func (s *MemoryStore) Documents(ctx context.Context, envelopeID string) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, d := range s.documents[envelopeID] {
		dc := *d
		out = append(out, &dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageOrder < out[j].PageOrder })
	return out, nil
}

func (s *MemoryStore) AuditTrail(ctx context.Context, envelopeID string) ([]*models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditEvent
	for _, ev := range s.audit[envelopeID] {
		evc := *ev
		out = append(out, &evc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) SignerByToken(ctx context.Context, token string) (*models.Signer, *models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, nil, ErrNotFound
	}
	for envID, signers := range s.signers {
		for _, sg := range signers {
			if sg.SigningToken == token {
				return cloneSigner(sg), cloneEnvelope(s.envelopes[envID]), nil
			}
		}
	}
	return nil, nil, ErrNotFound
}

func (s *MemoryStore) EnvelopesByStatus(ctx context.Context, statuses []models.EnvelopeStatus, createdBefore time.Time) ([]*models.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Envelope
	for _, env := range s.envelopes {
		for _, st := range statuses {
			if env.Status == st && (createdBefore.IsZero() || env.CreatedAt.Before(createdBefore)) {
				out = append(out, cloneEnvelope(env))
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) RunEnvelopeTxn(ctx context.Context, envelopeID string, fn func(tx EnvelopeTxn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envelopes[envelopeID]; !ok {
		return ErrNotFound
	}
	tx := &memoryTxn{store: s, envelopeID: envelopeID}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTxn buffers writes and applies them only when fn succeeds, matching
// the all-or-nothing semantics of the Firestore transaction.
type memoryTxn struct {
	store      *MemoryStore
	envelopeID string
	env        *models.Envelope

	putEnvelope *models.Envelope
	putSigners  []*models.Signer
	newSigners  []*models.Signer
	putFields   []*models.Field
	newAudit    []*models.AuditEvent
}

func (t *memoryTxn) Envelope() (*models.Envelope, error) {
	if t.env != nil {
		return t.env, nil
	}
	env, ok := t.store.envelopes[t.envelopeID]
	if !ok {
		return nil, ErrNotFound
	}
	t.env = cloneEnvelope(env)
	return t.env, nil
}

func (t *memoryTxn) Signers() ([]*models.Signer, error) {
	return t.store.signersLocked(t.envelopeID), nil
}

func (t *memoryTxn) Fields() ([]*models.Field, error) {
	return t.store.fieldsLocked(t.envelopeID), nil
}

func (t *memoryTxn) PutEnvelope(e *models.Envelope) error {
	t.putEnvelope = e
	return nil
}

func (t *memoryTxn) PutSigner(s *models.Signer) error {
	if s.ID == "" {
		return fmt.Errorf("signer has no ID")
	}
	t.putSigners = append(t.putSigners, s)
	return nil
}

func (t *memoryTxn) CreateSigner(s *models.Signer) (string, error) {
	s.ID = uuid.NewString()
	s.EnvelopeID = t.envelopeID
	t.newSigners = append(t.newSigners, s)
	return s.ID, nil
}

func (t *memoryTxn) PutField(f *models.Field) error {
	if f.ID == "" {
		return fmt.Errorf("field has no ID")
	}
	t.putFields = append(t.putFields, f)
	return nil
}

func (t *memoryTxn) AppendAudit(ev *models.AuditEvent) error {
	env, err := t.Envelope()
	if err != nil {
		return err
	}
	env.AuditSeq++
	ev.Seq = env.AuditSeq
	ev.EnvelopeID = t.envelopeID
	t.newAudit = append(t.newAudit, ev)
	return nil
}

func (t *memoryTxn) commit() {
	if t.putEnvelope != nil {
		t.store.envelopes[t.envelopeID] = cloneEnvelope(t.putEnvelope)
	} else if t.env != nil && len(t.newAudit) > 0 {
		// Counter bump must survive even without an explicit envelope write.
		t.store.envelopes[t.envelopeID].AuditSeq = t.env.AuditSeq
	}
	for _, sg := range t.putSigners {
		replaced := false
		for i, existing := range t.store.signers[t.envelopeID] {
			if existing.ID == sg.ID {
				t.store.signers[t.envelopeID][i] = cloneSigner(sg)
				replaced = true
				break
			}
		}
		if !replaced {
			t.store.signers[t.envelopeID] = append(t.store.signers[t.envelopeID], cloneSigner(sg))
		}
	}
	for _, sg := range t.newSigners {
		t.store.signers[t.envelopeID] = append(t.store.signers[t.envelopeID], cloneSigner(sg))
	}
	for _, f := range t.putFields {
		for i, existing := range t.store.fields[t.envelopeID] {
			if existing.ID == f.ID {
				t.store.fields[t.envelopeID][i] = cloneField(f)
				break
			}
		}
	}
	for _, ev := range t.newAudit {
		evc := *ev
		t.store.audit[t.envelopeID] = append(t.store.audit[t.envelopeID], &evc)
	}
}

func (s *MemoryStore) signersLocked(envelopeID string) []*models.Signer {
	var out []*models.Signer
	for _, sg := range s.signers[envelopeID] {
		out = append(out, cloneSigner(sg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *MemoryStore) fieldsLocked(envelopeID string) []*models.Field {
	var out []*models.Field
	for _, f := range s.fields[envelopeID] {
		out = append(out, cloneField(f))
	}
	return out
}

func cloneEnvelope(e *models.Envelope) *models.Envelope {
	c := *e
	return &c
}

func cloneSigner(s *models.Signer) *models.Signer {
	c := *s
	return &c
}

func cloneField(f *models.Field) *models.Field {
	c := *f
	return &c
}
