package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

func seedEnvelope(t *testing.T) (*MemoryStore, string) {
	t.Helper()
	st := NewMemoryStore()
	env := &models.Envelope{Subject: "NDA", Status: models.EnvelopeSent, CreatedAt: time.Now()}
	signers := []*models.Signer{
		{ID: "s1", Name: "Ada", Email: "ada@example.com", Role: models.RoleSigner, Order: 1, Status: models.SignerPending, SigningToken: "tok-1", TokenExpiresAt: time.Now().Add(time.Hour)},
	}
	fields := []*models.Field{
		{ID: "f1", SignerID: "s1", Type: models.FieldSignature, Page: 1, X: 10, Y: 80, Width: 20, Height: 5},
	}
	id, err := st.CreateEnvelope(context.Background(), env, signers, fields, nil)
	if err != nil {
		t.Fatalf("CreateEnvelope: %v", err)
	}
	return st, id
}

func TestCreateEnvelopeKeepsCallerIDs(t *testing.T) {
	st, id := seedEnvelope(t)
	signers, err := st.Signers(context.Background(), id)
	if err != nil {
		t.Fatalf("Signers: %v", err)
	}
	if len(signers) != 1 || signers[0].ID != "s1" {
		t.Fatalf("signers = %v", signers)
	}
	fields, _ := st.Fields(context.Background(), id)
	if len(fields) != 1 || fields[0].SignerID != "s1" {
		t.Fatalf("field linkage lost: %+v", fields)
	}
}

func TestTxnRollsBackOnError(t *testing.T) {
	st, id := seedEnvelope(t)

	boom := errors.New("boom")
	err := st.RunEnvelopeTxn(context.Background(), id, func(tx EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		env.Status = models.EnvelopeVoided
		if err := tx.PutEnvelope(env); err != nil {
			return err
		}
		if err := tx.AppendAudit(&models.AuditEvent{ID: "ev-1", EventType: models.EventVoided}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	env, _ := st.Envelope(context.Background(), id)
	if env.Status != models.EnvelopeSent {
		t.Errorf("status = %s after rollback, want sent", env.Status)
	}
	if events, _ := st.AuditTrail(context.Background(), id); len(events) != 0 {
		t.Errorf("audit trail has %d events after rollback", len(events))
	}
}

func TestAppendAuditAssignsSequence(t *testing.T) {
	st, id := seedEnvelope(t)

	// Two separate transactions, neither writing the envelope document:
	// the counter must still advance durably.
	for i := 0; i < 2; i++ {
		err := st.RunEnvelopeTxn(context.Background(), id, func(tx EnvelopeTxn) error {
			return tx.AppendAudit(&models.AuditEvent{ID: "ev", EventType: models.EventViewed, SignerID: "s1"})
		})
		if err != nil {
			t.Fatalf("txn %d: %v", i, err)
		}
	}

	events, _ := st.AuditTrail(context.Background(), id)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Errorf("seqs = %d %d, want 1 2", events[0].Seq, events[1].Seq)
	}
	env, _ := st.Envelope(context.Background(), id)
	if env.AuditSeq != 2 {
		t.Errorf("auditSeq = %d, want 2", env.AuditSeq)
	}
}

func TestSignerByToken(t *testing.T) {
	st, id := seedEnvelope(t)

	sg, env, err := st.SignerByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("SignerByToken: %v", err)
	}
	if sg.ID != "s1" || env.ID != id {
		t.Errorf("resolved %s on %s", sg.ID, env.ID)
	}

	if _, _, err := st.SignerByToken(context.Background(), "tok-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token err = %v, want ErrNotFound", err)
	}
	if _, _, err := st.SignerByToken(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty token err = %v, want ErrNotFound", err)
	}
}

func TestEnvelopesByStatus(t *testing.T) {
	st := NewMemoryStore()
	mk := func(status models.EnvelopeStatus, age time.Duration) {
		_, err := st.CreateEnvelope(context.Background(), &models.Envelope{Status: status, CreatedAt: time.Now().Add(-age)}, nil, nil, nil)
		if err != nil {
			t.Fatalf("CreateEnvelope: %v", err)
		}
	}
	mk(models.EnvelopeSent, time.Hour)
	mk(models.EnvelopeInProgress, 2*time.Hour)
	mk(models.EnvelopeDraft, time.Hour)
	mk(models.EnvelopeSent, time.Minute)

	got, err := st.EnvelopesByStatus(context.Background(), []models.EnvelopeStatus{models.EnvelopeSent, models.EnvelopeInProgress}, time.Time{})
	if err != nil {
		t.Fatalf("EnvelopesByStatus: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d envelopes, want 3", len(got))
	}

	got, err = st.EnvelopesByStatus(context.Background(), []models.EnvelopeStatus{models.EnvelopeSent}, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("EnvelopesByStatus: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d old sent envelopes, want 1", len(got))
	}
}

func TestTxnIsolatesWritesUntilCommit(t *testing.T) {
	st, id := seedEnvelope(t)

	err := st.RunEnvelopeTxn(context.Background(), id, func(tx EnvelopeTxn) error {
		sg := &models.Signer{ID: "s1", Name: "Ada", Email: "ada@example.com", Role: models.RoleSigner, Order: 1, Status: models.SignerNotified}
		if err := tx.PutSigner(sg); err != nil {
			return err
		}
		newID, err := tx.CreateSigner(&models.Signer{Name: "Cam", Email: "cam@example.com", Role: models.RoleSigner, Order: 1, Status: models.SignerPending})
		if err != nil {
			return err
		}
		if newID == "" {
			t.Error("CreateSigner returned empty ID")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	signers, _ := st.Signers(context.Background(), id)
	if len(signers) != 2 {
		t.Fatalf("got %d signers, want 2", len(signers))
	}
	for _, sg := range signers {
		if sg.ID == "s1" && sg.Status != models.SignerNotified {
			t.Errorf("s1 status = %s, want notified", sg.Status)
		}
	}
}
