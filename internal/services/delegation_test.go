package services

import (
	"context"
	"errors"
	"testing"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

func TestDelegateHandsOffCeremony(t *testing.T) {
	c, st, sched := newTestCeremony(t)
	id := twoSignerEnvelope(t, c, models.OrderSequential)
	mustSend(t, c, id)
	tok1 := tokenFor(t, st, id, "s1")

	// Viewing first is allowed: delegation is open until the signer signs.
	if err := c.View(context.Background(), tok1, ActorContext{}); err != nil {
		t.Fatalf("View: %v", err)
	}

	delegateID, err := c.Delegate(context.Background(), tok1, "Cam Okafor", "cam@example.com", ActorContext{})
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}

	original := signerByID(t, st, id, "s1")
	if original.Status != models.SignerDelegated {
		t.Errorf("original status = %s, want delegated", original.Status)
	}
	if original.SigningToken != "" {
		t.Error("original still holds a token")
	}

	delegate := signerByID(t, st, id, delegateID)
	if delegate.Status != models.SignerPending || delegate.Order != 1 || delegate.Role != models.RoleSigner {
		t.Errorf("delegate = %s order %d role %s", delegate.Status, delegate.Order, delegate.Role)
	}
	if delegate.DelegatedFrom != "s1" {
		t.Errorf("delegatedFrom = %s, want s1", delegate.DelegatedFrom)
	}
	if delegate.SigningToken == "" {
		t.Error("delegate holds no token")
	}

	// Every field the original owned now belongs to the delegate.
	fields, _ := st.Fields(context.Background(), id)
	for _, f := range fields {
		if f.SignerID == "s1" {
			t.Errorf("field %s still assigned to the original signer", f.ID)
		}
	}

	events := trail(t, st, id)
	last := events[len(events)-1]
	if last.EventType != models.EventDelegated {
		t.Fatalf("last event = %s, want delegated", last.EventType)
	}
	if last.EventData["fromEmail"] != "ada@example.com" || last.EventData["toEmail"] != "cam@example.com" {
		t.Errorf("delegated identities = %v", last.EventData)
	}

	// The original token died with the handoff.
	_, reErr := c.Delegate(context.Background(), tok1, "Dee", "dee@example.com", ActorContext{})
	var invalidToken *InvalidToken
	if !errors.As(reErr, &invalidToken) {
		t.Fatalf("expected InvalidToken for dead original token, got %v", reErr)
	}

	// The delegate inherits the original's place in the order: s2 stays
	// blocked until the delegate signs, then the ceremony finishes normally.
	err = c.RecordSignature(context.Background(), tokenFor(t, st, id, "s2"), nil, map[string]string{"f2": "sig-keys/bo.png"}, ActorContext{})
	var notYourTurn *NotYourTurn
	if !errors.As(err, &notYourTurn) {
		t.Fatalf("expected NotYourTurn while delegate outstanding, got %v", err)
	}

	if err := c.RecordSignature(context.Background(), delegate.SigningToken, nil, map[string]string{"f1": "sig-keys/cam.png"}, ActorContext{}); err != nil {
		t.Fatalf("delegate RecordSignature: %v", err)
	}
	if err := c.RecordSignature(context.Background(), tokenFor(t, st, id, "s2"), nil, map[string]string{"f2": "sig-keys/bo.png"}, ActorContext{}); err != nil {
		t.Fatalf("second RecordSignature: %v", err)
	}

	env, _ := st.Envelope(context.Background(), id)
	if env.SealState != models.SealScheduled {
		t.Errorf("sealState = %s, want scheduled", env.SealState)
	}
	if len(sched.calls) != 1 {
		t.Errorf("scheduler calls = %v, want one", sched.calls)
	}
}

func TestDelegateRequiresDeliverableEnvelope(t *testing.T) {
	c, st, _ := newTestCeremony(t)
	id := twoSignerEnvelope(t, c, models.OrderSequential)
	mustSend(t, c, id)
	tok1 := tokenFor(t, st, id, "s1")

	if err := c.Void(context.Background(), id, "cancelled", testActor()); err != nil {
		t.Fatalf("Void: %v", err)
	}

	_, err := c.Delegate(context.Background(), tok1, "Cam Okafor", "cam@example.com", ActorContext{})
	var invalidToken *InvalidToken
	if !errors.As(err, &invalidToken) {
		t.Fatalf("expected InvalidToken after void revoked the token, got %v", err)
	}
}
