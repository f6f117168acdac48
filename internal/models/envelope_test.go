package models

import (
	"testing"
	"time"
)

func TestEnvelopePredicates(t *testing.T) {
	tests := []struct {
		status       EnvelopeStatus
		terminal     bool
		voidable     bool
		metadata     bool
		participants bool
	}{
		{EnvelopeDraft, false, true, true, true},
		{EnvelopeSent, false, true, false, true},
		{EnvelopeInProgress, false, true, false, false},
		{EnvelopeCompleted, true, false, false, false},
		{EnvelopeVoided, true, false, false, false},
		{EnvelopeExpired, true, false, false, false},
	}
	for _, tc := range tests {
		e := &Envelope{Status: tc.status}
		if e.Terminal() != tc.terminal {
			t.Errorf("%s: Terminal = %v", tc.status, e.Terminal())
		}
		if e.Voidable() != tc.voidable {
			t.Errorf("%s: Voidable = %v", tc.status, e.Voidable())
		}
		if e.MetadataMutable() != tc.metadata {
			t.Errorf("%s: MetadataMutable = %v", tc.status, e.MetadataMutable())
		}
		if e.ParticipantsMutable() != tc.participants {
			t.Errorf("%s: ParticipantsMutable = %v", tc.status, e.ParticipantsMutable())
		}
	}
}

func TestSignerRank(t *testing.T) {
	if got := (&Signer{Order: 3}).Rank(); got != 3 {
		t.Errorf("Rank = %d, want order 3", got)
	}
	// A signing group overrides the individual order.
	if got := (&Signer{Order: 7, SigningGroup: 2}).Rank(); got != 2 {
		t.Errorf("Rank = %d, want group 2", got)
	}
}

func TestSignerBlocks(t *testing.T) {
	tests := []struct {
		role   SignerRole
		status SignerStatus
		want   bool
	}{
		{RoleSigner, SignerPending, true},
		{RoleSigner, SignerNotified, true},
		{RoleSigner, SignerDraft, true},
		{RoleSigner, SignerCompleted, false},
		{RoleSigner, SignerDeclined, false},
		{RoleSigner, SignerDelegated, false},
		{RoleCC, SignerPending, false},
		{RoleApprover, SignerPending, false},
		{RoleWitness, SignerPending, false},
	}
	for _, tc := range tests {
		s := &Signer{Role: tc.role, Status: tc.status}
		if s.Blocks() != tc.want {
			t.Errorf("%s/%s: Blocks = %v, want %v", tc.role, tc.status, s.Blocks(), tc.want)
		}
	}
}

func TestTokenLive(t *testing.T) {
	now := time.Now()
	if (&Signer{}).TokenLive(now) {
		t.Error("empty token reported live")
	}
	if (&Signer{SigningToken: "tok", TokenExpiresAt: now.Add(-time.Second)}).TokenLive(now) {
		t.Error("expired token reported live")
	}
	if !(&Signer{SigningToken: "tok", TokenExpiresAt: now.Add(time.Hour)}).TokenLive(now) {
		t.Error("live token reported dead")
	}
}
