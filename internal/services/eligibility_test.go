package services

import (
	"testing"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

func TestCanSign(t *testing.T) {
	sequential := &models.Envelope{SigningOrder: models.OrderSequential}
	parallel := &models.Envelope{SigningOrder: models.OrderParallel}

	tests := []struct {
		name   string
		env    *models.Envelope
		signer *models.Signer
		peers  []*models.Signer
		want   bool
	}{
		{
			name:   "first in sequence",
			env:    sequential,
			signer: &models.Signer{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerPending},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			},
			want: true,
		},
		{
			name:   "second blocked by first",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerPending},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			},
			want: false,
		},
		{
			name:   "second unblocked once first completed",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerNotified},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerNotified},
			},
			want: true,
		},
		{
			name:   "declined predecessor is skipped",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerDeclined},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			},
			want: true,
		},
		{
			name:   "delegated predecessor is skipped but its delegate blocks",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerDelegated},
				{ID: "a2", Role: models.RoleSigner, Order: 1, Status: models.SignerPending, DelegatedFrom: "a"},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			},
			want: false,
		},
		{
			name:   "cc role never blocks",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleCC, Order: 1, Status: models.SignerPending},
				{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
			},
			want: true,
		},
		{
			name:   "group members are mutually eligible",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 3, SigningGroup: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted},
				{ID: "b", Role: models.RoleSigner, Order: 3, SigningGroup: 2, Status: models.SignerPending},
				{ID: "c", Role: models.RoleSigner, Order: 2, SigningGroup: 2, Status: models.SignerPending},
			},
			want: true,
		},
		{
			name:   "group waits on earlier ranks",
			env:    sequential,
			signer: &models.Signer{ID: "b", Role: models.RoleSigner, Order: 3, SigningGroup: 2, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerPending},
				{ID: "b", Role: models.RoleSigner, Order: 3, SigningGroup: 2, Status: models.SignerPending},
			},
			want: false,
		},
		{
			name:   "parallel ignores order",
			env:    parallel,
			signer: &models.Signer{ID: "z", Role: models.RoleSigner, Order: 9, Status: models.SignerPending},
			peers: []*models.Signer{
				{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerPending},
				{ID: "z", Role: models.RoleSigner, Order: 9, Status: models.SignerPending},
			},
			want: true,
		},
		{
			name:   "completed signer is never eligible",
			env:    parallel,
			signer: &models.Signer{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted},
			peers:  []*models.Signer{{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted}},
			want:   false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanSign(tc.signer, tc.env, tc.peers); got != tc.want {
				t.Errorf("CanSign = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBlockingSigners(t *testing.T) {
	me := &models.Signer{ID: "d", Role: models.RoleSigner, Order: 4, Status: models.SignerPending}
	peers := []*models.Signer{
		{ID: "a", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted},
		{ID: "b", Role: models.RoleSigner, Order: 2, Status: models.SignerPending},
		{ID: "c", Role: models.RoleApprover, Order: 3, Status: models.SignerPending},
		me,
		{ID: "e", Role: models.RoleSigner, Order: 5, Status: models.SignerPending},
	}

	blocking := BlockingSigners(me, peers)
	if len(blocking) != 1 || blocking[0].ID != "b" {
		ids := make([]string, len(blocking))
		for i, sg := range blocking {
			ids[i] = sg.ID
		}
		t.Errorf("blocking = %v, want [b]", ids)
	}
}
