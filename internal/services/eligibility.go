package services

import "github.com/SendSign/SendSign-sub000/internal/models"

// Signing eligibility is a pure computation over the envelope's signer set:
// no I/O, no side effects. The state machine calls it inside the same
// transaction that reads the signers, so the answer is consistent with the
// rows being mutated.

// CanSign reports whether the signer may sign right now.
//
// Parallel envelopes: any actionable signer is eligible immediately.
// Sequential envelopes: every role=signer peer with a strictly lower rank
// must already be completed; peers that declined or were delegated are
// skipped, and non-signer roles never block. Signers sharing a signing group
// hold the same rank and are mutually eligible.
func CanSign(signer *models.Signer, env *models.Envelope, peers []*models.Signer) bool {
	if !signer.Actionable() {
		return false
	}
	if env.SigningOrder == models.OrderParallel {
		return true
	}
	return len(BlockingSigners(signer, peers)) == 0
}

// BlockingSigners returns the peers that currently hold up a sequential
// signer, in envelope order. Empty for an eligible signer.
func BlockingSigners(signer *models.Signer, peers []*models.Signer) []*models.Signer {
	var blocking []*models.Signer
	for _, peer := range peers {
		if peer.ID == signer.ID {
			continue
		}
		if peer.Rank() >= signer.Rank() {
			continue
		}
		if peer.Blocks() {
			blocking = append(blocking, peer)
		}
	}
	return blocking
}
