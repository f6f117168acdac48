package services

import (
	"context"
	"log/slog"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
)

// Delegate transfers the acting signer's ceremony responsibility to a new
// signer identity: a new signer row inheriting role, order and signing group,
// every field reassigned to it, the original marked delegated with its token
// revoked, and a fresh token minted for the delegate. The handoff is one
// transaction; a partial handoff would leave field ownership inconsistent.
//
// Delegation is only permitted before any ceremony action: once the signer
// has viewed or signed, transferring responsibility mid-ceremony would
// corrupt the audit trail's causal story.
func (c *Ceremony) Delegate(ctx context.Context, token, delegateName, delegateEmail string, actor ActorContext) (string, error) {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	if signer.Status != models.SignerPending && signer.Status != models.SignerNotified {
		return "", &InvalidStateError{Current: string(signer.Status), Attempted: "delegate"}
	}
	logCtx := slog.With("envelopeId", env.ID, "signerId", signer.ID)

	var delegate *models.Signer
	err = c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Terminal() {
			return &InvalidStateError{Current: string(env.Status), Attempted: "delegate"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		original := findSigner(signers, signer.ID)
		if original == nil {
			return store.ErrNotFound
		}
		if !original.Actionable() {
			return &InvalidStateError{Current: string(original.Status), Attempted: "delegate"}
		}
		fields, err := tx.Fields()
		if err != nil {
			return err
		}

		delegate = &models.Signer{
			Name:          delegateName,
			Email:         delegateEmail,
			Role:          original.Role,
			Order:         original.Order,
			SigningGroup:  original.SigningGroup,
			Status:        models.SignerPending,
			DelegatedFrom: original.ID,
			NotifyByEmail: original.NotifyByEmail,
		}
		if _, err := c.tokens.Mint(delegate); err != nil {
			return err
		}
		delegateID, err := tx.CreateSigner(delegate)
		if err != nil {
			return err
		}

		for _, f := range fields {
			if f.SignerID != original.ID {
				continue
			}
			f.SignerID = delegateID
			if err := tx.PutField(f); err != nil {
				return err
			}
		}

		original.Status = models.SignerDelegated
		c.tokens.Revoke(original)
		if err := tx.PutSigner(original); err != nil {
			return err
		}

		return c.audit.Record(tx, original.ID, models.DelegatedData{
			FromSignerID: original.ID,
			FromName:     original.Name,
			FromEmail:    original.Email,
			ToSignerID:   delegateID,
			ToName:       delegateName,
			ToEmail:      delegateEmail,
		}, actor)
	})
	if err != nil {
		return "", err
	}

	c.publish(ctx, logCtx, SemanticEvent{Type: "signer.delegated", EnvelopeID: env.ID, SignerID: signer.ID, OrgID: env.OrgID})
	c.dispatchInvitation(ctx, logCtx, delegate, env)
	logCtx.Info("Signer delegated.", "delegateId", delegate.ID, "delegateEmail", delegateEmail)
	return delegate.ID, nil
}
