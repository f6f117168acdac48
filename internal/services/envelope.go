package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
)

// CeremonyConfig holds configuration for the envelope state machine.
type CeremonyConfig struct {
	// SigningBaseURL is the public base of the signer-facing surface;
	// tokens are appended to it when building signing links.
	SigningBaseURL string
	TokenTTL       time.Duration
}

// Ceremony is the envelope state machine: the only component external
// callers mutate envelopes through. Every operation runs its reads, its
// eligibility decision and its writes inside one per-envelope transaction;
// notifications and semantic events fire only after the transaction commits.
type Ceremony struct {
	store     store.Store
	tokens    *TokenManager
	audit     *Recorder
	notifier  Notifier
	publisher EventPublisher
	scheduler SealScheduler
	config    CeremonyConfig
	now       func() time.Time
}

// NewCeremony wires the state machine to its store and collaborators.
func NewCeremony(st store.Store, notifier Notifier, publisher EventPublisher, scheduler SealScheduler, cfg CeremonyConfig) *Ceremony {
	return &Ceremony{
		store:     st,
		tokens:    NewTokenManager(st, cfg.TokenTTL),
		audit:     NewRecorder(st),
		notifier:  notifier,
		publisher: publisher,
		scheduler: scheduler,
		config:    cfg,
		now:       time.Now,
	}
}

// Tokens exposes the token manager for surfaces that only validate.
func (c *Ceremony) Tokens() *TokenManager { return c.tokens }

// Audit exposes the audit recorder.
func (c *Ceremony) Audit() *Recorder { return c.audit }

// CreateEnvelope persists a new draft envelope and records the created event.
func (c *Ceremony) CreateEnvelope(ctx context.Context, env *models.Envelope, signers []*models.Signer, fields []*models.Field, docs []*models.Document, actor ActorContext) (string, error) {
	if len(signers) == 0 {
		return "", &ValidationError{Problems: []string{"an envelope requires at least one signer"}}
	}
	if problems := invalidFieldGeometry(fields); len(problems) > 0 {
		return "", &ValidationError{Problems: problems}
	}
	env.Status = models.EnvelopeDraft
	env.SealState = models.SealNone
	if env.SigningOrder == "" {
		env.SigningOrder = models.OrderSequential
	}
	env.CreatedAt = c.now()
	for _, sg := range signers {
		sg.Status = models.SignerDraft
	}
	id, err := c.store.CreateEnvelope(ctx, env, signers, fields, docs)
	if err != nil {
		return "", err
	}
	err = c.store.RunEnvelopeTxn(ctx, id, func(tx store.EnvelopeTxn) error {
		return c.audit.Record(tx, "", models.CreatedData{SignerCount: len(signers), FieldCount: len(fields)}, actor)
	})
	if err != nil {
		return "", fmt.Errorf("failed to record created event: %w", err)
	}
	slog.Info("Envelope created.", "envelopeId", id, "signerCount", len(signers))
	return id, nil
}

// Send transitions a draft envelope to sent: validates that every signer
// with the signer role owns a signature field, mints one token per signer,
// and dispatches signing invitations after commit.
func (c *Ceremony) Send(ctx context.Context, envelopeID string, actor ActorContext) error {
	logCtx := slog.With("envelopeId", envelopeID)

	var toNotify []*models.Signer
	err := c.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeDraft {
			return &InvalidStateError{Current: string(env.Status), Attempted: "send"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		fields, err := tx.Fields()
		if err != nil {
			return err
		}
		if problems := missingSignatureFields(signers, fields); len(problems) > 0 {
			return &ValidationError{Problems: problems}
		}

		toNotify = toNotify[:0]
		for _, sg := range signers {
			if sg.Status == models.SignerDraft {
				sg.Status = models.SignerPending
			}
			if _, err := c.tokens.Mint(sg); err != nil {
				return err
			}
			if err := tx.PutSigner(sg); err != nil {
				return err
			}
			toNotify = append(toNotify, sg)
		}

		env.Status = models.EnvelopeSent
		env.SentAt = c.now()
		if err := tx.PutEnvelope(env); err != nil {
			return err
		}
		return c.audit.Record(tx, "", models.SentData{SignerCount: len(signers)}, actor)
	})
	if err != nil {
		return err
	}

	env, err := c.store.Envelope(ctx, envelopeID)
	if err != nil {
		return err
	}
	for _, sg := range toNotify {
		c.dispatchInvitation(ctx, logCtx, sg, env)
	}
	logCtx.Info("Envelope sent.", "signerCount", len(toNotify))
	return nil
}

// View records that a signer opened their signing link and promotes a
// pending signer to notified.
func (c *Ceremony) View(ctx context.Context, token string, actor ActorContext) error {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	return c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		_, me, err := c.reloadActionable(tx, signer.ID, "view")
		if err != nil {
			return err
		}
		if me.Status == models.SignerPending {
			me.Status = models.SignerNotified
			if err := tx.PutSigner(me); err != nil {
				return err
			}
		}
		return c.audit.Record(tx, me.ID, models.ViewedData{}, actor)
	})
}

// Consent records the signer's agreement to conduct the ceremony
// electronically.
func (c *Ceremony) Consent(ctx context.Context, token string, actor ActorContext) error {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	return c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		_, me, err := c.reloadActionable(tx, signer.ID, "consent")
		if err != nil {
			return err
		}
		me.ConsentedAt = c.now()
		if err := tx.PutSigner(me); err != nil {
			return err
		}
		return c.audit.Record(tx, me.ID, models.ConsentData{}, actor)
	})
}

// RecordSignature applies a signer's field values and completes that signer.
// values maps field IDs to their entered values; images maps signature-type
// field IDs to captured signature-image blob keys. When the last outstanding
// signer completes, the sealing pipeline is scheduled exactly once; the
// caller is acknowledged without waiting for sealing.
func (c *Ceremony) RecordSignature(ctx context.Context, token string, values map[string]string, images map[string]string, actor ActorContext) error {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	logCtx := slog.With("envelopeId", env.ID, "signerId", signer.ID)

	var scheduled bool
	err = c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		scheduled = false
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeSent && env.Status != models.EnvelopeInProgress {
			return &InvalidStateError{Current: string(env.Status), Attempted: "sign"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		me := findSigner(signers, signer.ID)
		if me == nil {
			return store.ErrNotFound
		}
		if !me.Actionable() {
			return &InvalidStateError{Current: string(me.Status), Attempted: "sign"}
		}
		if !CanSign(me, env, signers) {
			blocking := BlockingSigners(me, signers)
			ids := make([]string, len(blocking))
			for i, b := range blocking {
				ids[i] = b.ID
			}
			return &NotYourTurn{Blocking: ids}
		}

		fields, err := tx.Fields()
		if err != nil {
			return err
		}
		applied, problems := applyFieldValues(fields, me.ID, values, images, c.now())
		if len(problems) > 0 {
			return &ValidationError{Problems: problems}
		}
		for _, f := range applied {
			if err := tx.PutField(f); err != nil {
				return err
			}
		}

		me.Status = models.SignerCompleted
		me.SignedAt = c.now()
		me.IPAddress = actor.IPAddress
		me.UserAgent = actor.UserAgent
		c.tokens.Revoke(me)
		if err := tx.PutSigner(me); err != nil {
			return err
		}

		if env.Status == models.EnvelopeSent {
			env.Status = models.EnvelopeInProgress
		}
		if lastSignerDone(signers, me) && env.SealState == models.SealNone {
			env.SealState = models.SealScheduled
			env.SealStateAt = c.now()
			scheduled = true
		}
		if err := tx.PutEnvelope(env); err != nil {
			return err
		}
		return c.audit.Record(tx, me.ID, models.SignedData{FieldCount: len(applied)}, actor)
	})
	if err != nil {
		return err
	}

	c.publish(ctx, logCtx, SemanticEvent{Type: "signer.completed", EnvelopeID: env.ID, SignerID: signer.ID, OrgID: env.OrgID})
	if scheduled {
		// Failure to hand off is not a failure of the signature: the sweeper
		// re-schedules envelopes stuck in the scheduled state.
		if err := c.scheduler.Schedule(ctx, env.ID); err != nil {
			logCtx.Error("Failed to schedule sealing; sweep will retry.", "error", err)
		} else {
			logCtx.Info("Sealing scheduled.")
		}
	}
	logCtx.Info("Signature recorded.")
	return nil
}

// Decline records a signer's refusal and voids the entire envelope: one
// signer's refusal invalidates the ceremony for everyone.
func (c *Ceremony) Decline(ctx context.Context, token, reason string, actor ActorContext) error {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	logCtx := slog.With("envelopeId", env.ID, "signerId", signer.ID)

	err = c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeSent && env.Status != models.EnvelopeInProgress {
			return &InvalidStateError{Current: string(env.Status), Attempted: "decline"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		me := findSigner(signers, signer.ID)
		if me == nil {
			return store.ErrNotFound
		}
		if !me.Actionable() {
			return &InvalidStateError{Current: string(me.Status), Attempted: "decline"}
		}

		me.Status = models.SignerDeclined
		me.DeclineReason = reason
		c.tokens.Revoke(me)
		if err := tx.PutSigner(me); err != nil {
			return err
		}
		if err := c.audit.Record(tx, me.ID, models.DeclinedData{Reason: reason}, actor); err != nil {
			return err
		}

		voidReason := fmt.Sprintf("declined by %s: %s", me.Email, reason)
		return c.voidLocked(tx, env, signers, voidReason, actor)
	})
	if err != nil {
		return err
	}

	c.publish(ctx, logCtx, SemanticEvent{Type: "envelope.declined", EnvelopeID: env.ID, SignerID: signer.ID, OrgID: env.OrgID})
	c.publish(ctx, logCtx, SemanticEvent{Type: "envelope.voided", EnvelopeID: env.ID, OrgID: env.OrgID})
	logCtx.Info("Envelope declined and voided.", "reason", reason)
	return nil
}

// Void terminates an envelope from any non-terminal state and revokes every
// outstanding token.
func (c *Ceremony) Void(ctx context.Context, envelopeID, reason string, actor ActorContext) error {
	var orgID string
	err := c.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if !env.Voidable() {
			return &InvalidStateError{Current: string(env.Status), Attempted: "void"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		orgID = env.OrgID
		return c.voidLocked(tx, env, signers, reason, actor)
	})
	if err != nil {
		return err
	}
	c.publish(ctx, slog.With("envelopeId", envelopeID), SemanticEvent{Type: "envelope.voided", EnvelopeID: envelopeID, OrgID: orgID})
	return nil
}

// voidLocked applies the void inside an already-open transaction. The
// signers slice must be the one read in this transaction.
func (c *Ceremony) voidLocked(tx store.EnvelopeTxn, env *models.Envelope, signers []*models.Signer, reason string, actor ActorContext) error {
	for _, sg := range signers {
		if sg.SigningToken == "" {
			continue
		}
		c.tokens.Revoke(sg)
		if err := tx.PutSigner(sg); err != nil {
			return err
		}
	}
	env.Status = models.EnvelopeVoided
	env.VoidReason = reason
	if err := tx.PutEnvelope(env); err != nil {
		return err
	}
	return c.audit.Record(tx, "", models.VoidedData{Reason: reason}, actor)
}

// Correction describes the limited edits permitted after creation. Metadata
// edits require draft; signer contact fixes are allowed while draft or sent.
type Correction struct {
	Subject      *string
	Message      *string
	SignerNames  map[string]string // signerID -> corrected name
	SignerEmails map[string]string // signerID -> corrected email
}

// Correct applies a correction and records the delta. History is never
// silently mutated: every accepted correction emits a corrected event
// describing each change.
func (c *Ceremony) Correct(ctx context.Context, envelopeID string, corr Correction, actor ActorContext) error {
	return c.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if !env.ParticipantsMutable() {
			return &InvalidStateError{Current: string(env.Status), Attempted: "correct"}
		}
		if (corr.Subject != nil || corr.Message != nil) && !env.MetadataMutable() {
			return &InvalidStateError{Current: string(env.Status), Attempted: "correct metadata"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}

		var changes []models.FieldChange
		if corr.Subject != nil && *corr.Subject != env.Subject {
			changes = append(changes, models.FieldChange{Entity: "envelope", Attr: "subject", From: env.Subject, To: *corr.Subject})
			env.Subject = *corr.Subject
		}
		if corr.Message != nil && *corr.Message != env.Message {
			changes = append(changes, models.FieldChange{Entity: "envelope", Attr: "message", From: env.Message, To: *corr.Message})
			env.Message = *corr.Message
		}
		touched := map[string]*models.Signer{}
		for id, name := range corr.SignerNames {
			sg := findSigner(signers, id)
			if sg == nil {
				return &ValidationError{Problems: []string{fmt.Sprintf("unknown signer %s", id)}}
			}
			if sg.Name != name {
				changes = append(changes, models.FieldChange{Entity: "signer", ID: id, Attr: "name", From: sg.Name, To: name})
				sg.Name = name
				touched[id] = sg
			}
		}
		for id, email := range corr.SignerEmails {
			sg := findSigner(signers, id)
			if sg == nil {
				return &ValidationError{Problems: []string{fmt.Sprintf("unknown signer %s", id)}}
			}
			if sg.Email != email {
				changes = append(changes, models.FieldChange{Entity: "signer", ID: id, Attr: "email", From: sg.Email, To: email})
				sg.Email = email
				touched[id] = sg
			}
		}
		if len(changes) == 0 {
			return &ValidationError{Problems: []string{"correction contains no changes"}}
		}
		for _, sg := range touched {
			if err := tx.PutSigner(sg); err != nil {
				return err
			}
		}
		if corr.Subject != nil || corr.Message != nil {
			if err := tx.PutEnvelope(env); err != nil {
				return err
			}
		}
		return c.audit.Record(tx, "", models.CorrectedData{Changes: changes}, actor)
	})
}

// Remind re-sends a signer's invitation. The token is rotated only when the
// existing one is missing or expired; a still-valid link keeps working.
func (c *Ceremony) Remind(ctx context.Context, envelopeID, signerID string, actor ActorContext) error {
	logCtx := slog.With("envelopeId", envelopeID, "signerId", signerID)

	var target *models.Signer
	err := c.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeSent && env.Status != models.EnvelopeInProgress {
			return &InvalidStateError{Current: string(env.Status), Attempted: "remind"}
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		sg := findSigner(signers, signerID)
		if sg == nil {
			return store.ErrNotFound
		}
		if !sg.Actionable() {
			return &InvalidStateError{Current: string(sg.Status), Attempted: "remind"}
		}
		rotated, err := c.tokens.Mint(sg)
		if err != nil {
			return err
		}
		if rotated {
			if err := tx.PutSigner(sg); err != nil {
				return err
			}
		}
		target = sg
		return c.audit.Record(tx, sg.ID, models.RemindedData{TokenRotated: rotated}, actor)
	})
	if err != nil {
		return err
	}

	env, err := c.store.Envelope(ctx, envelopeID)
	if err != nil {
		return err
	}
	c.dispatchInvitation(ctx, logCtx, target, env)
	return nil
}

// Comment appends a commented event and notifies the comment collaborator.
func (c *Ceremony) Comment(ctx context.Context, token, text string, actor ActorContext) error {
	signer, env, err := c.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	err = c.store.RunEnvelopeTxn(ctx, env.ID, func(tx store.EnvelopeTxn) error {
		_, me, err := c.reloadActionable(tx, signer.ID, "comment")
		if err != nil {
			return err
		}
		return c.audit.Record(tx, me.ID, models.CommentData{Comment: text}, actor)
	})
	if err != nil {
		return err
	}
	if err := c.notifier.NotifyComment(ctx, signer, env, text); err != nil {
		slog.Warn("Comment notification failed.", "envelopeId", env.ID, "error", err)
	}
	return nil
}

// Transfer moves ownership of a non-terminal envelope to another
// organization and records the transfer.
func (c *Ceremony) Transfer(ctx context.Context, envelopeID, toOrgID string, actor ActorContext) error {
	return c.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Terminal() {
			return &InvalidStateError{Current: string(env.Status), Attempted: "transfer"}
		}
		from := env.OrgID
		env.OrgID = toOrgID
		if err := tx.PutEnvelope(env); err != nil {
			return err
		}
		return c.audit.Record(tx, "", models.TransferredData{FromOrgID: from, ToOrgID: toOrgID}, actor)
	})
}

// reloadActionable re-reads the envelope and the acting signer inside the
// transaction and verifies both still permit ceremony actions.
func (c *Ceremony) reloadActionable(tx store.EnvelopeTxn, signerID, attempted string) (*models.Envelope, *models.Signer, error) {
	env, err := tx.Envelope()
	if err != nil {
		return nil, nil, err
	}
	if env.Terminal() {
		return nil, nil, &InvalidStateError{Current: string(env.Status), Attempted: attempted}
	}
	signers, err := tx.Signers()
	if err != nil {
		return nil, nil, err
	}
	me := findSigner(signers, signerID)
	if me == nil {
		return nil, nil, store.ErrNotFound
	}
	if !me.Actionable() {
		return nil, nil, &InvalidStateError{Current: string(me.Status), Attempted: attempted}
	}
	return env, me, nil
}

func (c *Ceremony) dispatchInvitation(ctx context.Context, logCtx *slog.Logger, sg *models.Signer, env *models.Envelope) {
	if sg.SigningToken == "" {
		return
	}
	url := fmt.Sprintf("%s/sign?token=%s", c.config.SigningBaseURL, sg.SigningToken)
	if err := c.notifier.NotifySigner(ctx, sg, env, url); err != nil {
		logCtx.Warn("Signer notification failed.", "signerId", sg.ID, "error", err)
	}
}

func (c *Ceremony) publish(ctx context.Context, logCtx *slog.Logger, ev SemanticEvent) {
	if err := c.publisher.Publish(ctx, ev); err != nil {
		logCtx.Warn("Semantic event publish failed.", "type", ev.Type, "error", err)
	}
}

// invalidFieldGeometry names each field whose placement is not a valid
// normalized box on a real page. Bad geometry is rejected at creation; the
// sealing pipeline never sees it.
func invalidFieldGeometry(fields []*models.Field) []string {
	var problems []string
	for _, f := range fields {
		if f.Page < 1 {
			problems = append(problems, fmt.Sprintf("field %s targets page %d", f.ID, f.Page))
		}
		if !f.BoxValid() {
			problems = append(problems, fmt.Sprintf("field %s has out-of-page geometry", f.ID))
		}
	}
	return problems
}

// missingSignatureFields names each signer-role participant without at least
// one signature field.
func missingSignatureFields(signers []*models.Signer, fields []*models.Field) []string {
	var problems []string
	for _, sg := range signers {
		if sg.Role != models.RoleSigner {
			continue
		}
		found := false
		for _, f := range fields {
			if f.SignerID == sg.ID && f.Type == models.FieldSignature {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("signer %s (%s) has no signature field", sg.Name, sg.Email))
		}
	}
	return problems
}

// applyFieldValues writes submitted values onto the signer's fields and
// checks that every required field ends up filled. Returns the mutated
// fields and any validation problems.
func applyFieldValues(fields []*models.Field, signerID string, values, images map[string]string, now time.Time) ([]*models.Field, []string) {
	var applied []*models.Field
	var problems []string
	for _, f := range fields {
		if f.SignerID != signerID {
			continue
		}
		touched := false
		if v, ok := values[f.ID]; ok && v != "" {
			f.Value = v
			touched = true
		}
		if key, ok := images[f.ID]; ok && key != "" {
			f.SignatureKey = key
			touched = true
		}
		if touched {
			f.FilledAt = now
			applied = append(applied, f)
		}
		if f.Required && !f.Filled() {
			problems = append(problems, fmt.Sprintf("required field %s (%s) is empty", f.ID, f.Type))
		}
	}
	return applied, problems
}

// lastSignerDone reports whether no signer-role participant other than the
// one just completed remains outstanding. Delegated signers are replaced by
// their delegates and do not count as outstanding themselves.
func lastSignerDone(signers []*models.Signer, justCompleted *models.Signer) bool {
	for _, sg := range signers {
		if sg.ID == justCompleted.ID || sg.Role != models.RoleSigner {
			continue
		}
		switch sg.Status {
		case models.SignerCompleted, models.SignerDelegated, models.SignerDeclined:
			continue
		}
		return false
	}
	return true
}

func findSigner(signers []*models.Signer, id string) *models.Signer {
	for _, sg := range signers {
		if sg.ID == id {
			return sg
		}
	}
	return nil
}
