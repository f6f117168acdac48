package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
)

// schedulerGrace is how long a scheduled seal may sit unconsumed before the
// sweep assumes the hand-off was lost and re-schedules it.
const schedulerGrace = 2 * time.Minute

// Sweeper implements the scheduled background policies around the state
// machine: expiring envelopes whose signing deadlines passed without action,
// and re-scheduling seals that failed or whose hand-off was lost.
type Sweeper struct {
	store     store.Store
	tokens    *TokenManager
	scheduler SealScheduler
	now       func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(st store.Store, scheduler SealScheduler) *Sweeper {
	return &Sweeper{
		store:     st,
		tokens:    NewTokenManager(st, 0),
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Sweep runs one pass of both policies and reports what it did.
func (s *Sweeper) Sweep(ctx context.Context) (expired, rescheduled int, err error) {
	expired, err = s.expireEnvelopes(ctx)
	if err != nil {
		return expired, 0, err
	}
	rescheduled, err = s.retrySeals(ctx)
	return expired, rescheduled, err
}

// expireEnvelopes terminates envelopes on which every outstanding signer's
// token deadline has passed with no sign, decline or completion.
func (s *Sweeper) expireEnvelopes(ctx context.Context) (int, error) {
	envs, err := s.store.EnvelopesByStatus(ctx, []models.EnvelopeStatus{models.EnvelopeSent, models.EnvelopeInProgress}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to list envelopes for expiry: %w", err)
	}
	expired := 0
	for _, env := range envs {
		did, err := s.expireOne(ctx, env.ID)
		if err != nil {
			slog.Error("Failed to expire envelope.", "envelopeId", env.ID, "error", err)
			continue
		}
		if did {
			expired++
			slog.Info("Envelope expired.", "envelopeId", env.ID)
		}
	}
	return expired, nil
}

func (s *Sweeper) expireOne(ctx context.Context, envelopeID string) (bool, error) {
	did := false
	err := s.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		did = false
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeSent && env.Status != models.EnvelopeInProgress {
			return nil
		}
		signers, err := tx.Signers()
		if err != nil {
			return err
		}
		outstanding := 0
		for _, sg := range signers {
			if !sg.Actionable() {
				continue
			}
			outstanding++
			if sg.TokenLive(s.now()) {
				// Someone can still act; not expirable.
				return nil
			}
		}
		if outstanding == 0 {
			return nil
		}
		for _, sg := range signers {
			if sg.SigningToken == "" {
				continue
			}
			s.tokens.Revoke(sg)
			if err := tx.PutSigner(sg); err != nil {
				return err
			}
		}
		env.Status = models.EnvelopeExpired
		env.ExpiresAt = s.now()
		did = true
		return tx.PutEnvelope(env)
	})
	return did, err
}

// retrySeals re-schedules envelopes whose seal failed, whose scheduled
// hand-off was never consumed, or whose sealing lease went stale.
func (s *Sweeper) retrySeals(ctx context.Context) (int, error) {
	envs, err := s.store.EnvelopesByStatus(ctx, []models.EnvelopeStatus{models.EnvelopeInProgress}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to list envelopes for seal retry: %w", err)
	}
	rescheduled := 0
	for _, env := range envs {
		age := s.now().Sub(env.SealStateAt)
		retry := false
		switch env.SealState {
		case models.SealFailed:
			retry = true
		case models.SealScheduled:
			retry = age > schedulerGrace
		case models.SealRunning:
			retry = age > sealLeaseTTL
		}
		if !retry {
			continue
		}
		if err := s.scheduler.Schedule(ctx, env.ID); err != nil {
			slog.Error("Failed to re-schedule seal.", "envelopeId", env.ID, "error", err)
			continue
		}
		rescheduled++
		slog.Info("Seal re-scheduled.", "envelopeId", env.ID, "sealState", env.SealState)
	}
	return rescheduled, nil
}
