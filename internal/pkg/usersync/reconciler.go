package usersync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
	"github.com/ManuelReschke/CreditFox/internal/pkg/idempotency"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

// Outcome is the terminal result of reconciling one event.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeUpdated       Outcome = "updated"
	OutcomeDeleted       Outcome = "deleted"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeUnhandled     Outcome = "unhandled"
	OutcomeDuplicate     Outcome = "duplicate"
)

const (
	DefaultCreateAttempts = 3
	DefaultCreateBackoff  = 100 * time.Millisecond
)

// CreditGranter sets the opening balance of a new user.
type CreditGranter interface {
	GrantInitialCredits(u *models.User)
}

type Option func(*Reconciler)

// WithCreateRetry sets how often a creation that lost a unique-key race is retried
// and the base backoff, which grows linearly with the attempt number.
func WithCreateRetry(attempts int, backoff time.Duration) Option {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.createAttempts = attempts
		}
		if backoff >= 0 {
			r.createBackoff = backoff
		}
	}
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Reconciler) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// Reconciler applies verified identity events to the user store.
type Reconciler struct {
	store          store.Store
	tracker        idempotency.Tracker
	credits        CreditGranter
	createAttempts int
	createBackoff  time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewReconciler(s store.Store, tracker idempotency.Tracker, credits CreditGranter, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:          s,
		tracker:        tracker,
		credits:        credits,
		createAttempts: DefaultCreateAttempts,
		createBackoff:  DefaultCreateBackoff,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reconcile claims eventID in the tracker, applies evt and records the result.
// An event the tracker already knows yields OutcomeDuplicate without touching
// the store.
func (r *Reconciler) Reconcile(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", apperr.New(apperr.Validation, "event id is required")
	}
	if evt == nil {
		return "", apperr.New(apperr.Validation, "event is required")
	}

	if !r.tracker.MarkProcessing(ctx, eventID) {
		log.Infof("[UserSync] Event %s already seen, skipping", eventID)
		return OutcomeDuplicate, nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.tracker.MarkFailed(context.WithoutCancel(ctx), eventID, fmt.Sprintf("panic: %v", p))
			panic(p)
		}
	}()

	outcome, err := r.apply(ctx, eventID, evt)
	if err != nil {
		r.tracker.MarkFailed(ctx, eventID, err.Error())
		log.Errorf("[UserSync] Event %s (%s, clerk_id=%s) failed: %v", eventID, evt.Type, evt.Data.ID, err)
		return "", err
	}
	r.tracker.MarkCompleted(ctx, eventID)
	log.Infof("[UserSync] Event %s (%s, clerk_id=%s): %s", eventID, evt.Type, evt.Data.ID, outcome)
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
	switch evt.Type {
	case clerk.EventUserCreated, clerk.EventUserUpdated, clerk.EventUserDeleted:
	default:
		log.Warnf("[UserSync] Unhandled event type %q (event %s)", evt.Type, eventID)
		return OutcomeUnhandled, nil
	}

	clerkID := strings.TrimSpace(evt.Data.ID)
	if clerkID == "" {
		return "", apperr.Newf(apperr.Validation, "%s event without user id", evt.Type)
	}

	switch evt.Type {
	case clerk.EventUserCreated:
		return r.create(ctx, eventID, clerkID, evt.Data.Patch())
	case clerk.EventUserUpdated:
		return r.update(ctx, eventID, clerkID, evt.Data.Patch())
	default:
		return r.delete(ctx, clerkID)
	}
}

func (r *Reconciler) create(ctx context.Context, eventID, clerkID string, patch models.UserPatch) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		exists := false
		err := r.store.WithTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
			_, err := repos.Users.FindByClerkID(ctx, clerkID)
			if err == nil {
				exists = true
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			u := &models.User{ClerkID: clerkID}
			patch.Apply(u)
			r.credits.GrantInitialCredits(u)
			u.MarkProcessed(eventID)
			if err := u.Validate(); err != nil {
				return apperr.Wrap(apperr.Validation, "invalid user payload", err)
			}
			return repos.Users.Create(ctx, u)
		})
		if err == nil {
			if exists {
				return OutcomeAlreadyExists, nil
			}
			return OutcomeCreated, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return "", store.AppError(err, "could not create user")
		}
		if attempt >= r.createAttempts {
			return "", apperr.Wrap(apperr.RaceRetryExhausted, "user creation kept conflicting", err)
		}

		backoff := r.createBackoff * time.Duration(attempt)
		log.Warnf("[UserSync] Create of %s conflicted (attempt %d/%d), retrying in %s", clerkID, attempt, r.createAttempts, backoff)
		if err := r.sleep(ctx, backoff); err != nil {
			return "", apperr.Wrap(apperr.StoreUnavailable, "retry interrupted", err)
		}
	}
}

func (r *Reconciler) update(ctx context.Context, eventID, clerkID string, patch models.UserPatch) (Outcome, error) {
	if patch.Email != nil {
		candidate := &models.User{ClerkID: clerkID, Email: patch.Email}
		if err := candidate.Validate(); err != nil {
			return "", apperr.Wrap(apperr.Validation, "invalid user payload", err)
		}
	}

	err := r.store.WithTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		_, err := repos.Users.ApplyPatch(ctx, clerkID, eventID, patch)
		return err
	})
	switch {
	case err == nil:
		return OutcomeUpdated, nil
	case errors.Is(err, store.ErrNotFound):
		log.Warnf("[UserSync] User %s not found for update, ignoring", clerkID)
		return OutcomeIgnored, nil
	case errors.Is(err, store.ErrEventAlreadyApplied):
		return OutcomeDuplicate, nil
	default:
		return "", store.AppError(err, "could not update user")
	}
}

func (r *Reconciler) delete(ctx context.Context, clerkID string) (Outcome, error) {
	err := r.store.WithTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		return repos.Users.DeleteByClerkID(ctx, clerkID)
	})
	switch {
	case err == nil:
		return OutcomeDeleted, nil
	case errors.Is(err, store.ErrNotFound):
		log.Warnf("[UserSync] User %s not found for deletion, ignoring", clerkID)
		return OutcomeIgnored, nil
	default:
		return "", store.AppError(err, "could not delete user")
	}
}
