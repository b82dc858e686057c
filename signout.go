package sessionkit

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nimbusmail/sessionkit/identity"
)

// SignOut requests sign-out of the current account only. The session is not
// cleared yet: a [PendingSignOutIntent] is created and the returned result
// carries the re-verification challenge the caller must complete before
// [Controller.ConfirmSignOut]. When no second factor is configured for the
// session, sign-out completes immediately (Completed is true).
func (c *Controller) SignOut(ctx context.Context) (*SignOutResult, error) {
	return c.signOut(ctx, ScopeSingleAccount)
}

// SignOutAll is SignOut with AllAccounts scope: on confirmation the account
// store is emptied and every durable recovery flag is cleared.
func (c *Controller) SignOutAll(ctx context.Context) (*SignOutResult, error) {
	return c.signOut(ctx, ScopeAllAccounts)
}

func (c *Controller) signOut(ctx context.Context, scope SignOutScope) (*SignOutResult, error) {
	if c == nil {
		return nil, ErrControllerNotReady
	}

	c.mu.Lock()
	if !c.session.Authenticated {
		c.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	if c.pending != nil {
		c.mu.Unlock()
		return nil, ErrSignOutPending
	}
	currentID := c.session.CurrentAccountID
	// An explicit sign-out invalidates whatever is in flight: a stale
	// auto-login or challenge success must not resurrect this session.
	c.epoch++
	c.mu.Unlock()

	c.audit.emit(ctx, auditEventSignOutRequested, currentID, true, nil, map[string]string{
		"scope": scope.String(),
	})

	requireChallenge := c.cfg.SignOut.RequireSecondFactor
	var flow *ChallengeFlow
	if requireChallenge {
		account, ok := c.store.Get(currentID)
		if !ok {
			requireChallenge = false
		} else {
			resp, err := c.svc.Reauth(ctx, account.Token)
			if err != nil {
				if errors.Is(err, identity.ErrUnavailable) {
					return nil, ErrIdentityUnavailable
				}
				return nil, err
			}
			if !resp.Requires2FA || resp.Methods.None() {
				requireChallenge = false
			} else {
				flow = newChallengeFlow(c.svc, c.authenticator, c.cfg.Challenge, resp.TempToken, resp.Methods, c.challengeNotify(account.Username))
				c.metricInc(MetricChallengeStarted)
				c.audit.emit(ctx, auditEventChallengeStarted, currentID, true, nil, map[string]string{
					"context": "signout",
				})
				_ = flow.Start(ctx)
			}
		}
	}

	if !requireChallenge {
		if err := c.completeSignOut(ctx, scope, currentID); err != nil {
			return nil, err
		}
		return &SignOutResult{Completed: true}, nil
	}

	c.mu.Lock()
	if !c.session.Authenticated || c.session.CurrentAccountID != currentID {
		c.mu.Unlock()
		flow.Cancel()
		return nil, ErrNotAuthenticated
	}
	if c.pending != nil {
		c.mu.Unlock()
		flow.Cancel()
		return nil, ErrSignOutPending
	}
	c.pending = &PendingSignOutIntent{ID: uuid.NewString(), Scope: scope, AccountID: currentID}
	c.pendingFlow = flow
	c.mu.Unlock()

	return &SignOutResult{Flow: flow}, nil
}

// ConfirmSignOut consumes the pending intent. It refuses until the issued
// re-verification challenge has succeeded: the fresh user-presence proof is
// the whole point of the gate.
func (c *Controller) ConfirmSignOut(ctx context.Context) error {
	if c == nil {
		return ErrControllerNotReady
	}

	c.mu.Lock()
	intent := c.pending
	flow := c.pendingFlow
	if intent == nil {
		c.mu.Unlock()
		return ErrNoPendingSignOut
	}
	if flow != nil {
		if _, ok := flow.Result(); !ok {
			c.mu.Unlock()
			return ErrSecondFactorRequired
		}
	}
	c.pending = nil
	c.pendingFlow = nil
	c.mu.Unlock()

	// The intent pins its account: confirmation terminates the session the
	// user asked to end, even if the active account changed since.
	return c.completeSignOut(ctx, intent.Scope, intent.AccountID)
}

// CancelSignOut abandons the pending intent and its challenge. The session
// stays authenticated.
func (c *Controller) CancelSignOut() error {
	if c == nil {
		return ErrControllerNotReady
	}

	c.mu.Lock()
	intent := c.pending
	flow := c.pendingFlow
	c.pending = nil
	c.pendingFlow = nil
	currentID := c.session.CurrentAccountID
	c.mu.Unlock()

	if intent == nil {
		return ErrNoPendingSignOut
	}
	if flow != nil {
		flow.Cancel()
	}
	c.audit.emit(context.Background(), auditEventSignOutCancelled, currentID, true, nil, map[string]string{
		"scope": intent.Scope.String(),
	})
	return nil
}

func (c *Controller) completeSignOut(ctx context.Context, scope SignOutScope, currentID string) error {
	var err error
	switch scope {
	case ScopeAllAccounts:
		err = c.completeFullSignOut(ctx)
		c.metricInc(MetricSignOutAll)
	default:
		err = c.completeSingleSignOut(ctx, currentID)
		c.metricInc(MetricSignOutSingle)
	}
	if err != nil {
		return err
	}
	c.audit.emit(ctx, auditEventSignOutConfirmed, currentID, true, nil, map[string]string{
		"scope": scope.String(),
	})
	return nil
}

// completeSingleSignOut clears the session and the durable pointers for the
// signed-out account while keeping its record for one-tap re-login, then
// tries to re-authenticate the most-recently-used other account.
func (c *Controller) completeSingleSignOut(ctx context.Context, signedOutID string) error {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	c.closeGate()

	if err := c.flags.ClearCurrentAccountID(ctx); err != nil {
		return err
	}
	// The fast-path artifacts were issued for the session being terminated.
	if err := c.flags.ClearFastPath(ctx); err != nil {
		return err
	}

	candidate, ok := c.store.mostRecentOther(signedOutID)
	if !ok {
		return nil
	}
	if !c.verifyToken(ctx, candidate.Token) {
		return nil
	}
	if err := c.applyLogin(ctx, candidate, false, c.currentEpoch()); err != nil {
		if errors.Is(err, ErrStaleResult) {
			return nil
		}
		return err
	}
	return nil
}

// completeFullSignOut clears every account and every durable recovery flag.
func (c *Controller) completeFullSignOut(ctx context.Context) error {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	c.closeGate()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	return c.flags.ClearAll(ctx)
}
