package sessionkit

import (
	"context"
	"errors"
	"time"

	"github.com/nimbusmail/sessionkit/identity"
)

// ResolveStartup recovers an authenticated session without user interaction.
// It runs the priority chain exactly once per process lifetime: the guard
// makes a second call a no-op that returns the first outcome together with
// ErrResolverAlreadyRan. Call it at process start, before any UI that
// depends on auth state.
//
// Chain, each step attempted only when the previous is unavailable or fails:
//
//  1. Fast-path token replay (stay-signed-in flag + cached token + snapshot).
//  2. Legacy raw-credential replay (deprecated; migrated installs only).
//  3. Last-active-account token replay.
//  4. Terminal Unauthenticated — the absence of a session is not an error.
//
// Every failed step clears the durable artifacts it consumed so later starts
// do not repeat doomed work.
func (c *Controller) ResolveStartup(ctx context.Context) (ResolverOutcome, error) {
	if c == nil {
		return OutcomeUnauthenticated, ErrControllerNotReady
	}

	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	if c.resolved {
		return c.outcome, ErrResolverAlreadyRan
	}

	epoch := c.currentEpoch()
	outcome, err := c.resolve(ctx, epoch)
	c.resolved = true
	c.outcome = outcome

	c.metricInc(resolverMetric(outcome))
	c.audit.emit(ctx, auditEventResolverFinished, "", outcome != OutcomeUnauthenticated, err, map[string]string{
		"outcome": outcome.String(),
	})
	return outcome, err
}

func resolverMetric(outcome ResolverOutcome) MetricID {
	switch outcome {
	case OutcomeFastPath:
		return MetricResolverFastPath
	case OutcomeLegacyCredentials:
		return MetricResolverLegacy
	case OutcomeLastActive:
		return MetricResolverLastActive
	default:
		return MetricResolverUnauthenticated
	}
}

func (c *Controller) resolve(ctx context.Context, epoch uint64) (ResolverOutcome, error) {
	if err := c.store.Load(ctx); err != nil {
		return OutcomeUnauthenticated, err
	}

	if outcome, ok := c.resolveFastPath(ctx, epoch); ok {
		return outcome, nil
	}
	if c.cfg.Recovery.EnableLegacyCredentialReplay {
		if outcome, ok := c.resolveLegacyCredentials(ctx, epoch); ok {
			return outcome, nil
		}
	}
	if outcome, ok := c.resolveLastActive(ctx, epoch); ok {
		return outcome, nil
	}
	return OutcomeUnauthenticated, nil
}

// resolveFastPath replays the stay-signed-in token. The token's prior
// issuance already satisfied second-factor policy, so a positive validation
// logs straight in. An invalid or unverifiable token clears the flags.
func (c *Controller) resolveFastPath(ctx context.Context, epoch uint64) (ResolverOutcome, bool) {
	token, snapshot, ok, err := c.flags.FastPath(ctx)
	if err != nil || !ok {
		return OutcomeUnauthenticated, false
	}

	if !c.verifyToken(ctx, token) {
		_ = c.flags.ClearFastPath(ctx)
		return OutcomeUnauthenticated, false
	}

	snapshot.Token = token
	if err := c.applyLogin(ctx, snapshot, false, epoch); err != nil {
		return OutcomeUnauthenticated, false
	}
	return OutcomeFastPath, true
}

// resolveLegacyCredentials replays a cached raw username/password. A
// requires-2FA answer cannot be satisfied silently and counts as failure.
// Definitive rejections clear the legacy key; a transport failure leaves it
// for the next start.
func (c *Controller) resolveLegacyCredentials(ctx context.Context, epoch uint64) (ResolverOutcome, bool) {
	creds, ok, err := c.flags.LegacyCredentials(ctx)
	if err != nil || !ok {
		return OutcomeUnauthenticated, false
	}

	resp, err := c.svc.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			_ = c.flags.ClearLegacyCredentials(ctx)
		}
		return OutcomeUnauthenticated, false
	}
	if resp.Requires2FA {
		_ = c.flags.ClearLegacyCredentials(ctx)
		return OutcomeUnauthenticated, false
	}

	account := accountFromIdentity(resp.Account, resp.Token, time.Now())
	if err := c.applyLogin(ctx, account, false, epoch); err != nil {
		return OutcomeUnauthenticated, false
	}
	// The replay succeeded; drop the raw password now that a token exists.
	_ = c.flags.ClearLegacyCredentials(ctx)
	return OutcomeLegacyCredentials, true
}

// resolveLastActive validates the token of the account the durable pointer
// names. On failure the pointer is cleared and the chain ends.
func (c *Controller) resolveLastActive(ctx context.Context, epoch uint64) (ResolverOutcome, bool) {
	id, err := c.flags.CurrentAccountID(ctx)
	if err != nil || id == "" {
		return OutcomeUnauthenticated, false
	}
	account, ok := c.store.Get(id)
	if !ok {
		_ = c.flags.ClearCurrentAccountID(ctx)
		return OutcomeUnauthenticated, false
	}

	if !c.verifyToken(ctx, account.Token) {
		_ = c.flags.ClearCurrentAccountID(ctx)
		return OutcomeUnauthenticated, false
	}

	if err := c.applyLogin(ctx, account, false, epoch); err != nil {
		return OutcomeUnauthenticated, false
	}
	return OutcomeLastActive, true
}
