package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimbusmail/sessionkit/identity"
)

// Controller is the single authority over session state. It owns the current
// session, the account collection, and the durable recovery flags; every
// other component returns values and never mutates shared state directly.
//
// Construct exactly one Controller per process via [Builder.Build], run
// [Controller.ResolveStartup] before showing auth-dependent UI, and route all
// login/sign-out/switch operations through it.
type Controller struct {
	cfg           Config
	svc           identity.Service
	store         *AccountStore
	flags         *recoveryFlags
	validator     *TokenValidator
	authenticator Authenticator
	audit         *auditDispatcher
	metrics       *Metrics

	mu      sync.Mutex
	session Session
	pending *PendingSignOutIntent
	// pendingFlow is the re-verification challenge issued for the pending
	// intent, when one was required.
	pendingFlow *ChallengeFlow
	// epoch is bumped by every explicit sign-out request. In-flight
	// operations capture it at start; a result carrying a stale epoch is
	// discarded instead of applied.
	epoch uint64

	gateMu sync.Mutex
	gate   chan struct{}

	resolveMu sync.Mutex
	resolved  bool
	outcome   ResolverOutcome
}

// Close drains and stops the audit dispatcher.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.audit.close()
}

// Current returns a copy of the session state.
func (c *Controller) Current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// CurrentAccount returns the account of the authenticated session.
func (c *Controller) CurrentAccount() (Account, bool) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if !session.Authenticated {
		return Account{}, false
	}
	return c.store.Get(session.CurrentAccountID)
}

// Accounts lists every locally cached account in stable order.
func (c *Controller) Accounts() []Account {
	return c.store.List()
}

// Ready returns a channel that is closed while a session is authenticated.
// Background pollers (unread counts and the like) select on it so they stay
// suspended whenever authenticated == false; the channel is replaced with an
// open one on sign-out.
func (c *Controller) Ready() <-chan struct{} {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	return c.gate
}

func (c *Controller) openGate() {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	select {
	case <-c.gate:
	default:
		close(c.gate)
	}
}

func (c *Controller) closeGate() {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	select {
	case <-c.gate:
		c.gate = make(chan struct{})
	default:
	}
}

// MetricsSnapshot returns a copy of the in-process counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped by a full buffer.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.droppedCount()
}

func (c *Controller) metricInc(id MetricID) {
	if c == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Login marks account as the current authenticated session. It is called
// only after any required second-factor challenge has already succeeded; no
// challenge is evaluated here. The account is upserted with LastLogin = now
// and the durable current-account pointer is written before the in-memory
// session commits.
func (c *Controller) Login(ctx context.Context, account Account) error {
	return c.applyLogin(ctx, account, false, c.currentEpoch())
}

// LoginRemembered is Login plus the stay-signed-in opt-in: the session token
// and a minimal account snapshot are persisted for silent fast-path recovery
// at next process start.
func (c *Controller) LoginRemembered(ctx context.Context, account Account) error {
	return c.applyLogin(ctx, account, true, c.currentEpoch())
}

func (c *Controller) applyLogin(ctx context.Context, account Account, remember bool, epoch uint64) error {
	if c == nil {
		return ErrControllerNotReady
	}

	// Staleness is checked before anything durable happens: a result that
	// arrives after the user signed out must leave no trace a later process
	// start could replay.
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return ErrStaleResult
	}
	c.mu.Unlock()

	account.LastLogin = time.Now()

	// Durable writes next: the session only commits once storage agrees.
	if err := c.store.Upsert(ctx, account); err != nil {
		return err
	}
	if err := c.flags.SetCurrentAccountID(ctx, account.ID); err != nil {
		return err
	}
	if remember {
		if err := c.flags.SetFastPath(ctx, account.Token, account); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		// A sign-out landed between the writes and the commit. Restore the
		// signed-out durable state before discarding the result.
		_ = c.flags.ClearCurrentAccountID(ctx)
		if remember {
			_ = c.flags.ClearFastPath(ctx)
		}
		return ErrStaleResult
	}
	c.session = Session{CurrentAccountID: account.ID, Authenticated: true}
	c.mu.Unlock()

	c.openGate()
	c.metricInc(MetricLoginSuccess)
	c.audit.emit(ctx, auditEventLoginSuccess, account.ID, true, nil, nil)
	return nil
}

// BeginLogin performs primary-credential authentication. Three outcomes:
// the session is established immediately (no second factor required), a
// [ChallengeFlow] is returned for the UI to drive, or an error. A
// single-method WebAuthn challenge is attempted eagerly before returning; if
// it succeeds the session is established as well.
func (c *Controller) BeginLogin(ctx context.Context, username, password string, remember bool) (*LoginResult, error) {
	resp, err := c.svc.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return nil, ErrIdentityUnavailable
		}
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			c.metricInc(MetricLoginFailure)
			c.audit.emit(ctx, auditEventLoginFailure, "", false, ErrInvalidCredentials, map[string]string{
				"identifier": username,
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !resp.Requires2FA {
		account := accountFromIdentity(resp.Account, resp.Token, time.Now())
		if err := c.loginMaybeRemembered(ctx, account, remember); err != nil {
			return nil, err
		}
		return &LoginResult{Authenticated: true, Account: account}, nil
	}

	flow := newChallengeFlow(c.svc, c.authenticator, c.cfg.Challenge, resp.TempToken, resp.Methods, c.challengeNotify(username))
	c.metricInc(MetricChallengeStarted)
	c.audit.emit(ctx, auditEventChallengeStarted, "", true, nil, map[string]string{
		"identifier": username,
		"context":    "login",
	})

	// Auto-advance; a lone WebAuthn method runs its ceremony here.
	_ = flow.Start(ctx)
	if result, ok := flow.Result(); ok {
		if err := c.loginMaybeRemembered(ctx, result.Account, remember); err != nil {
			return nil, err
		}
		return &LoginResult{Authenticated: true, Account: result.Account}, nil
	}
	return &LoginResult{Flow: flow}, nil
}

func (c *Controller) loginMaybeRemembered(ctx context.Context, account Account, remember bool) error {
	if remember {
		return c.LoginRemembered(ctx, account)
	}
	return c.Login(ctx, account)
}

// SignUp creates a new account and returns its two-factor provisioning
// bundle (TOTP secret, QR code, backup codes) for the UI to render. It does
// not establish a session; the caller signs in afterwards.
func (c *Controller) SignUp(ctx context.Context, name, username, password string) (*SignupResult, error) {
	resp, err := c.svc.Signup(ctx, name, username, password)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return nil, ErrIdentityUnavailable
		}
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("signup rejected for %q", username)
	}
	c.metricInc(MetricSignupSuccess)
	c.audit.emit(ctx, auditEventSignupSuccess, resp.UserID, true, nil, nil)
	return &SignupResult{UserID: resp.UserID, TwoFASetup: resp.TwoFASetup}, nil
}

// SwitchAccount re-activates a cached account without credentials, gated
// only on its token still validating. On validation failure the account is
// evicted from the store and the switch fails. While a sign-out intent is
// pending the switch is refused: the intent's challenge concerns the
// current account, and changing it mid-confirmation inverts what the user
// is about to approve.
func (c *Controller) SwitchAccount(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return ErrSignOutPending
	}
	c.mu.Unlock()

	account, ok := c.store.Get(id)
	if !ok {
		return ErrAccountNotFound
	}

	if !c.verifyToken(ctx, account.Token) {
		if err := c.store.Remove(ctx, id); err != nil {
			return err
		}
		c.metricInc(MetricSwitchFailure)
		c.audit.emit(ctx, auditEventSwitchFailure, id, false, ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	if err := c.applyLogin(ctx, account, false, c.currentEpoch()); err != nil {
		return err
	}
	c.metricInc(MetricSwitchSuccess)
	return nil
}

// RemoveAccount deletes an account from the local store. Removing the
// current session's account behaves as an immediately-confirmed single
// sign-out: removal is already an explicit, authenticated action, so no
// fresh challenge is required.
func (c *Controller) RemoveAccount(ctx context.Context, id string) error {
	c.mu.Lock()
	isCurrent := c.session.Authenticated && c.session.CurrentAccountID == id
	c.mu.Unlock()

	if err := c.store.Remove(ctx, id); err != nil {
		return err
	}
	c.metricInc(MetricAccountRemoved)
	c.audit.emit(ctx, auditEventAccountRemoved, id, true, nil, nil)

	if !isCurrent {
		return nil
	}
	return c.completeSingleSignOut(ctx, id)
}

// verifyToken runs the validator and records the outcome.
func (c *Controller) verifyToken(ctx context.Context, token string) bool {
	valid := c.validator.Verify(ctx, token)
	if valid {
		c.metricInc(MetricTokenCheckValid)
	} else {
		c.metricInc(MetricTokenCheckInvalid)
	}
	return valid
}

func (c *Controller) challengeNotify(identifier string) func(event string, success bool, err error) {
	return func(event string, success bool, err error) {
		switch event {
		case auditEventChallengeSucceeded:
			c.metricInc(MetricChallengeSuccess)
		case auditEventChallengeAttemptFailed:
			c.metricInc(MetricChallengeFailure)
		case auditEventChallengeFailed:
			switch {
			case errors.Is(err, ErrChallengeAttemptsExceeded):
				c.metricInc(MetricChallengeAttemptsExceeded)
			case errors.Is(err, ErrWebAuthnUnsupported):
				c.metricInc(MetricWebAuthnUnsupported)
			}
		}
		c.audit.emit(context.Background(), event, "", success, err, map[string]string{
			"identifier": identifier,
		})
	}
}
