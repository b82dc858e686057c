package sessionkit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nimbusmail/sessionkit/identity"
)

// ChallengeMethod identifies one second-factor verification method.
type ChallengeMethod uint8

const (
	// MethodNone means no method has been selected yet.
	MethodNone ChallengeMethod = iota
	// MethodTOTP is the time-based numeric code.
	MethodTOTP
	// MethodWebAuthn is the hardware security key assertion.
	MethodWebAuthn
	// MethodBackupCode is the single-use alphanumeric fallback code.
	MethodBackupCode
)

func (m ChallengeMethod) String() string {
	switch m {
	case MethodTOTP:
		return identity.MethodTOTP
	case MethodWebAuthn:
		return identity.MethodWebAuthn
	case MethodBackupCode:
		return identity.MethodBackupCode
	default:
		return "none"
	}
}

// ChallengeState is the lifecycle position of a ChallengeFlow.
type ChallengeState uint8

const (
	// ChallengeIdle is the state before Start.
	ChallengeIdle ChallengeState = iota
	// ChallengeMethodSelection waits for the user to pick among multiple
	// available methods.
	ChallengeMethodSelection
	// ChallengeAwaitingInput waits for a typed code for the selected method.
	ChallengeAwaitingInput
	// ChallengeVerifying has a submission in flight.
	ChallengeVerifying
	// ChallengeSucceeded is terminal: Result carries the session token.
	ChallengeSucceeded
	// ChallengeFailed is terminal: attempts exhausted, no methods left, or
	// cancelled.
	ChallengeFailed
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeMethodSelection:
		return "method_selection"
	case ChallengeAwaitingInput:
		return "awaiting_input"
	case ChallengeVerifying:
		return "verifying"
	case ChallengeSucceeded:
		return "succeeded"
	case ChallengeFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ChallengeResult is the outcome of a successful verification: a full session
// token bound to the account it authenticates. The caller feeds it to
// [Controller.Login] (login-time challenge) or lets [Controller.ConfirmSignOut]
// consume it (sign-out re-verification).
type ChallengeResult struct {
	Token   string
	Account Account
}

// ChallengeFlow drives one second-factor verification against a pending
// challenge. It is created with the tempToken and method availability from
// the identity service and is never persisted: success, exhaustion, or
// cancellation destroys it.
//
// State transitions happen under the flow's lock; network calls run outside
// it, and a result arriving after Cancel is discarded rather than applied.
type ChallengeFlow struct {
	svc           identity.Service
	authenticator Authenticator
	cfg           ChallengeConfig
	notify        func(event string, success bool, err error)

	tempToken string

	mu        sync.Mutex
	methods   identity.MethodAvailability
	state     ChallengeState
	selected  ChallengeMethod
	attempts  int
	failure   error
	result    *ChallengeResult
	cancelled bool
}

func newChallengeFlow(
	svc identity.Service,
	authenticator Authenticator,
	cfg ChallengeConfig,
	tempToken string,
	methods identity.MethodAvailability,
	notify func(event string, success bool, err error),
) *ChallengeFlow {
	if authenticator == nil {
		authenticator = UnsupportedAuthenticator{}
	}
	if notify == nil {
		notify = func(string, bool, error) {}
	}
	return &ChallengeFlow{
		svc:           svc,
		authenticator: authenticator,
		cfg:           cfg,
		notify:        notify,
		tempToken:     tempToken,
		methods:       methods,
		state:         ChallengeIdle,
	}
}

// State returns the current lifecycle position.
func (f *ChallengeFlow) State() ChallengeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Methods returns the still-selectable methods. A method that failed
// terminally (unsupported platform) is removed.
func (f *ChallengeFlow) Methods() identity.MethodAvailability {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods
}

// SelectedMethod returns the active method, or MethodNone.
func (f *ChallengeFlow) SelectedMethod() ChallengeMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Result returns the verification outcome once the flow has succeeded.
func (f *ChallengeFlow) Result() (*ChallengeResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ChallengeSucceeded || f.result == nil {
		return nil, false
	}
	return f.result, true
}

// Err returns the terminal failure reason, if any.
func (f *ChallengeFlow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

// Start advances Idle to MethodSelection. When exactly one method is
// available it is selected immediately; if that method is WebAuthn the
// ceremony runs eagerly, since it needs no typed input.
func (f *ChallengeFlow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.cancelled || f.state != ChallengeIdle {
		f.mu.Unlock()
		return ErrChallengeInvalid
	}
	if f.methods.None() {
		f.state = ChallengeFailed
		f.failure = ErrChallengeMethodUnavailable
		f.mu.Unlock()
		return ErrChallengeMethodUnavailable
	}
	f.state = ChallengeMethodSelection
	single := f.methods.Count() == 1
	methods := f.methods
	f.mu.Unlock()

	if !single {
		return nil
	}
	switch {
	case methods.WebAuthn:
		return f.SelectMethod(ctx, MethodWebAuthn)
	case methods.TOTP:
		return f.SelectMethod(ctx, MethodTOTP)
	default:
		return f.SelectMethod(ctx, MethodBackupCode)
	}
}

// SelectMethod picks a method for input. Selecting WebAuthn runs the
// assertion ceremony immediately; the other methods move the flow to
// AwaitingInput.
func (f *ChallengeFlow) SelectMethod(ctx context.Context, method ChallengeMethod) error {
	f.mu.Lock()
	if f.cancelled || (f.state != ChallengeMethodSelection && f.state != ChallengeAwaitingInput) {
		f.mu.Unlock()
		return ErrChallengeInvalid
	}
	if !f.methodAvailableLocked(method) {
		f.mu.Unlock()
		return ErrChallengeMethodUnavailable
	}
	f.selected = method
	if method != MethodWebAuthn {
		f.state = ChallengeAwaitingInput
		f.mu.Unlock()
		return nil
	}
	f.state = ChallengeVerifying
	f.mu.Unlock()

	return f.runWebAuthn(ctx)
}

func (f *ChallengeFlow) methodAvailableLocked(method ChallengeMethod) bool {
	switch method {
	case MethodTOTP:
		return f.methods.TOTP
	case MethodWebAuthn:
		return f.methods.WebAuthn
	case MethodBackupCode:
		return f.methods.BackupCode
	default:
		return false
	}
}

// SubmitTOTP verifies a time-based numeric code. Wrong codes are retryable
// until the attempt cap; malformed input is rejected locally without
// consuming an attempt.
func (f *ChallengeFlow) SubmitTOTP(ctx context.Context, code string) (*ChallengeResult, error) {
	code = strings.TrimSpace(code)
	if err := f.beginSubmit(MethodTOTP); err != nil {
		return nil, err
	}
	if len(code) != f.cfg.TOTPDigits || !isDigits(code) {
		f.rollbackToInput()
		return nil, ErrChallengeCodeMalformed
	}
	resp, err := f.svc.Verify2FA(ctx, identity.VerifyRequest{
		TempToken: f.tempToken,
		Method:    identity.MethodTOTP,
		Code:      code,
	})
	return f.finishSubmit(resp, err)
}

// SubmitBackupCode verifies a single-use backup code. Input is uppercased
// before submission; a code the server has already consumed fails exactly
// like a wrong code.
func (f *ChallengeFlow) SubmitBackupCode(ctx context.Context, code string) (*ChallengeResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := f.beginSubmit(MethodBackupCode); err != nil {
		return nil, err
	}
	if len(code) != f.cfg.BackupCodeLength || !isAlnum(code) {
		f.rollbackToInput()
		return nil, ErrChallengeCodeMalformed
	}
	resp, err := f.svc.Verify2FA(ctx, identity.VerifyRequest{
		TempToken: f.tempToken,
		Method:    identity.MethodBackupCode,
		Code:      code,
	})
	return f.finishSubmit(resp, err)
}

// runWebAuthn fetches the assertion challenge, asks the platform
// authenticator to sign it, and submits the assertion. An unsupported
// platform fails this method only; remaining methods stay selectable.
func (f *ChallengeFlow) runWebAuthn(ctx context.Context) error {
	if !f.authenticator.Supported() {
		f.failMethodWebAuthn()
		return ErrWebAuthnUnsupported
	}

	begin, err := f.svc.BeginWebAuthn(ctx, f.tempToken)
	if err != nil {
		f.rollbackToSelection()
		if errors.Is(err, identity.ErrUnavailable) {
			return ErrIdentityUnavailable
		}
		return err
	}

	assertion, err := f.authenticator.Assert(ctx, &begin.Options)
	if err != nil {
		if errors.Is(err, ErrWebAuthnUnsupported) {
			f.failMethodWebAuthn()
			return ErrWebAuthnUnsupported
		}
		// Declined or failed ceremony counts as a failed attempt.
		_, ferr := f.finishSubmit(nil, &identity.APIError{Message: err.Error()})
		return ferr
	}

	resp, err := f.svc.Verify2FA(ctx, identity.VerifyRequest{
		TempToken:     f.tempToken,
		Method:        identity.MethodWebAuthn,
		SessionHandle: begin.SessionHandle,
		Assertion:     assertion,
	})
	_, ferr := f.finishSubmit(resp, err)
	return ferr
}

// Cancel destroys the flow. Any in-flight submission's eventual result is
// discarded rather than applied.
func (f *ChallengeFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ChallengeSucceeded || f.state == ChallengeFailed {
		return
	}
	f.cancelled = true
	f.state = ChallengeFailed
	f.failure = ErrChallengeInvalid
}

// beginSubmit moves the flow into Verifying for the given method,
// auto-selecting it when the flow is still in method selection.
func (f *ChallengeFlow) beginSubmit(method ChallengeMethod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return ErrChallengeInvalid
	}
	switch f.state {
	case ChallengeMethodSelection, ChallengeAwaitingInput:
	default:
		return ErrChallengeInvalid
	}
	if !f.methodAvailableLocked(method) {
		return ErrChallengeMethodUnavailable
	}
	f.selected = method
	f.state = ChallengeVerifying
	return nil
}

func (f *ChallengeFlow) rollbackToInput() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled && f.state == ChallengeVerifying {
		f.state = ChallengeAwaitingInput
	}
}

func (f *ChallengeFlow) rollbackToSelection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled && f.state == ChallengeVerifying {
		f.state = ChallengeMethodSelection
		f.selected = MethodNone
	}
}

// failMethodWebAuthn removes WebAuthn from the selectable set. When it was
// the only method left the whole flow fails.
func (f *ChallengeFlow) failMethodWebAuthn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods.WebAuthn = false
	if f.cancelled {
		return
	}
	f.selected = MethodNone
	if f.methods.None() {
		f.state = ChallengeFailed
		f.failure = ErrWebAuthnUnsupported
		f.notify(auditEventChallengeFailed, false, ErrWebAuthnUnsupported)
		return
	}
	f.state = ChallengeMethodSelection
}

// finishSubmit applies the verification response under the lock, counting
// failed attempts against the cap and discarding results that arrive after
// cancellation.
func (f *ChallengeFlow) finishSubmit(resp *identity.VerifyResponse, err error) (*ChallengeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled {
		return nil, ErrStaleResult
	}
	if f.state != ChallengeVerifying {
		return nil, ErrChallengeInvalid
	}

	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			// Transport failure: retryable, no attempt consumed.
			f.state = ChallengeAwaitingInput
			return nil, ErrIdentityUnavailable
		}
		f.attempts++
		if f.attempts >= f.cfg.MaxAttempts {
			f.state = ChallengeFailed
			f.failure = ErrChallengeAttemptsExceeded
			f.notify(auditEventChallengeFailed, false, ErrChallengeAttemptsExceeded)
			return nil, ErrChallengeAttemptsExceeded
		}
		f.state = ChallengeAwaitingInput
		f.notify(auditEventChallengeAttemptFailed, false, ErrChallengeCodeInvalid)
		return nil, ErrChallengeCodeInvalid
	}

	if resp == nil || resp.Token == "" {
		f.state = ChallengeAwaitingInput
		return nil, ErrChallengeCodeInvalid
	}

	result := &ChallengeResult{
		Token:   resp.Token,
		Account: accountFromIdentity(resp.Account, resp.Token, time.Now()),
	}
	f.result = result
	f.state = ChallengeSucceeded
	f.notify(auditEventChallengeSucceeded, true, nil)
	return result, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isAlnum(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return len(s) > 0
}
