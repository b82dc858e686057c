package sessionkit

import "errors"

var (
	// ErrControllerNotReady is returned when a Controller is used before Build.
	ErrControllerNotReady = errors.New("controller not initialized")
	// ErrNotAuthenticated is returned by operations that require a current session.
	ErrNotAuthenticated = errors.New("no authenticated session")
	// ErrInvalidCredentials is returned when the identity service rejects a
	// username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSecondFactorRequired signals that the requested action needs a fresh
	// second-factor confirmation before it can complete.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrNoPendingSignOut is returned by ConfirmSignOut and CancelSignOut when
	// no sign-out intent exists.
	ErrNoPendingSignOut = errors.New("no pending sign-out intent")
	// ErrSignOutPending is returned when a new sign-out is requested while one
	// is already awaiting confirmation.
	ErrSignOutPending = errors.New("sign-out already pending confirmation")
	// ErrAccountNotFound is returned when an account id is not in the store.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenInvalid is returned when a cached token no longer validates.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrStaleResult marks a late operation result discarded because the user
	// terminated the session it would have applied to.
	ErrStaleResult = errors.New("stale result discarded")
	// ErrResolverAlreadyRan is wrapped into the guarded-no-op result of a
	// second startup resolution within one process lifetime.
	ErrResolverAlreadyRan = errors.New("auto-login already resolved")

	// ErrChallengeInvalid is returned for submissions against a challenge
	// that is not accepting input (wrong state, cancelled, or consumed).
	ErrChallengeInvalid = errors.New("challenge invalid")
	// ErrChallengeCodeInvalid is returned when the identity service rejects a
	// TOTP or backup code. Consumed backup codes land here too.
	ErrChallengeCodeInvalid = errors.New("invalid verification code")
	// ErrChallengeCodeMalformed is returned before any network call when the
	// submitted code has the wrong shape for the method.
	ErrChallengeCodeMalformed = errors.New("malformed verification code")
	// ErrChallengeAttemptsExceeded terminates a challenge after the configured
	// number of failed submissions.
	ErrChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	// ErrChallengeMethodUnavailable is returned when the selected method is not
	// offered by the pending challenge.
	ErrChallengeMethodUnavailable = errors.New("challenge method unavailable")
	// ErrWebAuthnUnsupported is the terminal per-method failure for platforms
	// without an authenticator capability. Other methods remain selectable.
	ErrWebAuthnUnsupported = errors.New("webauthn not supported on this platform")
	// ErrIdentityUnavailable is surfaced on explicit user actions when the
	// identity service cannot be reached; the action may be retried.
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)
