package sessionkit

import (
	"time"

	"github.com/nimbusmail/sessionkit/identity"
)

// Account is one identity the device has authenticated as. Records are owned
// by [AccountStore]; id is unique within the store and LastLogin always
// reflects the most recent successful login as that identity.
type Account struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	LastLogin time.Time `json:"lastLoginTimestamp"`
}

// accountFromIdentity builds an Account from a verification result.
func accountFromIdentity(info identity.UserInfo, token string, now time.Time) Account {
	return Account{
		ID:        info.ID,
		Username:  info.Username,
		Email:     info.Email,
		Name:      info.Name,
		Token:     token,
		LastLogin: now,
	}
}

// Session is the at-most-one-per-process authentication state. When
// Authenticated is true, CurrentAccountID references an account present in
// the store.
type Session struct {
	CurrentAccountID string `json:"currentAccountId,omitempty"`
	Authenticated    bool   `json:"authenticated"`
}

// SignOutScope selects how much a confirmed sign-out clears.
type SignOutScope uint8

const (
	// ScopeSingleAccount signs out the current account only; its record stays
	// in the store for one-tap re-login.
	ScopeSingleAccount SignOutScope = iota
	// ScopeAllAccounts empties the store and clears every recovery flag.
	ScopeAllAccounts
)

func (s SignOutScope) String() string {
	switch s {
	case ScopeSingleAccount:
		return "single"
	case ScopeAllAccounts:
		return "all"
	default:
		return "unknown"
	}
}

// PendingSignOutIntent gates sign-out behind a fresh second-factor proof.
// It exists from the moment sign-out is requested until the confirming
// challenge succeeds or the user cancels. AccountID pins the account the
// intent was issued for; confirmation signs out that account, not whichever
// account happens to be current at confirm time.
type PendingSignOutIntent struct {
	ID        string
	Scope     SignOutScope
	AccountID string
}

// ResolverOutcome is the terminal state of the startup auto-login chain.
type ResolverOutcome uint8

const (
	// OutcomeUnauthenticated means every recovery step failed or was
	// unavailable. Not an error.
	OutcomeUnauthenticated ResolverOutcome = iota
	// OutcomeFastPath means the stay-signed-in token replay succeeded.
	OutcomeFastPath
	// OutcomeLegacyCredentials means the deprecated raw-credential replay
	// succeeded.
	OutcomeLegacyCredentials
	// OutcomeLastActive means the last-active-account token validated.
	OutcomeLastActive
)

func (o ResolverOutcome) String() string {
	switch o {
	case OutcomeFastPath:
		return "fast_path"
	case OutcomeLegacyCredentials:
		return "legacy_credentials"
	case OutcomeLastActive:
		return "last_active"
	default:
		return "unauthenticated"
	}
}

// SignOutResult reports what a sign-out request did.
type SignOutResult struct {
	// Completed is true when sign-out finished immediately because no second
	// factor is configured. When false, Flow carries the challenge the
	// caller must complete before ConfirmSignOut.
	Completed bool
	Flow      *ChallengeFlow
}

// LoginResult is returned by [Controller.BeginLogin]. Either the session is
// established (Authenticated true) or Flow carries the pending second-factor
// challenge.
type LoginResult struct {
	Authenticated bool
	Account       Account
	Flow          *ChallengeFlow
}

// SignupResult surfaces the two-factor provisioning bundle issued at account
// creation for the UI to render (QR code, backup code sheet).
type SignupResult struct {
	UserID     string
	TwoFASetup identity.TwoFASetup
}
