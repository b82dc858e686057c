package identity

import (
	"context"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
)

// Second-factor method names as the identity service spells them.
const (
	MethodTOTP       = "totp"
	MethodWebAuthn   = "webauthn"
	MethodBackupCode = "backup"
)

// UserInfo is the account identity carried in login and verification
// responses. It never includes tokens.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// MethodAvailability reports which second-factor methods the service will
// accept for a pending challenge.
type MethodAvailability struct {
	TOTP       bool `json:"totp"`
	WebAuthn   bool `json:"webauthn"`
	BackupCode bool `json:"backup"`
}

// None reports whether no method is available.
func (m MethodAvailability) None() bool {
	return !m.TOTP && !m.WebAuthn && !m.BackupCode
}

// Count returns the number of available methods.
func (m MethodAvailability) Count() int {
	n := 0
	if m.TOTP {
		n++
	}
	if m.WebAuthn {
		n++
	}
	if m.BackupCode {
		n++
	}
	return n
}

// LoginResponse is returned by [Service.Login] and [Service.Reauth]. Either
// Token+Account are set, or Requires2FA is true and TempToken+Methods
// describe the pending challenge.
type LoginResponse struct {
	Token   string   `json:"token,omitempty"`
	Account UserInfo `json:"account,omitempty"`

	Requires2FA bool               `json:"requires2FA,omitempty"`
	TempToken   string             `json:"tempToken,omitempty"`
	Methods     MethodAvailability `json:"availableMethods,omitempty"`
}

// TwoFASetup is the provisioning bundle issued at signup: the shared TOTP
// secret, a QR code URL encoding it, and the initial set of single-use
// backup codes.
type TwoFASetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

// SignupResponse is returned by [Service.Signup].
type SignupResponse struct {
	Success    bool       `json:"success"`
	UserID     string     `json:"userId"`
	TwoFASetup TwoFASetup `json:"twoFASetup"`
}

// VerifyRequest carries one second-factor proof for a pending challenge.
// Exactly one of Code or Assertion is set, matching Method.
type VerifyRequest struct {
	TempToken     string          `json:"tempToken"`
	Method        string          `json:"method"`
	Code          string          `json:"code,omitempty"`
	SessionHandle string          `json:"sessionHandle,omitempty"`
	Assertion     json.RawMessage `json:"assertion,omitempty"`
}

// VerifyResponse is the successful result of second-factor verification:
// a full session token plus the account it authenticates.
type VerifyResponse struct {
	Token   string   `json:"token"`
	Account UserInfo `json:"account"`
}

// WebAuthnChallenge is the begin-step result for a WebAuthn verification:
// a one-time server challenge in standard credential-request form plus the
// opaque handle that ties the eventual assertion back to it.
type WebAuthnChallenge struct {
	SessionHandle string                       `json:"sessionHandle"`
	Options       protocol.CredentialAssertion `json:"options"`
}

// DeleteChallenge is returned by [Service.AccountDeleteInitiate].
type DeleteChallenge struct {
	ChallengeToken       string `json:"challengeToken"`
	BackupCodesAvailable bool   `json:"backupCodesAvailable"`
}

// Service is the identity-service surface the session core depends on.
// The HTTP implementation is [Client]; tests substitute fakes.
type Service interface {
	Login(ctx context.Context, username, password string) (*LoginResponse, error)
	Signup(ctx context.Context, name, username, password string) (*SignupResponse, error)
	Verify2FA(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	VerifyToken(ctx context.Context, token string) (bool, error)
	BeginWebAuthn(ctx context.Context, tempToken string) (*WebAuthnChallenge, error)
	Reauth(ctx context.Context, token string) (*LoginResponse, error)
	AccountDeleteInitiate(ctx context.Context, token string) (*DeleteChallenge, error)
	AccountDeleteConfirm(ctx context.Context, challengeToken, method, code string) error
}
