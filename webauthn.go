package sessionkit

import (
	"context"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
)

// Authenticator abstracts the platform's hardware-key capability. Platforms
// without one return Supported() == false and the challenge flow skips
// straight to the other methods.
type Authenticator interface {
	// Supported reports whether this platform can produce assertions at all.
	Supported() bool
	// Assert signs the server-issued challenge and returns the credential
	// assertion response in its standard JSON form.
	Assert(ctx context.Context, options *protocol.CredentialAssertion) (json.RawMessage, error)
}

// UnsupportedAuthenticator is the Authenticator for platforms without a
// security-key capability.
type UnsupportedAuthenticator struct{}

// Supported always reports false.
func (UnsupportedAuthenticator) Supported() bool { return false }

// Assert always fails with ErrWebAuthnUnsupported.
func (UnsupportedAuthenticator) Assert(context.Context, *protocol.CredentialAssertion) (json.RawMessage, error) {
	return nil, ErrWebAuthnUnsupported
}
