// Package identity is the wire client for the remote identity service. It
// covers primary-credential login, signup with two-factor provisioning,
// second-factor verification (TOTP, WebAuthn, backup code), bearer-token
// introspection, and the two-step account deletion handshake.
//
// [Service] is the interface the session core consumes; [Client] is the HTTP
// implementation. Transport failures surface as errors wrapping
// [ErrUnavailable] so callers can fail closed during silent recovery.
package identity
