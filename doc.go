// Package sessionkit is the session and multi-factor authentication core of a
// mobile mail client. It owns the set of locally cached accounts, the current
// session, startup session recovery, and the second-factor challenge flow used
// both at login time and to confirm destructive session actions (sign-out,
// account deletion).
//
// The UI layer talks to this package only through [Controller], constructed
// once per process via [Builder.Build]. Controller methods are safe to call
// from multiple goroutines; all shared state (accounts, session, durable
// recovery flags) is mutated by the Controller alone.
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [Controller], [Builder],
// [Config], [ChallengeFlow], and value types (Account, Session, AuditEvent,
// MetricsSnapshot). The remote identity-service client lives in the identity
// subpackage; the durable key/value layer lives in the keystore subpackage.
//
// # What this package must NOT do
//
//   - Render anything. It holds state machines, not screens.
//   - Call the identity service outside of Controller, ChallengeFlow, or
//     resolver methods (construction via Builder is allocation-only).
//   - Apply the result of an operation the user has since cancelled: a stale
//     auto-login or challenge success must never resurrect a terminated
//     session.
package sessionkit
