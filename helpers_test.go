package sessionkit

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nimbusmail/sessionkit/identity"
	"github.com/nimbusmail/sessionkit/keystore"
)

// fakeIdentity is a scripted identity.Service for controller and flow tests.
type fakeIdentity struct {
	mu sync.Mutex

	loginFunc  func(username, password string) (*identity.LoginResponse, error)
	loginCalls int

	signupResp *identity.SignupResponse
	signupErr  error

	verify2FAFunc  func(req identity.VerifyRequest) (*identity.VerifyResponse, error)
	verify2FACalls []identity.VerifyRequest

	validTokens      map[string]bool
	verifyTokenErr   error
	verifyTokenCalls []string

	webAuthnResp *identity.WebAuthnChallenge
	webAuthnErr  error

	reauthResp *identity.LoginResponse
	reauthErr  error

	deleteInitResp    *identity.DeleteChallenge
	deleteInitErr     error
	deleteConfirmErr  error
	deleteConfirmWant string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{validTokens: map[string]bool{}}
}

func (f *fakeIdentity) Login(_ context.Context, username, password string) (*identity.LoginResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, &identity.APIError{Status: 401, Message: "invalid credentials"}
	}
	return fn(username, password)
}

func (f *fakeIdentity) Signup(context.Context, string, string, string) (*identity.SignupResponse, error) {
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return f.signupResp, nil
}

func (f *fakeIdentity) Verify2FA(_ context.Context, req identity.VerifyRequest) (*identity.VerifyResponse, error) {
	f.mu.Lock()
	f.verify2FACalls = append(f.verify2FACalls, req)
	fn := f.verify2FAFunc
	f.mu.Unlock()
	if fn == nil {
		return nil, &identity.APIError{Status: 401, Message: "invalid code"}
	}
	return fn(req)
}

func (f *fakeIdentity) VerifyToken(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	f.verifyTokenCalls = append(f.verifyTokenCalls, token)
	f.mu.Unlock()
	if f.verifyTokenErr != nil {
		return false, f.verifyTokenErr
	}
	return f.validTokens[token], nil
}

func (f *fakeIdentity) BeginWebAuthn(context.Context, string) (*identity.WebAuthnChallenge, error) {
	if f.webAuthnErr != nil {
		return nil, f.webAuthnErr
	}
	if f.webAuthnResp == nil {
		return &identity.WebAuthnChallenge{SessionHandle: "wh-1"}, nil
	}
	return f.webAuthnResp, nil
}

func (f *fakeIdentity) Reauth(context.Context, string) (*identity.LoginResponse, error) {
	if f.reauthErr != nil {
		return nil, f.reauthErr
	}
	if f.reauthResp == nil {
		return &identity.LoginResponse{Token: "reauth-not-needed"}, nil
	}
	return f.reauthResp, nil
}

func (f *fakeIdentity) AccountDeleteInitiate(context.Context, string) (*identity.DeleteChallenge, error) {
	if f.deleteInitErr != nil {
		return nil, f.deleteInitErr
	}
	if f.deleteInitResp == nil {
		return &identity.DeleteChallenge{ChallengeToken: "del-1", BackupCodesAvailable: true}, nil
	}
	return f.deleteInitResp, nil
}

func (f *fakeIdentity) AccountDeleteConfirm(_ context.Context, _, _, code string) error {
	if f.deleteConfirmErr != nil {
		return f.deleteConfirmErr
	}
	if f.deleteConfirmWant != "" && code != f.deleteConfirmWant {
		return &identity.APIError{Status: 401, Message: "invalid code"}
	}
	return nil
}

func (f *fakeIdentity) tokenCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.verifyTokenCalls))
	copy(out, f.verifyTokenCalls)
	return out
}

func (f *fakeIdentity) totalLoginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeIdentity) total2FACalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verify2FACalls)
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Audit.Enabled = false
	return cfg
}

// newTestKeystore returns a miniredis-backed keystore that survives across
// controllers built on the same redis client.
func newTestKeystore(t *testing.T) (*keystore.RedisStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return keystore.NewRedisStore(client, "smc"), client
}

func newTestController(t *testing.T, svc identity.Service, cfg Config, kv keystore.Store) *Controller {
	t.Helper()
	if kv == nil {
		kv, _ = newTestKeystore(t)
	}
	c, err := New().
		WithConfig(cfg).
		WithKeystore(kv).
		WithIdentityService(svc).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func mustLogin(t *testing.T, c *Controller, account Account) {
	t.Helper()
	if err := c.Login(context.Background(), account); err != nil {
		t.Fatalf("Login(%s) failed: %v", account.ID, err)
	}
}
