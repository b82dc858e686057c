package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable wraps transport-level failures: connection errors, timeouts,
// and 5xx responses. The session core maps it to "invalid/unknown" during
// silent recovery and to a retryable error during explicit actions.
var ErrUnavailable = errors.New("identity: service unavailable")

// APIError is a structured rejection from the identity service (4xx with an
// error body). It is distinct from [ErrUnavailable]: the service answered,
// and the answer was no.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("identity: %s", e.Message)
}

const maxResponseBytes = 1 << 20

// Client is the HTTP implementation of [Service].
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient returns a Client for the identity service at baseURL. A nil
// httpClient gets a 10s-timeout default.
func NewClient(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Login performs primary-credential authentication.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.post(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates an account and returns the two-factor provisioning bundle.
func (c *Client) Signup(ctx context.Context, name, username, password string) (*SignupResponse, error) {
	var out SignupResponse
	err := c.post(ctx, "/auth/signup", map[string]string{
		"name":     name,
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify2FA submits one second-factor proof for a pending challenge.
func (c *Client) Verify2FA(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/auth/verify2fa", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyToken asks whether token is still accepted. It maps only a clean
// {"valid": false} answer to false; transport failures return an error so
// the caller decides the fail-closed policy.
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.post(ctx, "/auth/verifyToken", map[string]string{"token": token}, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// BeginWebAuthn fetches a one-time assertion challenge for the pending
// second-factor verification identified by tempToken.
func (c *Client) BeginWebAuthn(ctx context.Context, tempToken string) (*WebAuthnChallenge, error) {
	var out WebAuthnChallenge
	if err := c.post(ctx, "/auth/webauthn/begin", map[string]string{"tempToken": tempToken}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reauth opens a fresh second-factor challenge for an already-authenticated
// session; used to gate destructive actions behind renewed user presence.
func (c *Client) Reauth(ctx context.Context, token string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.post(ctx, "/auth/reauth", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountDeleteInitiate starts the account deletion handshake.
func (c *Client) AccountDeleteInitiate(ctx context.Context, token string) (*DeleteChallenge, error) {
	var out DeleteChallenge
	if err := c.post(ctx, "/accountDelete/initiate", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountDeleteConfirm completes the handshake with a TOTP or backup code.
func (c *Client) AccountDeleteConfirm(ctx context.Context, challengeToken, method, code string) error {
	var out struct {
		Success bool `json:"success"`
	}
	err := c.post(ctx, "/accountDelete/confirm", map[string]string{
		"challengeToken": challengeToken,
		"method":         method,
		"code":           code,
	}, &out)
	if err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: http.StatusOK, Message: "account deletion rejected"}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identity: encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identity: build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrUnavailable, path, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrUnavailable, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("identity: decode %s response: %w", path, err)
	}
	return nil
}
