package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), "sessionkit-test")
}

func TestLoginSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected an X-Request-Id header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["username"] != "ana" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(LoginResponse{
			Token:   "tok-123",
			Account: UserInfo{ID: "1", Username: "ana", Email: "ana@example.com"},
		})
	})

	resp, err := client.Login(context.Background(), "ana", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token != "tok-123" || resp.Account.ID != "1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Requires2FA {
		t.Fatal("expected no second-factor demand")
	}
}

func TestLoginRequires2FA(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LoginResponse{
			Requires2FA: true,
			TempToken:   "temp-1",
			Methods:     MethodAvailability{TOTP: true, BackupCode: true},
		})
	})

	resp, err := client.Login(context.Background(), "ana", "pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !resp.Requires2FA || resp.TempToken != "temp-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Methods.Count() != 2 || resp.Methods.WebAuthn {
		t.Fatalf("unexpected methods %+v", resp.Methods)
	}
}

func TestLoginRejectedMapsToAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials", "code": "AUTH001"})
	})

	_, err := client.Login(context.Background(), "ana", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "AUTH001" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("a structured rejection is not an availability failure")
	}
}

func TestServerErrorMapsToUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Login(context.Background(), "ana", "pw")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestTransportErrorMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewClient(srv.URL, srv.Client(), "")
	srv.Close() // connection refused from here on

	_, err := client.Login(context.Background(), "ana", "pw")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestVerifyToken(t *testing.T) {
	valid := map[string]bool{"tok-live": true}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]bool{"valid": valid[body["token"]]})
	})

	ok, err := client.VerifyToken(context.Background(), "tok-live")
	if err != nil || !ok {
		t.Fatalf("expected valid, got ok=%v err=%v", ok, err)
	}
	ok, err = client.VerifyToken(context.Background(), "tok-dead")
	if err != nil || ok {
		t.Fatalf("expected invalid, got ok=%v err=%v", ok, err)
	}
}

func TestVerify2FASendsProof(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.TempToken != "temp-1" || req.Method != MethodTOTP || req.Code != "123456" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(VerifyResponse{Token: "tok-123", Account: UserInfo{ID: "1"}})
	})

	resp, err := client.Verify2FA(context.Background(), VerifyRequest{
		TempToken: "temp-1",
		Method:    MethodTOTP,
		Code:      "123456",
	})
	if err != nil {
		t.Fatalf("Verify2FA failed: %v", err)
	}
	if resp.Token != "tok-123" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSignupDecodesProvisioningBundle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SignupResponse{
			Success: true,
			UserID:  "u-9",
			TwoFASetup: TwoFASetup{
				Secret:      "JBSWY3DP",
				QRCode:      "https://img.example/qr.png",
				BackupCodes: []string{"AAAA111111", "BBBB222222"},
			},
		})
	})

	resp, err := client.Signup(context.Background(), "Ana", "ana", "pw")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if resp.UserID != "u-9" || len(resp.TwoFASetup.BackupCodes) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAccountDeleteConfirmRejectsUnsuccessful(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": false})
	})

	err := client.AccountDeleteConfirm(context.Background(), "del-1", MethodTOTP, "123456")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
}

func TestMethodAvailability(t *testing.T) {
	if !(MethodAvailability{}).None() {
		t.Fatal("zero value must report none")
	}
	m := MethodAvailability{TOTP: true, WebAuthn: true, BackupCode: true}
	if m.None() || m.Count() != 3 {
		t.Fatalf("unexpected availability %+v", m)
	}
}
