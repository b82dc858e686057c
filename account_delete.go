package sessionkit

import (
	"context"
	"errors"
	"strings"

	"github.com/nimbusmail/sessionkit/identity"
)

// BeginDeleteAccount starts the server-side deletion handshake for the
// current account. Deletion is destructive, so the service issues a fresh
// challenge token that must be confirmed with a TOTP or backup code.
func (c *Controller) BeginDeleteAccount(ctx context.Context) (*identity.DeleteChallenge, error) {
	account, ok := c.CurrentAccount()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	resp, err := c.svc.AccountDeleteInitiate(ctx, account.Token)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return nil, ErrIdentityUnavailable
		}
		return nil, err
	}
	return resp, nil
}

// ConfirmDeleteAccount completes the deletion handshake. Only the code-based
// methods apply here; the deletion endpoint does not take assertions. On
// success the account is removed locally with RemoveAccount semantics.
func (c *Controller) ConfirmDeleteAccount(ctx context.Context, challengeToken string, method ChallengeMethod, code string) error {
	account, ok := c.CurrentAccount()
	if !ok {
		return ErrNotAuthenticated
	}

	code = strings.TrimSpace(code)
	switch method {
	case MethodTOTP:
		if len(code) != c.cfg.Challenge.TOTPDigits || !isDigits(code) {
			return ErrChallengeCodeMalformed
		}
	case MethodBackupCode:
		code = strings.ToUpper(code)
		if len(code) != c.cfg.Challenge.BackupCodeLength || !isAlnum(code) {
			return ErrChallengeCodeMalformed
		}
	default:
		return ErrChallengeMethodUnavailable
	}

	if err := c.svc.AccountDeleteConfirm(ctx, challengeToken, method.String(), code); err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return ErrIdentityUnavailable
		}
		var apiErr *identity.APIError
		if errors.As(err, &apiErr) {
			return ErrChallengeCodeInvalid
		}
		return err
	}

	c.metricInc(MetricAccountDeleted)
	c.audit.emit(ctx, auditEventAccountDeleted, account.ID, true, nil, nil)
	return c.RemoveAccount(ctx, account.ID)
}
