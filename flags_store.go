package sessionkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimbusmail/sessionkit/keystore"
)

// Durable recovery keys. accountsKey lives in account_store.go; everything
// else below is owned by recoveryFlags.
const (
	keyCurrentUser      = "currentUser"
	keyCurrentAccountID = "currentAccountId"
	keyStaySignedIn     = "stayLoggedIn"
	keyCachedToken      = "cachedToken"
	keyLegacyCreds      = "legacyCredentials"
)

// recoveryFlags is the typed view over the durable recovery entries: the
// stay-signed-in fast path (flag + token + account snapshot), the
// current-account pointer, and the deprecated raw-credential cache.
type recoveryFlags struct {
	kv keystore.Store
}

type legacyCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func newRecoveryFlags(kv keystore.Store) *recoveryFlags {
	return &recoveryFlags{kv: kv}
}

// FastPath returns the cached token and account snapshot when the
// stay-signed-in flag is set and both artifacts are present.
func (f *recoveryFlags) FastPath(ctx context.Context) (string, Account, bool, error) {
	flag, err := f.kv.Get(ctx, keyStaySignedIn)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", Account{}, false, nil
		}
		return "", Account{}, false, err
	}
	if flag != "true" {
		return "", Account{}, false, nil
	}

	token, err := f.kv.Get(ctx, keyCachedToken)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", Account{}, false, nil
		}
		return "", Account{}, false, err
	}

	raw, err := f.kv.Get(ctx, keyCurrentUser)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", Account{}, false, nil
		}
		return "", Account{}, false, err
	}
	var snapshot Account
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return "", Account{}, false, fmt.Errorf("decode account snapshot: %w", err)
	}
	return token, snapshot, true, nil
}

// SetFastPath records the stay-signed-in opt-in with its token and minimal
// account snapshot.
func (f *recoveryFlags) SetFastPath(ctx context.Context, token string, account Account) error {
	snapshot, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account snapshot: %w", err)
	}
	if err := f.kv.Set(ctx, keyStaySignedIn, "true"); err != nil {
		return err
	}
	if err := f.kv.Set(ctx, keyCachedToken, token); err != nil {
		return err
	}
	return f.kv.Set(ctx, keyCurrentUser, string(snapshot))
}

// ClearFastPath removes the stay-signed-in flag and its artifacts.
func (f *recoveryFlags) ClearFastPath(ctx context.Context) error {
	return f.kv.Delete(ctx, keyStaySignedIn, keyCachedToken, keyCurrentUser)
}

// CurrentAccountID returns the durable current-account pointer, or "".
func (f *recoveryFlags) CurrentAccountID(ctx context.Context) (string, error) {
	id, err := f.kv.Get(ctx, keyCurrentAccountID)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (f *recoveryFlags) SetCurrentAccountID(ctx context.Context, id string) error {
	return f.kv.Set(ctx, keyCurrentAccountID, id)
}

func (f *recoveryFlags) ClearCurrentAccountID(ctx context.Context) error {
	return f.kv.Delete(ctx, keyCurrentAccountID)
}

// LegacyCredentials returns the deprecated raw-credential cache, if present.
// Nothing in this codebase writes this key; it exists only on installs
// migrated from the old client.
func (f *recoveryFlags) LegacyCredentials(ctx context.Context) (legacyCredentials, bool, error) {
	raw, err := f.kv.Get(ctx, keyLegacyCreds)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return legacyCredentials{}, false, nil
		}
		return legacyCredentials{}, false, err
	}
	var creds legacyCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		// Unreadable legacy state is dead weight; report absent.
		return legacyCredentials{}, false, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return legacyCredentials{}, false, nil
	}
	return creds, true, nil
}

func (f *recoveryFlags) ClearLegacyCredentials(ctx context.Context) error {
	return f.kv.Delete(ctx, keyLegacyCreds)
}

// ClearAll removes every recovery entry. Used on full sign-out.
func (f *recoveryFlags) ClearAll(ctx context.Context) error {
	return f.kv.Delete(ctx,
		keyStaySignedIn,
		keyCachedToken,
		keyCurrentUser,
		keyCurrentAccountID,
		keyLegacyCreds,
	)
}
