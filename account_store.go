package sessionkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nimbusmail/sessionkit/keystore"
)

const accountsKey = "accounts"

// AccountStore is the durable, id-keyed collection of accounts the device has
// authenticated as. Every mutation writes through to the keystore before
// returning; the in-memory slice preserves insertion order so the account
// switcher renders stably within a process.
type AccountStore struct {
	kv keystore.Store

	mu       sync.Mutex
	accounts []Account
	loaded   bool
}

// NewAccountStore wraps kv. Call Load before first use.
func NewAccountStore(kv keystore.Store) *AccountStore {
	return &AccountStore{kv: kv}
}

// Load reads the persisted collection. A missing key yields an empty store.
func (s *AccountStore) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, accountsKey)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			s.mu.Lock()
			s.accounts = nil
			s.loaded = true
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("load accounts: %w", err)
	}

	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	s.mu.Lock()
	s.accounts = accounts
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// List returns a copy of the accounts in stable order.
func (s *AccountStore) List() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Get returns the account with the given id.
func (s *AccountStore) Get(id string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Upsert inserts account or replaces the record with the same id in place.
// Upserting an identical record is a no-op that still round-trips storage.
func (s *AccountStore) Upsert(ctx context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, a := range s.accounts {
		if a.ID == account.ID {
			s.accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, account)
	}
	return s.persistLocked(ctx)
}

// Remove deletes the account with the given id. Removing an absent id is a
// no-op, not an error.
func (s *AccountStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.accounts {
		if a.ID == id {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			return s.persistLocked(ctx)
		}
	}
	return nil
}

// Clear empties the store.
func (s *AccountStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = nil
	return s.persistLocked(ctx)
}

// Persist forces a durable write of the current collection.
func (s *AccountStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *AccountStore) persistLocked(ctx context.Context) error {
	encoded, err := json.Marshal(s.accounts)
	if err != nil {
		return fmt.Errorf("persist accounts: %w", err)
	}
	if err := s.kv.Set(ctx, accountsKey, string(encoded)); err != nil {
		return fmt.Errorf("persist accounts: %w", err)
	}
	return nil
}

// mostRecentOther returns the account with the highest LastLogin whose id is
// not excludeID.
func (s *AccountStore) mostRecentOther(excludeID string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best Account
	found := false
	for _, a := range s.accounts {
		if a.ID == excludeID {
			continue
		}
		if !found || a.LastLogin.After(best.LastLogin) {
			best = a
			found = true
		}
	}
	return best, found
}
