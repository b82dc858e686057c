package keystore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by [Store.Get] when the key has no value.
	ErrNotFound = errors.New("keystore: key not found")
	// ErrUnavailable wraps transport failures of the storage backend.
	ErrUnavailable = errors.New("keystore: backend unavailable")
)

// Store is a durable string-keyed key/value collection. Set and Delete must be
// visible to a subsequent Get as soon as they return (write-through, no
// buffering).
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
