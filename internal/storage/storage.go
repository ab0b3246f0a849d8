// Package storage is the durable client-local key/value store that survives
// reloads of one browsing context. Values never expire on their own.
package storage

import (
	"context"
	"errors"
)

// Well-known keys
const (
	GuestIDKey    = "ecom_guest_id"
	CredentialKey = "ecom_session"
)

// ErrNotFound is returned by Get when the key has no value
var ErrNotFound = errors.New("storage: key not found")

// Store defines the behaviour required by the session manager and cart store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetIfAbsent stores value only when key is empty and reports whether it did
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// GetOrCreate returns the value under key, storing the result of create when
// there is none. Concurrent callers agree on a single value.
func GetOrCreate(ctx context.Context, s Store, key string, create func() string) (string, error) {
	v, err := s.Get(ctx, key)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}

	if _, err := s.SetIfAbsent(ctx, key, create()); err != nil {
		return "", err
	}
	return s.Get(ctx, key)
}
