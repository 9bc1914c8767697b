// Package secrets implements the secure secret store: platform-level
// encrypted persistence for the device registration and integration
// credentials. Two backends exist: an encrypted local file store for the
// desktop install and a Vault KV store for the hosted deployment.
package secrets

import "context"

// Store is the secure secret store.
//
// Acquire hands the decrypted plaintext to fn and zeroes the buffer on every
// exit path, including panics and fn errors; plaintext never escapes the
// callback unless fn copies it out deliberately. Acquire calls fn(nil) when
// no record exists for the key, so absence and presence share one code path.
type Store interface {
	Acquire(ctx context.Context, key string, fn func(plaintext []byte) error) error
	Put(ctx context.Context, key string, plaintext []byte) error
	Delete(ctx context.Context, key string) error
}
