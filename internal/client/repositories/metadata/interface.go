// Package metadata is a small key/value store for client state that does not
// deserve its own table: last successful sync time, the device identifier,
// the sealed credential blob, and the sealing salt.
package metadata

import "context"

type Repository interface {
	// Get returns the value for key, or (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
