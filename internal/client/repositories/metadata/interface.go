// Package metadata stores small key/value settings of the local replica,
// such as the pull watermark and the saved access token.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMany returns the values of the keys that exist.
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany writes every pair; callers wrap it in a transaction when the
	// pairs must land together.
	SetMany(ctx context.Context, pairs map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}
