// Package storage holds raw document bytes. Keys are content-addressed by
// the caller, so identical bytes map to one stored object.
package storage

import "context"

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
