// Package state provides the shared key/value store visible to every node
// during a plan run.
package state

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key has never been set.
var ErrKeyNotFound = errors.New("state key not found")

// Store is the shared mutable state of a plan run. Implementations must be
// safe for concurrent use: simultaneously executing nodes read and write the
// store without any coordination from the engine.
type Store interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) (map[string]any, error)
	Close() error
}
