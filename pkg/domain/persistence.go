package domain

import "context"

// Driver is the minimal abstraction over durable collection storage. Each
// collection is persisted as a single serialized blob under a fixed key; the
// full collection is the unit of every write. Load returns ok=false when the
// key has never been written, which callers treat as an empty collection.
type Driver interface {
	Load(ctx context.Context, key string) (payload []byte, ok bool, err error)
	Save(ctx context.Context, key string, payload []byte) error
	Close() error
}
