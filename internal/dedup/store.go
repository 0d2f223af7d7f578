package dedup

import (
	"context"
	"fmt"
)

// DefaultRetention is the number of keys a store keeps before evicting the oldest.
const DefaultRetention = 4000

// Store records which ProcessedKeys have already been handled.
// Implementations must make TryMark atomic with respect to concurrent callers,
// including other processes sharing the same backing storage.
type Store interface {
	// HasBeenProcessed reports whether key was recorded.
	HasBeenProcessed(ctx context.Context, key string) (bool, error)
	// MarkProcessed records key. Marking an existing key is not an error.
	MarkProcessed(ctx context.Context, key string) error
	// TryMark records key and reports true only if it was not recorded before.
	TryMark(ctx context.Context, key string) (bool, error)
	Close() error
}

// Mapper remembers which published message replaced a source message.
type Mapper interface {
	Put(ctx context.Context, sourceKey string, publishedID int) error
	// Get returns the published id and whether a mapping exists.
	Get(ctx context.Context, sourceKey string) (int, bool, error)
}

// StoreError wraps a backend failure. Callers treat it as "skip the post".
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("dedup %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// trimOldest drops entries from the front of keys until at most limit remain.
func trimOldest(keys []string, limit int) []string {
	if limit <= 0 || len(keys) <= limit {
		return keys
	}
	return append([]string(nil), keys[len(keys)-limit:]...)
}
