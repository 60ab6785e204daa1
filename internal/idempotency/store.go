// Package idempotency guards against reprocessing the same logical action.
// The file store is the default backend; a Postgres backend can be selected
// with a DSN. Both close the check-then-act race of the naive design: a
// handler first claims a key atomically, performs its side effects, then
// confirms the claim with MarkProcessed. A claim that cannot be confirmed is
// released so a later retry can reprocess the action.
package idempotency

import "context"

// Store maps action keys to their processed state.
type Store interface {
	// IsProcessed reports whether the key was confirmed processed. Unknown
	// keys report false, never an error.
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Claim atomically takes ownership of a key. It returns false when the
	// key is already processed or claimed by another in-flight invocation.
	Claim(ctx context.Context, key string) (bool, error)

	// Release drops an unconfirmed claim.
	Release(ctx context.Context, key string) error

	// MarkProcessed confirms the key as processed and persists it. Once
	// marked, a key never reverts within the store's lifetime.
	MarkProcessed(ctx context.Context, key string) error

	Close()
}
