// Package dedupe remembers which events were already applied so re-delivered
// swaps are not counted twice.
package dedupe

import "context"

// Deduper marks event ids as seen.
type Deduper interface {
	// Seen marks id and reports whether it was already marked.
	Seen(ctx context.Context, id string) (bool, error)
	// Release forgets id so the event can be applied again after a failure.
	Release(ctx context.Context, id string) error
}

// Nop never reports duplicates.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Nop) Release(context.Context, string) error { return nil }
