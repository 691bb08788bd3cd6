// Package sequence hands out per-scope, per-day queue numbers outside the
// reservation store's own transaction.
package sequence

import (
	"context"
	"fmt"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
)

// Allocator returns the next queue number for a scope on a business day. Two
// concurrent callers for the same scope and day never receive the same number.
type Allocator interface {
	Next(ctx context.Context, scopeID string, day store.Day) (int, error)
}

// Seeder reports the highest number already persisted, used to initialise a
// fresh counter.
type Seeder interface {
	MaxQueueNumber(ctx context.Context, scopeID string, day store.Day) (int, error)
}

func Key(scopeID string, day store.Day) string {
	return fmt.Sprintf("reservation:seq:%s:%s", scopeID, day.Key())
}
