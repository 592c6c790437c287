package domain

import "context"

// UnlockCache remembers markets whose paywall was already cleared.
// Get reports false for missing, expired, or unreadable records.
type UnlockCache interface {
	Get(ctx context.Context, marketID string) (UnlockedResult, bool)
	Put(ctx context.Context, marketID string, result UnlockedResult) error
}
