package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/healthagent/internal/domain"
)

var ErrNotFound = errors.New("not found")

// ResultStore is the port every storage adapter implements. Appends may run
// concurrently with reads.
type ResultStore interface {
	Append(ctx context.Context, r domain.CheckResult) error
	// Query returns statistics over the trailing window ending now.
	Query(ctx context.Context, name string, window time.Duration) (domain.Snapshot, error)
	// Latest returns ErrNotFound when the target has no results yet.
	Latest(ctx context.Context, name string) (domain.CheckResult, error)
	// Prune deletes results checked before olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	// Compact reclaims storage freed by Prune.
	Compact(ctx context.Context) error
	Close() error
}
