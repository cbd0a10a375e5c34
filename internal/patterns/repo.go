package patterns

import (
	"context"

	"github.com/miradorstack/pipeline-rca/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, stats models.FailureStats) error

// StoreStats implements Store.
func (f StoreFunc) StoreStats(ctx context.Context, stats models.FailureStats) error {
	return f(ctx, stats)
}
