// Package repository defines the blocklist store interface and errors.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/sift/internal/domain/model"
)

// Store provides read/write access to the blocklist table.
// Implementations must be safe for concurrent use.
type Store interface {
	// ListUserIDs returns every user_id in the blocklist, in datastore order.
	ListUserIDs(ctx context.Context) ([]string, error)

	// Get returns the record for userID.
	// Returns ErrNotFound if the user was never reported.
	Get(ctx context.Context, userID string) (model.BlockRecord, error)

	// Increment creates the record with block_count 1, or adds one to the
	// existing count and stores the new reason.
	Increment(ctx context.Context, r model.Report) (model.ReportOutcome, error)

	// Upsert creates or replaces the record with block_count 1 and the new reason.
	Upsert(ctx context.Context, r model.Report) (model.ReportOutcome, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// Ping verifies the datastore is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// CountExpr is the SQL expression that reads column col as a block count:
// NULL or non-positive values count as 1.
func CountExpr(col string) string {
	return fmt.Sprintf("CASE WHEN %[1]s IS NULL OR %[1]s < 1 THEN 1 ELSE %[1]s END", col)
}
