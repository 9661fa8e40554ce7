package aggregator

import (
	"context"

	"flowpay-indexer/database"
)

// EntityStore is the persistence surface the aggregation rules fold
// into. Gets return (nil, nil) when no row exists. Sets are upserts by
// primary key. The rules never need range queries, transactions or
// batch operations.
type EntityStore interface {
	Permission(ctx context.Context, id string) (*database.Permission, error)
	SetPermission(ctx context.Context, row *database.Permission) error

	SetPayment(ctx context.Context, row *database.Payment) error

	User(ctx context.Context, id string) (*database.User, error)
	SetUser(ctx context.Context, row *database.User) error

	DailyStats(ctx context.Context, id string) (*database.DailyStats, error)
	SetDailyStats(ctx context.Context, row *database.DailyStats) error

	Analytics(ctx context.Context) (*database.Analytics, error)
	SetAnalytics(ctx context.Context, row *database.Analytics) error
}
