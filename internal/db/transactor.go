package db

import "context"

// Transactor runs repository calls within a single transaction, so multi-table
// writes such as a meeting plus its attendee rows commit atomically.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
