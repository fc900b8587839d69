package transaction

import (
	"context"
)

// Store is the durability boundary for canonical transactions.
type Store interface {
	// Upsert inserts or updates the transaction keyed by ID. A stored record
	// with a strictly newer UpdatedAt is left untouched. Safe for concurrent
	// calls with distinct keys.
	Upsert(ctx context.Context, tx *Transaction) error
}

// Reader exposes stored transactions to the read-only API.
type Reader interface {
	GetByID(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
}

// Repository is implemented by stores that can also be queried.
type Repository interface {
	Store
	Reader
}

// ListFilter defines filters for listing transactions
type ListFilter struct {
	PlatformID *PlatformID
	Status     *Status
	Limit      int
	Offset     int
	SortBy     string
	SortOrder  string
}
