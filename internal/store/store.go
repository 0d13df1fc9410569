// Package store persists raw relay events locally so queries and vote
// tallies survive relay outages. It caches the signed wire form, not domain
// aggregates: the codec remains the single place events are interpreted.
package store

import (
	"context"

	"github.com/jimd-den/BlackPaper/internal/codec"
)

// VoteTally is the up/down breakdown of reaction events for one target.
type VoteTally struct {
	Upvotes   int
	Downvotes int
}

// Store defines the interface for the local event cache.
type Store interface {
	// Write operations
	SaveEvent(ctx context.Context, e *codec.Event) error
	SaveEvents(ctx context.Context, events []*codec.Event) error

	// Read operations
	GetEvent(ctx context.Context, id string) (*codec.Event, error)
	QueryEvents(ctx context.Context, f codec.Filter) ([]*codec.Event, error)

	// LatestByEntity returns the newest event per identifier tag for one
	// entity label, which is the replaceable-event view of the cache.
	LatestByEntity(ctx context.Context, kind int, entity string) ([]*codec.Event, error)

	// Aggregations
	VoteTallies(ctx context.Context, targetEventIDs []string) (map[string]VoteTally, error)
	ContributionCount(ctx context.Context, pubkey string) (int, error)
	DeletedEventIDs(ctx context.Context) (map[string]bool, error)

	// Close releases resources
	Close() error
}
