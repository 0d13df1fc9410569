// Package service provides the business logic layer: it composes the codec,
// the relay pool, and the local event cache into the operations clients call.
// Services never hold a signing key; every write takes the acting identity
// explicitly.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/relay"
	"github.com/jimd-den/BlackPaper/internal/store"
)

// Relay is the slice of the relay pool the services depend on.
type Relay interface {
	Publish(ctx context.Context, e *codec.Event) (relay.PublishResult, error)
	Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error)
}

// Deps carries the shared collaborators every service is built from.
type Deps struct {
	Relay         Relay
	Cache         store.Store
	Bus           *EventBus
	Log           *slog.Logger
	CollectWindow time.Duration

	// BlockedDomains extends the built-in source URL blocklist.
	BlockedDomains []string
}

func (d *Deps) defaults() {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Bus == nil {
		d.Bus = NewEventBus()
	}
	if d.CollectWindow <= 0 {
		d.CollectWindow = relay.DefaultCollectWindow
	}
}

// collect queries the relays and mirrors the results into the cache. When no
// relay answers, the cache serves what it has: stale beats empty while the
// network is down.
func (d *Deps) collect(ctx context.Context, filters []codec.Filter) ([]*codec.Event, error) {
	events, err := d.Relay.Collect(ctx, filters, d.CollectWindow)
	if err != nil {
		d.Log.Warn("relay query failed, serving from cache", "error", err)
		var cached []*codec.Event
		for _, f := range filters {
			part, cacheErr := d.Cache.QueryEvents(ctx, f)
			if cacheErr != nil {
				return nil, err
			}
			cached = append(cached, part...)
		}
		return cached, nil
	}
	if err := d.Cache.SaveEvents(ctx, events); err != nil {
		d.Log.Warn("failed to cache relay results", "error", err)
	}
	return events, nil
}

// latestPerIdentifier keeps only the newest event for each identifier tag.
// Relays deduplicate replaceable events per relay, but a pool merge can still
// surface older revisions.
func latestPerIdentifier(events []*codec.Event) []*codec.Event {
	newest := make(map[string]*codec.Event)
	for _, e := range events {
		id, ok := e.TagValue(codec.TagIdentifier)
		if !ok {
			continue
		}
		if cur, exists := newest[id]; !exists || e.CreatedAt > cur.CreatedAt {
			newest[id] = e
		}
	}
	out := make([]*codec.Event, 0, len(newest))
	for _, e := range newest {
		out = append(out, e)
	}
	return out
}

func eventIDs(events []*codec.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
