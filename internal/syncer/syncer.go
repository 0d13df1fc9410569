// Package syncer keeps the local event cache warm by periodically pulling
// recent discourse events from the relays. The cache then serves reads during
// relay outages and feeds reputation, which is computed over cached events.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/store"
)

// Relay is the slice of the relay pool the syncer needs.
type Relay interface {
	Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error)
}

// Syncer runs periodic relay-to-cache sync rounds.
type Syncer struct {
	relay    Relay
	cache    store.Store
	log      *slog.Logger
	interval time.Duration
	lookback time.Duration
	window   time.Duration
}

// New creates a syncer. A nil logger falls back to slog.Default.
func New(relay Relay, cache store.Store, interval, lookback, window time.Duration, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		relay:    relay,
		cache:    cache,
		log:      log,
		interval: interval,
		lookback: lookback,
		window:   window,
	}
}

// Run syncs once immediately and then on every interval tick until the
// context ends. Round failures are logged and the loop keeps going.
func (s *Syncer) Run(ctx context.Context) {
	s.round(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

func (s *Syncer) round(ctx context.Context) {
	n, err := s.SyncOnce(ctx)
	if err != nil {
		s.log.Warn("sync round failed", "error", err)
		return
	}
	s.log.Debug("sync round complete", "events", n)
}

// SyncOnce pulls every discourse-relevant event newer than the lookback and
// stores it. Returns the number of events pulled.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	since := time.Now().Add(-s.lookback).Unix()
	filters := []codec.Filter{{
		Kinds: []int{codec.KindProfile, codec.KindDeletion, codec.KindReaction, codec.KindDiscourse},
		Since: &since,
	}}

	events, err := s.relay.Collect(ctx, filters, s.window)
	if err != nil {
		return 0, fmt.Errorf("failed to collect events: %w", err)
	}
	if err := s.cache.SaveEvents(ctx, events); err != nil {
		return 0, fmt.Errorf("failed to cache events: %w", err)
	}
	return len(events), nil
}
