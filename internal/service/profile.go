package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/domain"
	"github.com/jimd-den/BlackPaper/internal/signer"
)

// ProfileService provides business logic for user identity and reputation.
type ProfileService struct {
	deps  Deps
	codec *codec.ProfileCodec
}

// NewProfileService creates a new profile service.
func NewProfileService(deps Deps) *ProfileService {
	deps.defaults()
	return &ProfileService{
		deps:  deps,
		codec: codec.NewProfileCodec(),
	}
}

// Update validates, signs, and broadcasts the caller's profile metadata.
func (s *ProfileService) Update(ctx context.Context, owner *signer.KeyPair, displayName, identifier string) (*domain.User, error) {
	u, err := domain.NewUser(owner.PublicKey(), displayName, identifier)
	if err != nil {
		return nil, err
	}

	tpl, err := s.codec.Encode(u, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	e, err := owner.Sign(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign profile: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return nil, err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache profile", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{Type: EventProfileUpdated, Payload: u.Summary()})

	return u, nil
}

// Fetch returns the newest profile published by a key, falling back to a
// bare identity when the key has never published one.
func (s *ProfileService) Fetch(ctx context.Context, pubkey domain.PublicKey) (*domain.User, error) {
	events, err := s.deps.collect(ctx, []codec.Filter{codec.ProfileFilter(pubkey)})
	if err != nil {
		return nil, err
	}

	var newest *codec.Event
	for _, e := range events {
		if e.PubKey != pubkey.Hex() {
			continue
		}
		if newest == nil || e.CreatedAt > newest.CreatedAt {
			newest = e
		}
	}
	if newest == nil {
		return domain.NewUser(pubkey, "", "")
	}

	u, ok := s.codec.Decode(newest)
	if !ok {
		return domain.NewUser(pubkey, "", "")
	}
	return u, nil
}

// Reputation computes a key's standing from its cached history: the vote
// ratio across everything it published, and how many contributions it made.
func (s *ProfileService) Reputation(ctx context.Context, pubkey domain.PublicKey) (domain.UserReputation, error) {
	authored, err := s.deps.Cache.QueryEvents(ctx, codec.Filter{
		Authors: []string{pubkey.Hex()},
		Kinds:   []int{codec.KindDiscourse},
	})
	if err != nil {
		return domain.UserReputation{}, err
	}

	var upvotes, downvotes int
	if len(authored) > 0 {
		tallies, err := s.deps.Cache.VoteTallies(ctx, eventIDs(authored))
		if err != nil {
			return domain.UserReputation{}, err
		}
		for _, t := range tallies {
			upvotes += t.Upvotes
			downvotes += t.Downvotes
		}
	}

	contributions, err := s.deps.Cache.ContributionCount(ctx, pubkey.Hex())
	if err != nil {
		return domain.UserReputation{}, err
	}

	return domain.NewUserReputation(upvotes, downvotes, contributions)
}
