package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/domain"
	"github.com/jimd-den/BlackPaper/internal/signer"
)

// SourceService provides business logic for evidence sources and their votes.
type SourceService struct {
	deps  Deps
	codec *codec.SourceCodec
}

// NewSourceService creates a new source service.
func NewSourceService(deps Deps) *SourceService {
	deps.defaults()
	return &SourceService{
		deps:  deps,
		codec: codec.NewSourceCodec(),
	}
}

// Publish validates, signs, and broadcasts a new evidence source attached to
// a hypothesis.
func (s *SourceService) Publish(ctx context.Context, contributor *signer.KeyPair, hypothesisEventID, hypothesisID, url, description, stance string) (*domain.Source, error) {
	if hypothesisEventID == "" {
		return nil, fmt.Errorf("%w: hypothesis event id is required", domain.ErrValidation)
	}
	if len(s.deps.BlockedDomains) > 0 {
		blocklist := append(append([]string(nil), domain.DefaultBlocklist...), s.deps.BlockedDomains...)
		if _, err := domain.NewSourceURLWithBlocklist(url, blocklist); err != nil {
			return nil, err
		}
	}

	src, err := domain.NewSource(uuid.NewString(), "", hypothesisID, url, description,
		stance, contributor.PublicKey(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	tpl, err := s.codec.Encode(src, hypothesisEventID)
	if err != nil {
		return nil, err
	}
	e, err := contributor.Sign(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign source: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return nil, err
	}
	if err := src.SetEventID(e.ID); err != nil {
		return nil, err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache published source", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{Type: EventSourcePublished, Payload: src.Summary()})

	return src, nil
}

// ListForHypothesis returns the sources attached to a hypothesis with their
// votes folded in, best quality first.
func (s *SourceService) ListForHypothesis(ctx context.Context, criteria domain.SourceFilterCriteria) ([]*domain.Source, error) {
	events, err := s.deps.collect(ctx, []codec.Filter{codec.SourceFilter(criteria)})
	if err != nil {
		return nil, err
	}

	byEventID := make(map[string]*domain.Source)
	var sources []*domain.Source
	for _, e := range latestPerIdentifier(events) {
		src, ok := s.codec.Decode(e)
		if !ok {
			s.deps.Log.Debug("skipping undecodable source event", "event", e.ID)
			continue
		}
		byEventID[src.EventID()] = src
		sources = append(sources, src)
	}

	if len(sources) > 0 {
		ids := make([]string, 0, len(sources))
		for _, src := range sources {
			ids = append(ids, src.EventID())
		}
		voteEvents, err := s.deps.collect(ctx, []codec.Filter{codec.VoteFilter(ids, 0)})
		if err != nil {
			s.deps.Log.Warn("failed to fetch votes", "error", err)
		}
		// One vote per key, newest wins. Relay delivery is unordered, so
		// fold the stream before applying: per voter the newest created_at
		// wins, with Supersedes breaking same-second ties.
		type voteKey struct{ source, voter string }
		winners := make(map[voteKey]codec.DecodedVote)
		for _, e := range voteEvents {
			v, ok := s.codec.DecodeVote(e)
			if !ok {
				continue
			}
			if _, ok := byEventID[v.SourceEventID]; !ok {
				continue
			}
			k := voteKey{v.SourceEventID, v.Voter.Hex()}
			if w, seen := winners[k]; seen && !v.Supersedes(w) {
				continue
			}
			winners[k] = v
		}
		for k, v := range winners {
			if err := byEventID[k.source].AddVote(v.Voter, v.Value, v.CreatedAt); err != nil {
				s.deps.Log.Debug("skipping invalid vote", "event", v.EventID, "error", err)
			}
		}
	}

	filtered := sources[:0]
	for _, src := range sources {
		if criteria.Matches(src) {
			filtered = append(filtered, src)
		}
	}
	sources = filtered

	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].QualityScore() != sources[j].QualityScore() {
			return sources[i].QualityScore() > sources[j].QualityScore()
		}
		return sources[i].CreatedAt().After(sources[j].CreatedAt())
	})

	if len(sources) > criteria.Limit() {
		sources = sources[:criteria.Limit()]
	}
	return sources, nil
}

// Vote signs and broadcasts a vote reaction on a source. Voting twice with
// the same key replaces the earlier vote when readers fold reactions.
func (s *SourceService) Vote(ctx context.Context, voter *signer.KeyPair, sourceEventID string, sourceAuthor domain.PublicKey, value int) error {
	tpl, err := s.codec.EncodeVote(value, sourceEventID, sourceAuthor, time.Now().UTC())
	if err != nil {
		return err
	}
	e, err := voter.Sign(tpl)
	if err != nil {
		return fmt.Errorf("failed to sign vote: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache vote", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{
		Type:    EventSourceVoted,
		Payload: map[string]any{"source_event_id": sourceEventID, "value": value},
	})
	return nil
}
