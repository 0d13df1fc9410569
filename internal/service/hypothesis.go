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

// HypothesisService provides business logic for hypothesis operations.
type HypothesisService struct {
	deps  Deps
	codec *codec.HypothesisCodec
}

// NewHypothesisService creates a new hypothesis service.
func NewHypothesisService(deps Deps) *HypothesisService {
	deps.defaults()
	return &HypothesisService{
		deps:  deps,
		codec: codec.NewHypothesisCodec(),
	}
}

// Publish validates, signs, and broadcasts a new hypothesis. The returned
// aggregate carries the event id assigned during signing.
func (s *HypothesisService) Publish(ctx context.Context, author *signer.KeyPair, title, body, category string) (*domain.Hypothesis, error) {
	h, err := domain.NewHypothesis(uuid.NewString(), "", title, body, category,
		author.PublicKey(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	tpl, err := s.codec.Encode(h)
	if err != nil {
		return nil, err
	}
	e, err := author.Sign(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hypothesis: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return nil, err
	}
	if err := h.SetEventID(e.ID); err != nil {
		return nil, err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache published hypothesis", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{Type: EventHypothesisPublished, Payload: h.Summary()})

	return h, nil
}

// Search queries the relays for hypotheses matching the criteria, enriches
// them with source and comment counters, and returns them newest first with
// the criteria's offset and limit applied.
func (s *HypothesisService) Search(ctx context.Context, criteria domain.HypothesisSearchCriteria) ([]*domain.Hypothesis, error) {
	f := codec.HypothesisSearchFilter(criteria, time.Now().UTC())
	events, err := s.deps.collect(ctx, []codec.Filter{f})
	if err != nil {
		return nil, err
	}

	var hypotheses []*domain.Hypothesis
	for _, e := range latestPerIdentifier(events) {
		h, ok := s.codec.Decode(e)
		if !ok {
			s.deps.Log.Debug("skipping undecodable hypothesis event", "event", e.ID)
			continue
		}
		if !criteria.Matches(h) {
			continue
		}
		hypotheses = append(hypotheses, h)
	}

	if err := s.enrich(ctx, hypotheses); err != nil {
		s.deps.Log.Warn("failed to enrich hypotheses", "error", err)
	}

	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].CreatedAt().After(hypotheses[j].CreatedAt())
	})

	if criteria.Offset() >= len(hypotheses) {
		return nil, nil
	}
	hypotheses = hypotheses[criteria.Offset():]
	if len(hypotheses) > criteria.Limit() {
		hypotheses = hypotheses[:criteria.Limit()]
	}
	return hypotheses, nil
}

// Get retrieves a single hypothesis by event id, preferring the local cache.
func (s *HypothesisService) Get(ctx context.Context, eventID string) (*domain.Hypothesis, error) {
	e, err := s.deps.Cache.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		events, err := s.deps.collect(ctx, []codec.Filter{codec.EventByID(eventID)})
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return nil, fmt.Errorf("hypothesis %s not found", eventID)
		}
		e = events[0]
	}

	h, ok := s.codec.Decode(e)
	if !ok {
		return nil, fmt.Errorf("event %s is not a valid hypothesis", eventID)
	}
	if err := s.enrich(ctx, []*domain.Hypothesis{h}); err != nil {
		s.deps.Log.Warn("failed to enrich hypothesis", "event", eventID, "error", err)
	}
	return h, nil
}

// enrich fills in per-hypothesis source and comment counters with one relay
// round trip per entity kind, regardless of how many hypotheses are in hand.
func (s *HypothesisService) enrich(ctx context.Context, hypotheses []*domain.Hypothesis) error {
	if len(hypotheses) == 0 {
		return nil
	}

	byEventID := make(map[string]*domain.Hypothesis, len(hypotheses))
	ids := make([]string, 0, len(hypotheses))
	for _, h := range hypotheses {
		if h.EventID() == "" {
			continue
		}
		byEventID[h.EventID()] = h
		ids = append(ids, h.EventID())
	}
	if len(ids) == 0 {
		return nil
	}

	sourceFilter := codec.Filter{
		Kinds: []int{codec.KindDiscourse},
		Tags: map[string][]string{
			codec.TagEntity:   {codec.EntitySource},
			codec.TagEventRef: ids,
		},
	}
	commentFilter := codec.Filter{
		Kinds: []int{codec.KindDiscourse},
		Tags: map[string][]string{
			codec.TagEntity:   {codec.EntityComment},
			codec.TagEventRef: ids,
		},
	}
	events, err := s.deps.collect(ctx, []codec.Filter{sourceFilter, commentFilter})
	if err != nil {
		return err
	}

	type counts struct{ supporting, refuting, comments int }
	tally := make(map[string]counts)
	for _, e := range latestPerIdentifier(events) {
		target, ok := e.TagValue(codec.TagEventRef)
		if !ok {
			continue
		}
		c := tally[target]
		switch {
		case e.HasEntityTag(codec.EntitySource):
			switch stance, _ := e.TagValue(codec.TagStance); stance {
			case string(domain.StanceSupporting):
				c.supporting++
			case string(domain.StanceRefuting):
				c.refuting++
			}
		case e.HasEntityTag(codec.EntityComment):
			c.comments++
		}
		tally[target] = c
	}

	for id, h := range byEventID {
		c := tally[id]
		if err := h.UpdateSourceStats(c.supporting, c.refuting); err != nil {
			return err
		}
		if err := h.UpdateCommentCount(c.comments); err != nil {
			return err
		}
	}
	return nil
}
