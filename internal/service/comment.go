package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/domain"
	"github.com/jimd-den/BlackPaper/internal/signer"
)

// maxThreadRounds bounds the reply-fetch loop. It mirrors the maximum comment
// nesting depth, so a fully nested thread is reachable in that many rounds.
const maxThreadRounds = 10

// CommentService provides business logic for threaded comments.
type CommentService struct {
	deps  Deps
	codec *codec.CommentCodec
	trees *domain.TreeBuilder
}

// NewCommentService creates a new comment service.
func NewCommentService(deps Deps) *CommentService {
	deps.defaults()
	return &CommentService{
		deps:  deps,
		codec: codec.NewCommentCodec(),
		trees: domain.NewTreeBuilder(deps.Log),
	}
}

// Publish validates, signs, and broadcasts a comment. For a reply, parent is
// the parent comment's reference and parentEventID its event id; for a root
// comment they reference the hypothesis.
func (s *CommentService) Publish(ctx context.Context, author *signer.KeyPair, content string, parent domain.ParentRef, parentEventID string, depth int) (*domain.Comment, error) {
	if parentEventID == "" {
		return nil, fmt.Errorf("%w: parent event id is required", domain.ErrValidation)
	}

	cm, err := domain.NewComment(uuid.NewString(), "", content, parent,
		author.PublicKey(), time.Now().UTC(), depth)
	if err != nil {
		return nil, err
	}

	tpl, err := s.codec.Encode(cm, parentEventID)
	if err != nil {
		return nil, err
	}
	e, err := author.Sign(tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign comment: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return nil, err
	}
	if err := cm.SetEventID(e.ID); err != nil {
		return nil, err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache published comment", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{Type: EventCommentPublished, Payload: cm.Summary()})

	return cm, nil
}

// ListForHypothesis fetches the full discussion under a hypothesis and
// returns the root comments of the assembled tree, sorted by mode. Replies
// are fetched round by round: each round asks the relays for comments
// referencing the previous round's event ids.
func (s *CommentService) ListForHypothesis(ctx context.Context, criteria domain.CommentFilterCriteria, mode domain.SortMode) ([]*domain.Comment, error) {
	collected := make(map[string]*codec.Event)

	frontier, err := s.deps.collect(ctx, []codec.Filter{codec.CommentFilter(criteria)})
	if err != nil {
		return nil, err
	}
	for round := 0; len(frontier) > 0 && round < maxThreadRounds; round++ {
		var next []string
		for _, e := range frontier {
			if _, seen := collected[e.ID]; seen {
				continue
			}
			collected[e.ID] = e
			next = append(next, e.ID)
		}
		if len(next) == 0 {
			break
		}
		frontier, err = s.deps.collect(ctx, []codec.Filter{codec.ThreadFilter(next, criteria.Limit())})
		if err != nil {
			return nil, err
		}
	}

	events := make([]*codec.Event, 0, len(collected))
	for _, e := range collected {
		events = append(events, e)
	}

	var comments []*domain.Comment
	commentEventIDs := make(map[string]*domain.Comment)
	for _, e := range latestPerIdentifier(events) {
		cm, ok := s.codec.Decode(e)
		if !ok {
			s.deps.Log.Debug("skipping undecodable comment event", "event", e.ID)
			continue
		}
		comments = append(comments, cm)
		commentEventIDs[cm.EventID()] = cm
	}

	s.applyDeletions(ctx, commentEventIDs)

	roots := s.trees.BuildTree(comments)
	s.trees.SortComments(roots, mode)
	return roots, nil
}

// applyDeletions soft-deletes comments targeted by a deletion event signed
// with the comment author's own key. Deletions by anyone else are ignored.
func (s *CommentService) applyDeletions(ctx context.Context, byEventID map[string]*domain.Comment) {
	if len(byEventID) == 0 {
		return
	}
	ids := make([]string, 0, len(byEventID))
	for id := range byEventID {
		ids = append(ids, id)
	}

	deletions, err := s.deps.collect(ctx, []codec.Filter{{
		Kinds: []int{codec.KindDeletion},
		Tags:  map[string][]string{codec.TagEventRef: ids},
	}})
	if err != nil {
		s.deps.Log.Warn("failed to fetch deletions", "error", err)
		return
	}

	for _, e := range deletions {
		targets, ok := s.codec.DecodeDeletion(e)
		if !ok {
			continue
		}
		for _, target := range targets {
			cm, ok := byEventID[target]
			if !ok {
				continue
			}
			if cm.Author().Hex() != e.PubKey {
				s.deps.Log.Warn("ignoring deletion by non-author",
					"deletion", e.ID, "comment", target)
				continue
			}
			cm.MarkDeleted()
		}
	}
}

// Delete signs and broadcasts a deletion event for one of the caller's own
// comments. The comment stays in threads as a tombstone.
func (s *CommentService) Delete(ctx context.Context, author *signer.KeyPair, commentEventID, reason string) error {
	cached, err := s.deps.Cache.GetEvent(ctx, commentEventID)
	if err != nil {
		return err
	}
	if cached != nil && cached.PubKey != author.PublicKey().Hex() {
		return fmt.Errorf("%w: only the author can delete comment %s", domain.ErrInvariant, commentEventID)
	}

	tpl := s.codec.EncodeDeletion(commentEventID, reason, time.Now().UTC())
	e, err := author.Sign(tpl)
	if err != nil {
		return fmt.Errorf("failed to sign deletion: %w", err)
	}
	if _, err := s.deps.Relay.Publish(ctx, e); err != nil {
		return err
	}

	if err := s.deps.Cache.SaveEvent(ctx, e); err != nil {
		s.deps.Log.Warn("failed to cache deletion", "event", e.ID, "error", err)
	}
	s.deps.Bus.Publish(Event{
		Type:    EventCommentDeleted,
		Payload: map[string]string{"comment_event_id": commentEventID},
	})
	return nil
}
