package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/domain"
	"github.com/jimd-den/BlackPaper/internal/relay"
	"github.com/jimd-den/BlackPaper/internal/signer"
	"github.com/jimd-den/BlackPaper/internal/store/sqlite"
)

const (
	testTitle       = "Caffeine improves sustained attention"
	testBody        = "Caffeine blocks adenosine receptors in the brain. Alertness rises measurably within an hour of intake."
	testURL         = "https://pubmed.ncbi.nlm.nih.gov/12345"
	testDescription = "A randomized controlled trial measuring sustained attention after caffeine intake."
)

// fakeRelay implements Relay in memory: published events become immediately
// collectable, mimicking a relay that has already stored them.
type fakeRelay struct {
	mu          sync.Mutex
	events      []*codec.Event
	failPublish bool
	failCollect bool
}

func (f *fakeRelay) Publish(ctx context.Context, e *codec.Event) (relay.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPublish {
		return relay.PublishResult{}, context.DeadlineExceeded
	}
	f.events = append(f.events, e)
	return relay.PublishResult{Accepted: []string{"wss://fake.relay"}}, nil
}

func (f *fakeRelay) Collect(ctx context.Context, filters []codec.Filter, window time.Duration) ([]*codec.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCollect {
		return nil, context.DeadlineExceeded
	}
	seen := make(map[string]bool)
	var out []*codec.Event
	for _, e := range f.events {
		for _, flt := range filters {
			if flt.Matches(e) && !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func newTestDeps(t *testing.T) (Deps, *fakeRelay) {
	t.Helper()
	cache, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	fr := &fakeRelay{}
	return Deps{
		Relay: fr,
		Cache: cache,
		Bus:   NewEventBus(),
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, fr
}

func newTestKey(t *testing.T) *signer.KeyPair {
	t.Helper()
	kp, err := signer.Generate()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return kp
}

func searchCriteria(t *testing.T) domain.HypothesisSearchCriteria {
	t.Helper()
	c, err := domain.NewHypothesisSearchCriteria(nil, "", 50, 0)
	if err != nil {
		t.Fatalf("failed to build criteria: %v", err)
	}
	return c
}

func TestHypothesisService(t *testing.T) {
	ctx := context.Background()

	t.Run("publish assigns an event id and reaches the relay", func(t *testing.T) {
		deps, fr := newTestDeps(t)
		svc := NewHypothesisService(deps)
		author := newTestKey(t)

		h, err := svc.Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if h.EventID() == "" {
			t.Error("published hypothesis has no event id")
		}
		if len(fr.events) != 1 {
			t.Fatalf("relay holds %d events, want 1", len(fr.events))
		}
		if !fr.events[0].HasEntityTag(codec.EntityHypothesis) {
			t.Errorf("published event tags = %v, want hypothesis entity tag", fr.events[0].Tags)
		}
	})

	t.Run("publish rejects invalid input before touching the relay", func(t *testing.T) {
		deps, fr := newTestDeps(t)
		svc := NewHypothesisService(deps)

		_, err := svc.Publish(ctx, newTestKey(t), "too short", testBody, "psychology")
		if err == nil {
			t.Fatal("Publish() with a short title should fail")
		}
		if len(fr.events) != 0 {
			t.Error("invalid hypothesis reached the relay")
		}
	})

	t.Run("search finds published hypotheses with counters", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		hyps := NewHypothesisService(deps)
		srcs := NewSourceService(deps)
		cmts := NewCommentService(deps)
		author := newTestKey(t)

		h, err := hyps.Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if _, err := srcs.Publish(ctx, author, h.EventID(), h.ID(), testURL, testDescription, "supporting"); err != nil {
			t.Fatalf("source Publish() error = %v", err)
		}
		parent, err := domain.HypothesisParent(h.ID(), author.PublicKey())
		if err != nil {
			t.Fatalf("HypothesisParent() error = %v", err)
		}
		if _, err := cmts.Publish(ctx, author, "This needs replication studies", parent, h.EventID(), 0); err != nil {
			t.Fatalf("comment Publish() error = %v", err)
		}

		results, err := hyps.Search(ctx, searchCriteria(t))
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("Search() returned %d hypotheses, want 1", len(results))
		}
		got := results[0]
		if got.SupportingCount() != 1 || got.RefutingCount() != 0 {
			t.Errorf("source counts = %d/%d, want 1/0", got.SupportingCount(), got.RefutingCount())
		}
		if got.CommentCount() != 1 {
			t.Errorf("comment count = %d, want 1", got.CommentCount())
		}
	})

	t.Run("search falls back to the cache when relays fail", func(t *testing.T) {
		deps, fr := newTestDeps(t)
		svc := NewHypothesisService(deps)

		if _, err := svc.Publish(ctx, newTestKey(t), testTitle, testBody, "psychology"); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		fr.failCollect = true

		results, err := svc.Search(ctx, searchCriteria(t))
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 {
			t.Errorf("Search() from cache returned %d hypotheses, want 1", len(results))
		}
	})

	t.Run("get retrieves by event id", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		svc := NewHypothesisService(deps)

		h, err := svc.Publish(ctx, newTestKey(t), testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		got, err := svc.Get(ctx, h.EventID())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID() != h.ID() {
			t.Errorf("Get() id = %s, want %s", got.ID(), h.ID())
		}

		if _, err := svc.Get(ctx, "missing-event"); err == nil {
			t.Error("Get() for unknown event should fail")
		}
	})
}

func TestSourceService(t *testing.T) {
	ctx := context.Background()

	publishFixture := func(t *testing.T, deps Deps) (*domain.Hypothesis, *domain.Source, *signer.KeyPair) {
		t.Helper()
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		src, err := NewSourceService(deps).Publish(ctx, author, h.EventID(), h.ID(), testURL, testDescription, "supporting")
		if err != nil {
			t.Fatalf("source Publish() error = %v", err)
		}
		return h, src, author
	}

	listCriteria := func(t *testing.T, hypEventID, stance string) domain.SourceFilterCriteria {
		t.Helper()
		c, err := domain.NewSourceFilterCriteria(hypEventID, stance, 100)
		if err != nil {
			t.Fatalf("failed to build criteria: %v", err)
		}
		return c
	}

	t.Run("configured blocklist rejects the source", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		deps.BlockedDomains = []string{"pubmed.ncbi.nlm.nih.gov"}
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}

		_, err = NewSourceService(deps).Publish(ctx, author, h.EventID(), h.ID(), testURL, testDescription, "supporting")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Publish() error = %v, want ErrValidation", err)
		}
	})

	t.Run("list folds votes into sources", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		h, src, author := publishFixture(t, deps)
		svc := NewSourceService(deps)

		for i := 0; i < 2; i++ {
			if err := svc.Vote(ctx, newTestKey(t), src.EventID(), author.PublicKey(), 1); err != nil {
				t.Fatalf("Vote() error = %v", err)
			}
		}
		if err := svc.Vote(ctx, newTestKey(t), src.EventID(), author.PublicKey(), -1); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}

		sources, err := svc.ListForHypothesis(ctx, listCriteria(t, h.EventID(), ""))
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if len(sources) != 1 {
			t.Fatalf("ListForHypothesis() returned %d sources, want 1", len(sources))
		}
		got := sources[0]
		if got.Upvotes() != 2 || got.Downvotes() != 1 {
			t.Errorf("votes = %d up / %d down, want 2/1", got.Upvotes(), got.Downvotes())
		}
	})

	t.Run("revoting with the same key replaces the vote", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		h, src, author := publishFixture(t, deps)
		svc := NewSourceService(deps)
		voter := newTestKey(t)

		if err := svc.Vote(ctx, voter, src.EventID(), author.PublicKey(), 1); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}
		if err := svc.Vote(ctx, voter, src.EventID(), author.PublicKey(), -1); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}

		sources, err := svc.ListForHypothesis(ctx, listCriteria(t, h.EventID(), ""))
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if got := sources[0].VoteCount(); got != 1 {
			t.Errorf("vote count = %d, want 1 after revote", got)
		}
	})

	t.Run("same-second revotes fold to one deterministic winner", func(t *testing.T) {
		voter := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		stamp := time.Now().Unix()
		votes := []*codec.Event{
			{ID: "00aa", PubKey: voter, Kind: codec.KindReaction, CreatedAt: stamp, Content: "-"},
			{ID: "ffbb", PubKey: voter, Kind: codec.KindReaction, CreatedAt: stamp, Content: "+"},
		}

		// Either arrival order must fold to the same winner: the lower
		// event id, here the downvote.
		for _, order := range [][]int{{0, 1}, {1, 0}} {
			deps, fr := newTestDeps(t)
			h, src, _ := publishFixture(t, deps)
			for _, i := range order {
				e := *votes[i]
				e.Tags = []codec.Tag{{codec.TagEventRef, src.EventID()}}
				fr.events = append(fr.events, &e)
			}

			sources, err := NewSourceService(deps).ListForHypothesis(ctx, listCriteria(t, h.EventID(), ""))
			if err != nil {
				t.Fatalf("ListForHypothesis() error = %v", err)
			}
			got := sources[0]
			if got.VoteCount() != 1 {
				t.Fatalf("order %v: vote count = %d, want 1", order, got.VoteCount())
			}
			if got.Downvotes() != 1 {
				t.Errorf("order %v: downvotes = %d, want the lower event id to win", order, got.Downvotes())
			}
		}
	})

	t.Run("stance filter narrows the list", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		h, _, author := publishFixture(t, deps)
		svc := NewSourceService(deps)

		if _, err := svc.Publish(ctx, author, h.EventID(), h.ID(),
			"https://example.org/counter-study", testDescription, "refuting"); err != nil {
			t.Fatalf("source Publish() error = %v", err)
		}

		refuting, err := svc.ListForHypothesis(ctx, listCriteria(t, h.EventID(), "refuting"))
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if len(refuting) != 1 || refuting[0].Stance() != domain.StanceRefuting {
			t.Errorf("stance filter returned %d sources", len(refuting))
		}
	})

	t.Run("vote rejects invalid values", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		_, src, author := publishFixture(t, deps)

		err := NewSourceService(deps).Vote(ctx, newTestKey(t), src.EventID(), author.PublicKey(), 0)
		if err == nil {
			t.Error("Vote() with value 0 should fail")
		}
	})
}

func TestCommentService(t *testing.T) {
	ctx := context.Background()

	t.Run("thread assembly across depths", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		svc := NewCommentService(deps)

		parent, err := domain.HypothesisParent(h.ID(), author.PublicKey())
		if err != nil {
			t.Fatalf("HypothesisParent() error = %v", err)
		}
		root, err := svc.Publish(ctx, author, "What about tolerance effects", parent, h.EventID(), 0)
		if err != nil {
			t.Fatalf("root Publish() error = %v", err)
		}
		replyRef, err := domain.CommentParent(root.ID(), root.Author())
		if err != nil {
			t.Fatalf("CommentParent() error = %v", err)
		}
		if _, err := svc.Publish(ctx, newTestKey(t), "Tolerance plateaus after a week", replyRef, root.EventID(), 1); err != nil {
			t.Fatalf("reply Publish() error = %v", err)
		}

		criteria, err := domain.NewCommentFilterCriteria(h.EventID(), 100)
		if err != nil {
			t.Fatalf("failed to build criteria: %v", err)
		}
		roots, err := svc.ListForHypothesis(ctx, criteria, domain.SortRecent)
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if len(roots) != 1 {
			t.Fatalf("thread has %d roots, want 1", len(roots))
		}
		if roots[0].ReplyCount() != 1 {
			t.Errorf("root has %d replies, want 1", roots[0].ReplyCount())
		}
	})

	t.Run("threads stay scoped to their hypothesis", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		author := newTestKey(t)
		hypSvc := NewHypothesisService(deps)
		svc := NewCommentService(deps)

		hypA, err := hypSvc.Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		hypB, err := hypSvc.Publish(ctx, author, "Meditation reduces baseline anxiety", testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		for _, h := range []*domain.Hypothesis{hypA, hypB} {
			parent, err := domain.HypothesisParent(h.ID(), author.PublicKey())
			if err != nil {
				t.Fatalf("HypothesisParent() error = %v", err)
			}
			if _, err := svc.Publish(ctx, author, "Comment on "+h.Title().String(), parent, h.EventID(), 0); err != nil {
				t.Fatalf("comment Publish() error = %v", err)
			}
		}

		criteria, err := domain.NewCommentFilterCriteria(hypA.EventID(), 100)
		if err != nil {
			t.Fatalf("failed to build criteria: %v", err)
		}
		roots, err := svc.ListForHypothesis(ctx, criteria, domain.SortRecent)
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if len(roots) != 1 {
			t.Fatalf("thread has %d roots, want only this hypothesis's comment", len(roots))
		}
		if got := roots[0].Content().String(); got != "Comment on "+hypA.Title().String() {
			t.Errorf("thread contains %q, want this hypothesis's comment", got)
		}
	})

	t.Run("author deletion leaves a tombstone", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		svc := NewCommentService(deps)

		parent, err := domain.HypothesisParent(h.ID(), author.PublicKey())
		if err != nil {
			t.Fatalf("HypothesisParent() error = %v", err)
		}
		cm, err := svc.Publish(ctx, author, "I regret posting this", parent, h.EventID(), 0)
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if err := svc.Delete(ctx, author, cm.EventID(), "second thoughts"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		criteria, err := domain.NewCommentFilterCriteria(h.EventID(), 100)
		if err != nil {
			t.Fatalf("failed to build criteria: %v", err)
		}
		roots, err := svc.ListForHypothesis(ctx, criteria, domain.SortRecent)
		if err != nil {
			t.Fatalf("ListForHypothesis() error = %v", err)
		}
		if len(roots) != 1 {
			t.Fatalf("thread has %d roots, want the tombstone", len(roots))
		}
		if !roots[0].IsDeleted() {
			t.Error("deleted comment is not marked deleted")
		}
	})

	t.Run("deletion by a stranger is refused", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		svc := NewCommentService(deps)

		parent, err := domain.HypothesisParent(h.ID(), author.PublicKey())
		if err != nil {
			t.Fatalf("HypothesisParent() error = %v", err)
		}
		cm, err := svc.Publish(ctx, author, "A perfectly fine comment", parent, h.EventID(), 0)
		if err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		if err := svc.Delete(ctx, newTestKey(t), cm.EventID(), "vandalism"); err == nil {
			t.Error("Delete() by a non-author should fail")
		}
	})
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()

	t.Run("update then fetch round trip", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		svc := NewProfileService(deps)
		owner := newTestKey(t)

		if _, err := svc.Update(ctx, owner, "Ada", "ada@example.org"); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		u, err := svc.Fetch(ctx, owner.PublicKey())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if u.DisplayName().String() != "Ada" || u.Identifier() != "ada@example.org" {
			t.Errorf("Fetch() = %q / %q", u.DisplayName(), u.Identifier())
		}
	})

	t.Run("fetch for an unknown key yields a bare identity", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		stranger := newTestKey(t)

		u, err := NewProfileService(deps).Fetch(ctx, stranger.PublicKey())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if u.DisplayName().IsSet() {
			t.Error("unknown key should have no display name")
		}
		if u.PubKey() != stranger.PublicKey() {
			t.Error("bare identity carries the wrong key")
		}
	})

	t.Run("reputation reflects cached contributions and votes", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		author := newTestKey(t)
		h, err := NewHypothesisService(deps).Publish(ctx, author, testTitle, testBody, "psychology")
		if err != nil {
			t.Fatalf("hypothesis Publish() error = %v", err)
		}
		srcs := NewSourceService(deps)
		src, err := srcs.Publish(ctx, author, h.EventID(), h.ID(), testURL, testDescription, "supporting")
		if err != nil {
			t.Fatalf("source Publish() error = %v", err)
		}
		if err := srcs.Vote(ctx, newTestKey(t), src.EventID(), author.PublicKey(), 1); err != nil {
			t.Fatalf("Vote() error = %v", err)
		}

		rep, err := NewProfileService(deps).Reputation(ctx, author.PublicKey())
		if err != nil {
			t.Fatalf("Reputation() error = %v", err)
		}
		if rep.VoteRatio() != 1.0 {
			t.Errorf("VoteRatio() = %v, want 1.0", rep.VoteRatio())
		}
		// Hypothesis + source = two contributions at half a point each.
		if got := rep.Score(); got != 51 {
			t.Errorf("Score() = %v, want 51", got)
		}
	})
}
