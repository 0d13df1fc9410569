package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

func testKey(t *testing.T, seed string) domain.PublicKey {
	t.Helper()
	pk, err := domain.NewPublicKey(strings.Repeat(seed, 32))
	if err != nil {
		t.Fatalf("test key: %v", err)
	}
	return pk
}

// eventFromTemplate simulates what the signer does: fill in author and id.
func eventFromTemplate(t *testing.T, tpl Template, author domain.PublicKey) *Event {
	t.Helper()
	e := &Event{
		PubKey:    author.Hex(),
		CreatedAt: tpl.CreatedAt.Unix(),
		Kind:      tpl.Kind,
		Tags:      tpl.Tags,
		Content:   tpl.Content,
	}
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	e.ID = id
	return e
}

const testBody = "Caffeine blocks adenosine receptors. Alertness rises after intake."
const testDescription = "Peer-reviewed trial measuring sustained attention after caffeine intake."

func TestHypothesisRoundTrip(t *testing.T) {
	author := testKey(t, "ab")
	original, err := domain.NewHypothesis("hyp-1", "", "Coffee improves focus", testBody, "psychology", author, time.Unix(1767225600, 0).UTC())
	if err != nil {
		t.Fatalf("NewHypothesis: %v", err)
	}

	c := NewHypothesisCodec()
	tpl, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	t.Run("template carries the discriminators", func(t *testing.T) {
		if tpl.Kind != KindDiscourse {
			t.Errorf("expected kind %d, got %d", KindDiscourse, tpl.Kind)
		}
		e := &Event{Tags: tpl.Tags}
		if !e.HasEntityTag(EntityHypothesis) {
			t.Error("missing hypothesis entity tag")
		}
		if v, _ := e.TagValue(TagCategory); v != "psychology" {
			t.Errorf("expected category tag, got %q", v)
		}
		if v, _ := e.TagValue(TagIdentifier); v != "hyp-1" {
			t.Errorf("expected d tag hyp-1, got %q", v)
		}
	})

	t.Run("decode restores all validated fields", func(t *testing.T) {
		decoded, ok := c.Decode(eventFromTemplate(t, tpl, author))
		if !ok {
			t.Fatal("decode of own encoding failed")
		}
		if decoded.Title().String() != original.Title().String() {
			t.Errorf("title: %q != %q", decoded.Title(), original.Title())
		}
		if decoded.Body().String() != original.Body().String() {
			t.Error("body lost in round trip")
		}
		if decoded.Category() != original.Category() {
			t.Error("category lost in round trip")
		}
		if !decoded.Author().Equal(author) {
			t.Error("author lost in round trip")
		}
		if decoded.ID() != original.ID() {
			t.Error("entity id lost in round trip")
		}
		if decoded.EventID() == "" {
			t.Error("decoded hypothesis should carry the event id")
		}
	})
}

func TestHypothesisDecodeSkips(t *testing.T) {
	c := NewHypothesisCodec()
	author := testKey(t, "ab")
	valid, _ := domain.NewHypothesis("hyp-1", "", "Coffee improves focus", testBody, "psychology", author, time.Unix(1767225600, 0).UTC())
	tpl, _ := c.Encode(valid)

	t.Run("wrong kind", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Kind = KindProfile
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("missing entity tag", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Tags = []Tag{{"d", "hyp-1"}}
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("missing d tag", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Tags = []Tag{{"t", "hypothesis"}}
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("garbage content", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Content = "{not json"
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("content fails domain validation", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Content = `{"title":"short","body":"x","category":"psychology"}`
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("bad author key", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.PubKey = "not-a-key"
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip")
		}
	})

	t.Run("nil event", func(t *testing.T) {
		if _, ok := c.Decode(nil); ok {
			t.Error("expected skip")
		}
	})
}

func TestSourceRoundTrip(t *testing.T) {
	contributor := testKey(t, "cd")
	original, err := domain.NewSource("src-1", "", "hyp-1", "https://arxiv.org/abs/2101.00001", testDescription, "refuting", contributor, time.Unix(1767225600, 0).UTC())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	c := NewSourceCodec()
	tpl, err := c.Encode(original, "hyp-event-id")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	e := &Event{Tags: tpl.Tags}
	if v, _ := e.TagValue(TagEventRef); v != "hyp-event-id" {
		t.Errorf("expected hypothesis reference, got %q", v)
	}
	if v, _ := e.TagValue(TagStance); v != "refuting" {
		t.Errorf("expected stance tag, got %q", v)
	}

	decoded, ok := c.Decode(eventFromTemplate(t, tpl, contributor))
	if !ok {
		t.Fatal("decode of own encoding failed")
	}
	if decoded.URL().String() != original.URL().String() {
		t.Error("url lost in round trip")
	}
	if decoded.Description().String() != original.Description().String() {
		t.Error("description lost in round trip")
	}
	if decoded.Stance() != original.Stance() {
		t.Error("stance lost in round trip")
	}
	if decoded.HypothesisID() != original.HypothesisID() {
		t.Error("hypothesis id lost in round trip")
	}
	if decoded.VoteCount() != 0 {
		t.Error("decoded source must start with an empty vote map")
	}
}

func TestVoteRoundTrip(t *testing.T) {
	voter := testKey(t, "ef")
	sourceAuthor := testKey(t, "cd")
	c := NewSourceCodec()

	t.Run("upvote and downvote", func(t *testing.T) {
		for _, value := range []int{1, -1} {
			tpl, err := c.EncodeVote(value, "src-event-id", sourceAuthor, time.Unix(1767225600, 0).UTC())
			if err != nil {
				t.Fatalf("EncodeVote(%d): %v", value, err)
			}
			decoded, ok := c.DecodeVote(eventFromTemplate(t, tpl, voter))
			if !ok {
				t.Fatalf("DecodeVote(%d) skipped", value)
			}
			if decoded.Value != value {
				t.Errorf("expected value %d, got %d", value, decoded.Value)
			}
			if decoded.SourceEventID != "src-event-id" {
				t.Errorf("target lost: %q", decoded.SourceEventID)
			}
			if !decoded.Voter.Equal(voter) {
				t.Error("voter lost in round trip")
			}
		}
	})

	t.Run("rejects out-of-range encode", func(t *testing.T) {
		if _, err := c.EncodeVote(0, "src-event-id", sourceAuthor, time.Now()); err == nil {
			t.Error("expected error for zero vote")
		}
	})

	t.Run("supersedes orders by time then event id", func(t *testing.T) {
		early := DecodedVote{EventID: "bb", CreatedAt: time.Unix(100, 0)}
		late := DecodedVote{EventID: "aa", CreatedAt: time.Unix(200, 0)}
		if !late.Supersedes(early) || early.Supersedes(late) {
			t.Error("newer created_at must win")
		}
		tiedLow := DecodedVote{EventID: "aa", CreatedAt: time.Unix(100, 0)}
		tiedHigh := DecodedVote{EventID: "bb", CreatedAt: time.Unix(100, 0)}
		if !tiedLow.Supersedes(tiedHigh) || tiedHigh.Supersedes(tiedLow) {
			t.Error("same-second tie must break toward the lower event id")
		}
	})

	t.Run("skips exotic reactions", func(t *testing.T) {
		tpl, _ := c.EncodeVote(1, "src-event-id", sourceAuthor, time.Unix(1767225600, 0).UTC())
		e := eventFromTemplate(t, tpl, voter)
		e.Content = "🔥"
		if _, ok := c.DecodeVote(e); ok {
			t.Error("expected skip for non-vote reaction")
		}
	})
}

func TestCommentRoundTrip(t *testing.T) {
	parentAuthor := testKey(t, "ab")
	author := testKey(t, "ef")
	parent, err := domain.CommentParent("cmt-parent", parentAuthor)
	if err != nil {
		t.Fatalf("CommentParent: %v", err)
	}
	original, err := domain.NewComment("cmt-1", "", "a thoughtful reply with substance", parent, author, time.Unix(1767225600, 0).UTC(), 3)
	if err != nil {
		t.Fatalf("NewComment: %v", err)
	}

	c := NewCommentCodec()
	tpl, err := c.Encode(original, "parent-event-id")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	e := &Event{Tags: tpl.Tags}
	if v, _ := e.TagValue(TagParentType); v != "comment" {
		t.Errorf("expected parent_type comment, got %q", v)
	}
	if v, _ := e.TagValue(TagDepth); v != "3" {
		t.Errorf("expected depth tag 3, got %q", v)
	}

	decoded, ok := c.Decode(eventFromTemplate(t, tpl, author))
	if !ok {
		t.Fatal("decode of own encoding failed")
	}
	if decoded.Content().String() != original.Content().String() {
		t.Error("content lost in round trip")
	}
	if decoded.Parent().Kind() != domain.ParentComment {
		t.Error("parent kind lost in round trip")
	}
	if decoded.Parent().ID() != "cmt-parent" {
		t.Error("parent id lost in round trip")
	}
	if !decoded.Parent().Author().Equal(parentAuthor) {
		t.Error("parent author lost in round trip")
	}
	if decoded.Depth() != 3 {
		t.Errorf("depth lost in round trip: %d", decoded.Depth())
	}
}

func TestCommentDecodeSkips(t *testing.T) {
	parentAuthor := testKey(t, "ab")
	author := testKey(t, "ef")
	parent, _ := domain.CommentParent("cmt-parent", parentAuthor)
	valid, _ := domain.NewComment("cmt-1", "", "a thoughtful reply with substance", parent, author, time.Unix(1767225600, 0).UTC(), 3)
	c := NewCommentCodec()
	tpl, _ := c.Encode(valid, "parent-event-id")

	t.Run("tag and content parent type disagree", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Content = `{"content":"a thoughtful reply with substance","parent_type":"hypothesis","parent_id":"cmt-parent","depth":3}`
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip on parent type mismatch")
		}
	})

	t.Run("depth out of range", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		e.Content = `{"content":"a thoughtful reply with substance","parent_type":"comment","parent_id":"cmt-parent","depth":11}`
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip on depth 11")
		}
	})

	t.Run("missing parent author tag", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, author)
		var tags []Tag
		for _, tag := range e.Tags {
			if tag[0] != TagPubKeyRef {
				tags = append(tags, tag)
			}
		}
		e.Tags = tags
		if _, ok := c.Decode(e); ok {
			t.Error("expected skip without parent author")
		}
	})
}

func TestDeletionRoundTrip(t *testing.T) {
	c := NewCommentCodec()
	tpl := c.EncodeDeletion("cmt-event-id", "retracted", time.Unix(1767225600, 0).UTC())
	e := eventFromTemplate(t, tpl, testKey(t, "ef"))

	targets, ok := c.DecodeDeletion(e)
	if !ok || len(targets) != 1 || targets[0] != "cmt-event-id" {
		t.Errorf("deletion round trip failed: %v %v", targets, ok)
	}

	if _, ok := c.DecodeDeletion(&Event{Kind: KindDeletion}); ok {
		t.Error("deletion without targets must be skipped")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	pk := testKey(t, "ab")
	u, err := domain.NewUser(pk, "Ada Lovelace", "ada@example.org")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}

	c := NewProfileCodec()
	tpl, err := c.Encode(u, time.Unix(1767225600, 0).UTC())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, ok := c.Decode(eventFromTemplate(t, tpl, pk))
	if !ok {
		t.Fatal("decode of own encoding failed")
	}
	if decoded.DisplayName().String() != "Ada Lovelace" {
		t.Errorf("display name lost: %q", decoded.DisplayName())
	}
	if decoded.Identifier() != "ada@example.org" {
		t.Errorf("identifier lost: %q", decoded.Identifier())
	}

	t.Run("invalid profile fields degrade to bare identity", func(t *testing.T) {
		e := eventFromTemplate(t, tpl, pk)
		e.Content = `{"name":"<script>bad</script>","nip05":"nope"}`
		degraded, ok := c.Decode(e)
		if !ok {
			t.Fatal("expected degraded decode, got skip")
		}
		if degraded.DisplayName().IsSet() {
			t.Error("invalid name should be dropped")
		}
	})
}
