package codec

import (
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// Criteria projections: each turns an immutable domain criteria object into
// the coarse relay-side filter. The fine refinements (free text, stance) stay
// client-side via the criteria's Matches methods; the wire protocol cannot
// express them.

// HypothesisSearchFilter projects search criteria onto the wire: discourse
// kind, hypothesis entity tag, optional category refinement, the 30-day
// recency floor, and the result cap.
func HypothesisSearchFilter(c domain.HypothesisSearchCriteria, now time.Time) Filter {
	tags := map[string][]string{
		TagEntity: {EntityHypothesis},
	}
	if cats := c.Categories(); len(cats) > 0 {
		values := make([]string, len(cats))
		for i, cat := range cats {
			values[i] = string(cat)
		}
		tags[TagCategory] = values
	}
	since := c.Since(now).Unix()
	return Filter{
		Kinds: []int{KindDiscourse},
		Tags:  tags,
		Since: &since,
		Limit: c.Limit(),
	}
}

// SourceFilter projects source criteria onto the wire: discourse kind, source
// entity tag, and the hypothesis event reference. Stance refinement stays
// client-side so a single subscription serves both stances.
func SourceFilter(c domain.SourceFilterCriteria) Filter {
	return Filter{
		Kinds: []int{KindDiscourse},
		Tags: map[string][]string{
			TagEntity:   {EntitySource},
			TagEventRef: {c.HypothesisEventID()},
		},
		Limit: c.Limit(),
	}
}

// VoteFilter selects the reaction events targeting the given source events.
func VoteFilter(sourceEventIDs []string, limit int) Filter {
	return Filter{
		Kinds: []int{KindReaction},
		Tags: map[string][]string{
			TagEventRef: sourceEventIDs,
		},
		Limit: limit,
	}
}

// CommentFilter selects the root comments under a hypothesis: those that
// reference the hypothesis event directly. Replies reference their parent
// comment's event instead, so the service expands the thread round by round
// with ThreadFilter and rebuilds the tree client-side.
func CommentFilter(c domain.CommentFilterCriteria) Filter {
	return Filter{
		Kinds: []int{KindDiscourse},
		Tags: map[string][]string{
			TagEntity:   {EntityComment},
			TagEventRef: {c.HypothesisEventID()},
		},
		Limit: c.Limit(),
	}
}

// ThreadFilter selects comments referencing any of the given parent events
// directly.
func ThreadFilter(parentEventIDs []string, limit int) Filter {
	return Filter{
		Kinds: []int{KindDiscourse},
		Tags: map[string][]string{
			TagEntity:   {EntityComment},
			TagEventRef: parentEventIDs,
		},
		Limit: limit,
	}
}

// ProfileFilter selects the latest kind-0 metadata for a public key.
func ProfileFilter(pubkey domain.PublicKey) Filter {
	return Filter{
		Kinds:   []int{KindProfile},
		Authors: []string{pubkey.Hex()},
		Limit:   1,
	}
}

// EventByID selects a single event by id.
func EventByID(id string) Filter {
	return Filter{
		IDs:   []string{id},
		Limit: 1,
	}
}
