package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxSearchLimit = 100
	maxListLimit   = 500

	// SearchLookback is the recency floor applied to hypothesis searches.
	SearchLookback = 30 * 24 * time.Hour
)

// HypothesisSearchCriteria is an immutable parameter bag for hypothesis
// queries. Free-text matching cannot be expressed as a relay-side filter, so
// it is applied client-side via Matches after events arrive.
type HypothesisSearchCriteria struct {
	categories []Category
	text       string
	limit      int
	offset     int
}

// NewHypothesisSearchCriteria validates query parameters: limit in [1,100],
// offset non-negative, categories all valid.
func NewHypothesisSearchCriteria(categories []string, text string, limit, offset int) (HypothesisSearchCriteria, error) {
	if limit < 1 || limit > maxSearchLimit {
		return HypothesisSearchCriteria{}, fmt.Errorf("%w: search limit must be between 1 and %d, got %d", ErrValidation, maxSearchLimit, limit)
	}
	if offset < 0 {
		return HypothesisSearchCriteria{}, fmt.Errorf("%w: search offset cannot be negative, got %d", ErrValidation, offset)
	}
	var parsed []Category
	for _, raw := range categories {
		c, err := ParseCategory(raw)
		if err != nil {
			return HypothesisSearchCriteria{}, err
		}
		parsed = append(parsed, c)
	}
	return HypothesisSearchCriteria{
		categories: parsed,
		text:       strings.TrimSpace(text),
		limit:      limit,
		offset:     offset,
	}, nil
}

// Categories returns the category refinements, empty for all.
func (c HypothesisSearchCriteria) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Text returns the free-text query, empty for none.
func (c HypothesisSearchCriteria) Text() string { return c.text }

// Limit returns the result cap.
func (c HypothesisSearchCriteria) Limit() int { return c.limit }

// Offset returns the result offset.
func (c HypothesisSearchCriteria) Offset() int { return c.offset }

// Since returns the recency floor relative to now.
func (c HypothesisSearchCriteria) Since(now time.Time) time.Time {
	return now.Add(-SearchLookback)
}

// Matches applies the client-side refinement: case-insensitive substring match
// of the text query over title and body, plus category membership.
func (c HypothesisSearchCriteria) Matches(h *Hypothesis) bool {
	if len(c.categories) > 0 {
		found := false
		for _, cat := range c.categories {
			if h.Category() == cat {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.text == "" {
		return true
	}
	needle := strings.ToLower(c.text)
	return strings.Contains(strings.ToLower(h.Title().String()), needle) ||
		strings.Contains(strings.ToLower(h.Body().String()), needle)
}

// SourceFilterCriteria selects the sources attached to one hypothesis,
// optionally refined by stance.
type SourceFilterCriteria struct {
	hypothesisEventID string
	stance            Stance
	limit             int
}

// NewSourceFilterCriteria validates the filter: hypothesis event id required,
// limit in [1,500], stance optional ("" for both).
func NewSourceFilterCriteria(hypothesisEventID, rawStance string, limit int) (SourceFilterCriteria, error) {
	if strings.TrimSpace(hypothesisEventID) == "" {
		return SourceFilterCriteria{}, fmt.Errorf("%w: source filter requires a hypothesis event id", ErrValidation)
	}
	if limit < 1 || limit > maxListLimit {
		return SourceFilterCriteria{}, fmt.Errorf("%w: source limit must be between 1 and %d, got %d", ErrValidation, maxListLimit, limit)
	}
	var stance Stance
	if strings.TrimSpace(rawStance) != "" {
		parsed, err := ParseStance(rawStance)
		if err != nil {
			return SourceFilterCriteria{}, err
		}
		stance = parsed
	}
	return SourceFilterCriteria{
		hypothesisEventID: strings.TrimSpace(hypothesisEventID),
		stance:            stance,
		limit:             limit,
	}, nil
}

// HypothesisEventID returns the referenced hypothesis event id.
func (c SourceFilterCriteria) HypothesisEventID() string { return c.hypothesisEventID }

// Stance returns the stance refinement, empty for both.
func (c SourceFilterCriteria) Stance() Stance { return c.stance }

// Limit returns the result cap.
func (c SourceFilterCriteria) Limit() int { return c.limit }

// Matches applies the client-side stance refinement.
func (c SourceFilterCriteria) Matches(s *Source) bool {
	return c.stance == "" || s.Stance() == c.stance
}

// CommentFilterCriteria selects the comment thread under one hypothesis.
type CommentFilterCriteria struct {
	hypothesisEventID string
	limit             int
}

// NewCommentFilterCriteria validates the filter: hypothesis event id required,
// limit in [1,500].
func NewCommentFilterCriteria(hypothesisEventID string, limit int) (CommentFilterCriteria, error) {
	if strings.TrimSpace(hypothesisEventID) == "" {
		return CommentFilterCriteria{}, fmt.Errorf("%w: comment filter requires a hypothesis event id", ErrValidation)
	}
	if limit < 1 || limit > maxListLimit {
		return CommentFilterCriteria{}, fmt.Errorf("%w: comment limit must be between 1 and %d, got %d", ErrValidation, maxListLimit, limit)
	}
	return CommentFilterCriteria{
		hypothesisEventID: strings.TrimSpace(hypothesisEventID),
		limit:             limit,
	}, nil
}

// HypothesisEventID returns the referenced hypothesis event id.
func (c CommentFilterCriteria) HypothesisEventID() string { return c.hypothesisEventID }

// Limit returns the result cap.
func (c CommentFilterCriteria) Limit() int { return c.limit }
