package domain

import (
	"log/slog"
	"sort"
)

// SortMode orders a list of comments.
type SortMode string

const (
	SortRecent        SortMode = "recent"        // newest first
	SortChronological SortMode = "chronological" // oldest first
	SortEngagement    SortMode = "engagement"    // most discussed first
)

// TreeBuilder reconstructs threaded discussions from the flat, unordered
// comment stream a relay subscription delivers.
type TreeBuilder struct {
	log *slog.Logger
}

// NewTreeBuilder creates a builder. A nil logger falls back to slog.Default.
func NewTreeBuilder(logger *slog.Logger) *TreeBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeBuilder{log: logger}
}

// BuildTree assembles a forest of root comments from a flat list. Two passes:
// index every comment by id, then attach each reply to its parent via
// AddReply. Replies whose parent is missing from the list are dropped with a
// warning; partial arrival over an eventually-consistent stream is expected,
// not an error.
func (b *TreeBuilder) BuildTree(flat []*Comment) []*Comment {
	index := make(map[string]*Comment, len(flat))
	for _, c := range flat {
		index[c.ID()] = c
	}

	var roots []*Comment
	for _, c := range flat {
		if c.IsRoot() {
			roots = append(roots, c)
			continue
		}
		parent, ok := index[c.Parent().ID()]
		if !ok {
			b.log.Warn("dropping comment with missing parent",
				"comment_id", c.ID(), "parent_id", c.Parent().ID())
			continue
		}
		if err := parent.AddReply(c); err != nil {
			b.log.Warn("dropping comment with inconsistent parent link",
				"comment_id", c.ID(), "error", err)
		}
	}
	return roots
}

// SortComments orders comments in place by the given mode. Unknown modes fall
// back to recent.
func (b *TreeBuilder) SortComments(comments []*Comment, mode SortMode) {
	switch mode {
	case SortChronological:
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].CreatedAt().Before(comments[j].CreatedAt())
		})
	case SortEngagement:
		sort.SliceStable(comments, func(i, j int) bool {
			return engagementScore(comments[i]) > engagementScore(comments[j])
		})
	default:
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].CreatedAt().After(comments[j].CreatedAt())
		})
	}
}

// engagementScore weighs direct replies most heavily, then total thread size,
// then comment length capped so essays don't dominate.
func engagementScore(c *Comment) float64 {
	lengthBonus := float64(c.Content().WordCount()) / 10
	if lengthBonus > 5 {
		lengthBonus = 5
	}
	return float64(c.ReplyCount())*3 + float64(c.ThreadSize()) + lengthBonus
}
