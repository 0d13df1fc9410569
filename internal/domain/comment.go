package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxCommentLen      = 512
	minCommentWords    = 3
	maxCommentDepth    = 10
	readingWordsPerMin = 200
)

// nonSubstantive lists one-word replies that add nothing to a discussion and
// are rejected outright.
var nonSubstantive = map[string]bool{
	"+1":     true,
	"this":   true,
	"lol":    true,
	"first":  true,
	"bump":   true,
	"agreed": true,
	"same":   true,
}

// CommentContent is the validated text of a discussion comment.
type CommentContent struct {
	value string
}

// NewCommentContent validates content: non-empty, at most 512 characters, at
// least 3 words, and not a known throwaway reply.
func NewCommentContent(raw string) (CommentContent, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return CommentContent{}, fmt.Errorf("%w: comment content is required", ErrValidation)
	}
	if n := len([]rune(content)); n > maxCommentLen {
		return CommentContent{}, fmt.Errorf("%w: comment must be at most %d characters, got %d", ErrValidation, maxCommentLen, n)
	}
	if nonSubstantive[strings.ToLower(content)] {
		return CommentContent{}, fmt.Errorf("%w: comment %q is not substantive", ErrValidation, content)
	}
	if words := len(strings.Fields(content)); words < minCommentWords {
		return CommentContent{}, fmt.Errorf("%w: comment must contain at least %d words, got %d", ErrValidation, minCommentWords, words)
	}
	return CommentContent{value: content}, nil
}

func (c CommentContent) String() string { return c.value }

// WordCount returns the number of whitespace-separated words.
func (c CommentContent) WordCount() int { return len(strings.Fields(c.value)) }

// EstimatedReadingTime returns reading minutes at 200 wpm, minimum 1.
func (c CommentContent) EstimatedReadingTime() int {
	minutes := (c.WordCount() + readingWordsPerMin - 1) / readingWordsPerMin
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// ParentKind discriminates the two valid comment parents.
type ParentKind string

const (
	ParentHypothesis ParentKind = "hypothesis"
	ParentComment    ParentKind = "comment"
)

// ParseParentKind validates a raw parent kind.
func ParseParentKind(raw string) (ParentKind, error) {
	switch k := ParentKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case ParentHypothesis, ParentComment:
		return k, nil
	default:
		return "", fmt.Errorf("%w: parent kind must be hypothesis or comment, got %q", ErrValidation, raw)
	}
}

// ParentRef is a tagged reference to the entity a comment replies to: either a
// hypothesis or another comment. Only the two constructor functions can
// produce a valid combination.
type ParentRef struct {
	kind   ParentKind
	id     string
	author PublicKey
}

// HypothesisParent references a root-level comment's hypothesis.
func HypothesisParent(hypothesisID string, author PublicKey) (ParentRef, error) {
	return newParentRef(ParentHypothesis, hypothesisID, author)
}

// CommentParent references the comment a reply attaches to.
func CommentParent(commentID string, author PublicKey) (ParentRef, error) {
	return newParentRef(ParentComment, commentID, author)
}

// NewParentRef builds a reference from raw decoded fields.
func NewParentRef(rawKind, id string, author PublicKey) (ParentRef, error) {
	kind, err := ParseParentKind(rawKind)
	if err != nil {
		return ParentRef{}, err
	}
	return newParentRef(kind, id, author)
}

func newParentRef(kind ParentKind, id string, author PublicKey) (ParentRef, error) {
	if strings.TrimSpace(id) == "" {
		return ParentRef{}, fmt.Errorf("%w: parent id is required", ErrValidation)
	}
	if author.IsZero() {
		return ParentRef{}, fmt.Errorf("%w: parent author is required", ErrValidation)
	}
	return ParentRef{kind: kind, id: strings.TrimSpace(id), author: author}, nil
}

// Kind returns hypothesis or comment.
func (p ParentRef) Kind() ParentKind { return p.kind }

// ID returns the parent entity id.
func (p ParentRef) ID() string { return p.id }

// Author returns the parent entity's author.
func (p ParentRef) Author() PublicKey { return p.author }

// IsRoot reports whether the parent is a hypothesis (depth-0 comment).
func (p ParentRef) IsRoot() bool { return p.kind == ParentHypothesis }

// Comment is a single node in a discussion thread. Replies are owned
// exclusively by their parent and attach only through AddReply, which enforces
// the parent/depth invariants. Deletion is soft: content is hidden, position
// and children are kept.
type Comment struct {
	id        string
	eventID   string
	content   CommentContent
	parent    ParentRef
	author    PublicKey
	createdAt time.Time
	depth     int
	replies   []*Comment
	deleted   bool
}

// NewComment validates all fields. Root comments (hypothesis parent) must have
// depth 0; replies carry the parent comment's depth + 1, at most 10.
func NewComment(id, eventID, rawContent string, parent ParentRef, author PublicKey, createdAt time.Time, depth int) (*Comment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: comment id is required", ErrValidation)
	}
	if author.IsZero() {
		return nil, fmt.Errorf("%w: comment author is required", ErrValidation)
	}
	if parent.ID() == "" {
		return nil, fmt.Errorf("%w: comment requires a parent reference", ErrValidation)
	}
	content, err := NewCommentContent(rawContent)
	if err != nil {
		return nil, err
	}
	if depth < 0 || depth > maxCommentDepth {
		return nil, fmt.Errorf("%w: comment depth must be between 0 and %d, got %d", ErrValidation, maxCommentDepth, depth)
	}
	if parent.IsRoot() && depth != 0 {
		return nil, fmt.Errorf("%w: a comment on a hypothesis must have depth 0, got %d", ErrValidation, depth)
	}
	if !parent.IsRoot() && depth == 0 {
		return nil, fmt.Errorf("%w: a reply to a comment cannot have depth 0", ErrValidation)
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Comment{
		id:        strings.TrimSpace(id),
		eventID:   eventID,
		content:   content,
		parent:    parent,
		author:    author,
		createdAt: createdAt,
		depth:     depth,
	}, nil
}

// ID returns the stable entity identifier.
func (c *Comment) ID() string { return c.id }

// EventID returns the wire event id, empty until published.
func (c *Comment) EventID() string { return c.eventID }

// Content returns the validated content.
func (c *Comment) Content() CommentContent { return c.content }

// Parent returns the parent reference.
func (c *Comment) Parent() ParentRef { return c.parent }

// Author returns the comment author.
func (c *Comment) Author() PublicKey { return c.author }

// CreatedAt returns the creation time.
func (c *Comment) CreatedAt() time.Time { return c.createdAt }

// Depth returns the nesting depth, 0 for root comments.
func (c *Comment) Depth() int { return c.depth }

// IsDeleted reports whether the comment was soft-deleted.
func (c *Comment) IsDeleted() bool { return c.deleted }

// IsRoot reports whether the comment sits directly on a hypothesis.
func (c *Comment) IsRoot() bool { return c.parent.IsRoot() }

// Replies returns the ordered direct replies. The returned slice is a copy;
// the reply list itself changes only through AddReply.
func (c *Comment) Replies() []*Comment {
	out := make([]*Comment, len(c.replies))
	copy(out, c.replies)
	return out
}

// ReplyCount returns the number of direct replies.
func (c *Comment) ReplyCount() int { return len(c.replies) }

// SetEventID records the wire event id after publication. It may be set once.
func (c *Comment) SetEventID(eventID string) error {
	if c.eventID != "" && c.eventID != eventID {
		return fmt.Errorf("%w: comment %s already bound to event %s", ErrInvariant, c.id, c.eventID)
	}
	c.eventID = eventID
	return nil
}

// AddReply attaches a child comment. The child's parent reference must name
// this comment (kind, id, and author all matching) and its depth must be
// exactly this comment's depth + 1. A depth-10 comment accepts no replies.
// Mismatches are an error, never silently coerced.
func (c *Comment) AddReply(reply *Comment) error {
	if reply == nil {
		return fmt.Errorf("%w: reply is nil", ErrInvariant)
	}
	if c.depth >= maxCommentDepth {
		return fmt.Errorf("%w: comment %s is at maximum depth %d and cannot take replies", ErrInvariant, c.id, maxCommentDepth)
	}
	if reply.parent.Kind() != ParentComment {
		return fmt.Errorf("%w: reply %s does not reference a comment parent", ErrInvariant, reply.id)
	}
	if reply.parent.ID() != c.id {
		return fmt.Errorf("%w: reply %s references parent %s, not %s", ErrInvariant, reply.id, reply.parent.ID(), c.id)
	}
	if !reply.parent.Author().Equal(c.author) {
		return fmt.Errorf("%w: reply %s references the wrong parent author", ErrInvariant, reply.id)
	}
	if reply.depth != c.depth+1 {
		return fmt.Errorf("%w: reply %s has depth %d, expected %d", ErrInvariant, reply.id, reply.depth, c.depth+1)
	}
	c.replies = append(c.replies, reply)
	return nil
}

// MarkDeleted soft-deletes the comment. One-way: there is no undelete.
func (c *Comment) MarkDeleted() {
	c.deleted = true
}

// ThreadSize counts this comment and every descendant. Bounded by the depth
// limit, so recursion is safe.
func (c *Comment) ThreadSize() int {
	size := 1
	for _, r := range c.replies {
		size += r.ThreadSize()
	}
	return size
}

// FlattenThread returns the thread in pre-order: this comment, then each
// reply's full flatten, in reply order.
func (c *Comment) FlattenThread() []*Comment {
	out := []*Comment{c}
	for _, r := range c.replies {
		out = append(out, r.FlattenThread()...)
	}
	return out
}

// CommentSummary is the plain projection handed to callers outside the
// domain. Deleted comments keep their position but hide content.
type CommentSummary struct {
	ID           string           `json:"id"`
	EventID      string           `json:"event_id,omitempty"`
	Content      string           `json:"content"`
	ParentKind   string           `json:"parent_kind"`
	ParentID     string           `json:"parent_id"`
	AuthorPubKey string           `json:"author_pubkey"`
	CreatedAt    time.Time        `json:"created_at"`
	Depth        int              `json:"depth"`
	Deleted      bool             `json:"deleted"`
	ReadingTime  int              `json:"reading_time_minutes"`
	Replies      []CommentSummary `json:"replies,omitempty"`
}

// Summary creates the plain projection of the comment and its subtree.
func (c *Comment) Summary() CommentSummary {
	content := c.content.String()
	if c.deleted {
		content = "[deleted]"
	}
	s := CommentSummary{
		ID:           c.id,
		EventID:      c.eventID,
		Content:      content,
		ParentKind:   string(c.parent.Kind()),
		ParentID:     c.parent.ID(),
		AuthorPubKey: c.author.Hex(),
		CreatedAt:    c.createdAt,
		Depth:        c.depth,
		Deleted:      c.deleted,
		ReadingTime:  c.content.EstimatedReadingTime(),
	}
	for _, r := range c.replies {
		s.Replies = append(s.Replies, r.Summary())
	}
	return s
}
