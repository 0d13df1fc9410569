package codec

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// commentContent is the JSON content payload of a comment event.
type commentContent struct {
	Content    string `json:"content"`
	ParentType string `json:"parent_type"`
	ParentID   string `json:"parent_id"`
	Depth      int    `json:"depth"`
}

// CommentCodec maps between Comment aggregates and wire events, and handles
// the deletion events that soft-delete comments.
type CommentCodec struct{}

// NewCommentCodec creates a comment codec.
func NewCommentCodec() *CommentCodec {
	return &CommentCodec{}
}

// Encode produces the unsigned event template for a comment. The "e" tag
// carries the parent event id and "p" the parent author, so relays can serve
// whole threads with a single reference filter.
func (c *CommentCodec) Encode(cm *domain.Comment, parentEventID string) (Template, error) {
	content, err := json.Marshal(commentContent{
		Content:    cm.Content().String(),
		ParentType: string(cm.Parent().Kind()),
		ParentID:   cm.Parent().ID(),
		Depth:      cm.Depth(),
	})
	if err != nil {
		return Template{}, err
	}
	return Template{
		Kind:      KindDiscourse,
		CreatedAt: cm.CreatedAt(),
		Tags: []Tag{
			{TagIdentifier, cm.ID()},
			{TagEntity, EntityComment},
			{TagEventRef, parentEventID},
			{TagPubKeyRef, cm.Parent().Author().Hex()},
			{TagParentType, string(cm.Parent().Kind())},
			{TagDepth, strconv.Itoa(cm.Depth())},
		},
		Content: string(content),
	}, nil
}

// Decode validates an inbound event and maps it into a Comment. A false
// return means skip: malformed tags, unparseable content, or any domain
// validation failure drops the single event without touching the stream.
func (c *CommentCodec) Decode(e *Event) (*domain.Comment, bool) {
	if e == nil || e.Kind != KindDiscourse || !e.HasEntityTag(EntityComment) {
		return nil, false
	}
	id, ok := e.TagValue(TagIdentifier)
	if !ok {
		return nil, false
	}
	parentType, ok := e.TagValue(TagParentType)
	if !ok {
		return nil, false
	}
	parentAuthorHex, ok := e.TagValue(TagPubKeyRef)
	if !ok {
		return nil, false
	}
	var content commentContent
	if err := json.Unmarshal([]byte(e.Content), &content); err != nil {
		return nil, false
	}
	if content.ParentType != parentType {
		return nil, false
	}
	parentAuthor, err := domain.NewPublicKey(parentAuthorHex)
	if err != nil {
		return nil, false
	}
	parent, err := domain.NewParentRef(parentType, content.ParentID, parentAuthor)
	if err != nil {
		return nil, false
	}
	author, err := domain.NewPublicKey(e.PubKey)
	if err != nil {
		return nil, false
	}
	cm, err := domain.NewComment(id, e.ID, content.Content, parent, author,
		time.Unix(e.CreatedAt, 0).UTC(), content.Depth)
	if err != nil {
		return nil, false
	}
	return cm, true
}

// EncodeDeletion produces the deletion event template referencing the comment
// event to soft-delete.
func (c *CommentCodec) EncodeDeletion(commentEventID, reason string, at time.Time) Template {
	return Template{
		Kind:      KindDeletion,
		CreatedAt: at,
		Tags: []Tag{
			{TagEventRef, commentEventID},
		},
		Content: reason,
	}
}

// DecodeDeletion returns the event ids a deletion event targets, or false if
// it targets nothing.
func (c *CommentCodec) DecodeDeletion(e *Event) ([]string, bool) {
	if e == nil || e.Kind != KindDeletion {
		return nil, false
	}
	targets := e.TagValues(TagEventRef)
	if len(targets) == 0 {
		return nil, false
	}
	return targets, true
}
