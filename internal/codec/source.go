package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// sourceContent is the JSON content payload of a source event.
type sourceContent struct {
	URL          string `json:"url"`
	Description  string `json:"description"`
	Stance       string `json:"stance"`
	HypothesisID string `json:"hypothesis_id"`
}

// SourceCodec maps between Source aggregates and wire events, and handles the
// reaction events that carry votes.
type SourceCodec struct{}

// NewSourceCodec creates a source codec.
func NewSourceCodec() *SourceCodec {
	return &SourceCodec{}
}

// Encode produces the unsigned event template for a source. The "e" tag
// references the hypothesis event so relays can serve "sources for this
// hypothesis" queries.
func (c *SourceCodec) Encode(s *domain.Source, hypothesisEventID string) (Template, error) {
	content, err := json.Marshal(sourceContent{
		URL:          s.URL().String(),
		Description:  s.Description().String(),
		Stance:       string(s.Stance()),
		HypothesisID: s.HypothesisID(),
	})
	if err != nil {
		return Template{}, err
	}
	return Template{
		Kind:      KindDiscourse,
		CreatedAt: s.CreatedAt(),
		Tags: []Tag{
			{TagIdentifier, s.ID()},
			{TagEntity, EntitySource},
			{TagEventRef, hypothesisEventID},
			{TagStance, string(s.Stance())},
		},
		Content: string(content),
	}, nil
}

// Decode validates an inbound event and maps it into a Source with an empty
// vote map; votes arrive as separate reaction events and are folded in by the
// caller. A false return means skip.
func (c *SourceCodec) Decode(e *Event) (*domain.Source, bool) {
	if e == nil || e.Kind != KindDiscourse || !e.HasEntityTag(EntitySource) {
		return nil, false
	}
	id, ok := e.TagValue(TagIdentifier)
	if !ok {
		return nil, false
	}
	if _, ok := e.TagValue(TagEventRef); !ok {
		return nil, false
	}
	var content sourceContent
	if err := json.Unmarshal([]byte(e.Content), &content); err != nil {
		return nil, false
	}
	contributor, err := domain.NewPublicKey(e.PubKey)
	if err != nil {
		return nil, false
	}
	s, err := domain.NewSource(id, e.ID, content.HypothesisID, content.URL,
		content.Description, content.Stance, contributor, time.Unix(e.CreatedAt, 0).UTC())
	if err != nil {
		return nil, false
	}
	return s, true
}

// EncodeVote produces the reaction event template for a vote on a source:
// content "+" or "-", referencing the source event and its author.
func (c *SourceCodec) EncodeVote(value int, sourceEventID string, sourceAuthor domain.PublicKey, at time.Time) (Template, error) {
	if value != 1 && value != -1 {
		return Template{}, fmt.Errorf("%w: vote value must be +1 or -1, got %d", domain.ErrInvariant, value)
	}
	content := "+"
	if value < 0 {
		content = "-"
	}
	return Template{
		Kind:      KindReaction,
		CreatedAt: at,
		Tags: []Tag{
			{TagEventRef, sourceEventID},
			{TagPubKeyRef, sourceAuthor.Hex()},
		},
		Content: content,
	}, nil
}

// DecodedVote is a vote reaction lifted off the wire, keyed to the source
// event it targets.
type DecodedVote struct {
	EventID       string
	SourceEventID string
	Voter         domain.PublicKey
	Value         int
	CreatedAt     time.Time
}

// Supersedes reports whether v replaces other as the voter's effective vote:
// the newer created_at wins, and equal timestamps fall back to the lower
// event id so every client folds the same winner.
func (v DecodedVote) Supersedes(other DecodedVote) bool {
	if !v.CreatedAt.Equal(other.CreatedAt) {
		return v.CreatedAt.After(other.CreatedAt)
	}
	return v.EventID < other.EventID
}

// DecodeVote validates a reaction event and maps it into a DecodedVote.
// Reactions with any content other than "+" or "-" are skipped.
func (c *SourceCodec) DecodeVote(e *Event) (DecodedVote, bool) {
	if e == nil || e.Kind != KindReaction {
		return DecodedVote{}, false
	}
	target, ok := e.TagValue(TagEventRef)
	if !ok || target == "" {
		return DecodedVote{}, false
	}
	var value int
	switch e.Content {
	case "+", "":
		value = 1
	case "-":
		value = -1
	default:
		return DecodedVote{}, false
	}
	voter, err := domain.NewPublicKey(e.PubKey)
	if err != nil {
		return DecodedVote{}, false
	}
	return DecodedVote{
		EventID:       e.ID,
		SourceEventID: target,
		Voter:         voter,
		Value:         value,
		CreatedAt:     time.Unix(e.CreatedAt, 0).UTC(),
	}, true
}
