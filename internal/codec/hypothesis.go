package codec

import (
	"encoding/json"
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// hypothesisContent is the JSON content payload of a hypothesis event.
type hypothesisContent struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

// HypothesisCodec maps between Hypothesis aggregates and wire events.
type HypothesisCodec struct{}

// NewHypothesisCodec creates a hypothesis codec.
func NewHypothesisCodec() *HypothesisCodec {
	return &HypothesisCodec{}
}

// Encode produces the unsigned event template for a hypothesis. The business
// fields ride in the content JSON; the tags duplicate the discriminators
// relays need for filtering.
func (c *HypothesisCodec) Encode(h *domain.Hypothesis) (Template, error) {
	content, err := json.Marshal(hypothesisContent{
		Title:    h.Title().String(),
		Body:     h.Body().String(),
		Category: string(h.Category()),
	})
	if err != nil {
		return Template{}, err
	}
	return Template{
		Kind:      KindDiscourse,
		CreatedAt: h.CreatedAt(),
		Tags: []Tag{
			{TagIdentifier, h.ID()},
			{TagEntity, EntityHypothesis},
			{TagEntity, string(h.Category())},
			{TagTitle, h.Title().String()},
			{TagCategory, string(h.Category())},
		},
		Content: string(content),
	}, nil
}

// Decode validates an inbound event and maps it into a Hypothesis. A false
// return means the event is structurally invalid and must be skipped, never
// surfaced as a stream error.
func (c *HypothesisCodec) Decode(e *Event) (*domain.Hypothesis, bool) {
	if e == nil || e.Kind != KindDiscourse || !e.HasEntityTag(EntityHypothesis) {
		return nil, false
	}
	id, ok := e.TagValue(TagIdentifier)
	if !ok {
		return nil, false
	}
	var content hypothesisContent
	if err := json.Unmarshal([]byte(e.Content), &content); err != nil {
		return nil, false
	}
	author, err := domain.NewPublicKey(e.PubKey)
	if err != nil {
		return nil, false
	}
	h, err := domain.NewHypothesis(id, e.ID, content.Title, content.Body, content.Category,
		author, time.Unix(e.CreatedAt, 0).UTC())
	if err != nil {
		return nil, false
	}
	return h, true
}
