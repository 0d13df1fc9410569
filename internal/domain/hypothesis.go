package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	minTitleLen = 10
	maxTitleLen = 256
	minBodyLen  = 50
	maxBodyLen  = 1024

	// minBodySentences is the minimum number of sentence terminators a body
	// must contain to count as a reasoned statement rather than a slogan.
	minBodySentences = 2
)

// HypothesisTitle is the validated headline of a hypothesis.
type HypothesisTitle struct {
	value string
}

// NewHypothesisTitle validates a title: trimmed, 10-256 characters, starting
// with a letter.
func NewHypothesisTitle(raw string) (HypothesisTitle, error) {
	title := strings.TrimSpace(raw)
	n := len([]rune(title))
	if n < minTitleLen {
		return HypothesisTitle{}, fmt.Errorf("%w: title must be at least %d characters, got %d", ErrValidation, minTitleLen, n)
	}
	if n > maxTitleLen {
		return HypothesisTitle{}, fmt.Errorf("%w: title must be at most %d characters, got %d", ErrValidation, maxTitleLen, n)
	}
	if !unicode.IsLetter([]rune(title)[0]) {
		return HypothesisTitle{}, fmt.Errorf("%w: title must start with a letter", ErrValidation)
	}
	return HypothesisTitle{value: title}, nil
}

func (t HypothesisTitle) String() string { return t.value }

// HypothesisBody is the validated argument text of a hypothesis.
type HypothesisBody struct {
	value string
}

// NewHypothesisBody validates a body: trimmed, 50-1024 characters, containing
// at least two sentences.
func NewHypothesisBody(raw string) (HypothesisBody, error) {
	body := strings.TrimSpace(raw)
	n := len([]rune(body))
	if n < minBodyLen {
		return HypothesisBody{}, fmt.Errorf("%w: body must be at least %d characters, got %d", ErrValidation, minBodyLen, n)
	}
	if n > maxBodyLen {
		return HypothesisBody{}, fmt.Errorf("%w: body must be at most %d characters, got %d", ErrValidation, maxBodyLen, n)
	}
	if countSentences(body) < minBodySentences {
		return HypothesisBody{}, fmt.Errorf("%w: body must contain at least %d sentences", ErrValidation, minBodySentences)
	}
	return HypothesisBody{value: body}, nil
}

func (b HypothesisBody) String() string { return b.value }

// WordCount returns the number of whitespace-separated words.
func (b HypothesisBody) WordCount() int { return len(strings.Fields(b.value)) }

func countSentences(s string) int {
	count := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// Category classifies a hypothesis into one of the fixed discussion areas.
type Category string

const (
	CategoryPhysics    Category = "physics"
	CategoryBiology    Category = "biology"
	CategoryPsychology Category = "psychology"
	CategoryEconomics  Category = "economics"
	CategoryTechnology Category = "technology"
	CategoryMedicine   Category = "medicine"
	CategoryClimate    Category = "climate"
	CategoryOther      Category = "other"
)

// AllCategories lists every valid category in display order.
var AllCategories = []Category{
	CategoryPhysics,
	CategoryBiology,
	CategoryPsychology,
	CategoryEconomics,
	CategoryTechnology,
	CategoryMedicine,
	CategoryClimate,
	CategoryOther,
}

// ParseCategory validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, valid := range AllCategories {
		if c == valid {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrValidation, raw)
}

// Evidence balance thresholds. Treated as given constants, not tunables.
const (
	controversyBalanceMax = 0.3
	controversyMinSources = 10
	minSourcesForEvidence = 5
)

// Hypothesis is a published, falsifiable claim. It owns its validated title,
// body, and category; source and comment counters are cached values maintained
// by external aggregation and are the only mutable state.
type Hypothesis struct {
	id        string
	eventID   string
	title     HypothesisTitle
	body      HypothesisBody
	category  Category
	author    PublicKey
	createdAt time.Time

	supportingCount int
	refutingCount   int
	commentCount    int
}

// NewHypothesis validates all fields and returns a hypothesis with zeroed
// counters. id is the stable entity identifier; eventID is the wire event that
// carried it (empty until published).
func NewHypothesis(id, eventID, title, body, category string, author PublicKey, createdAt time.Time) (*Hypothesis, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: hypothesis id is required", ErrValidation)
	}
	if author.IsZero() {
		return nil, fmt.Errorf("%w: hypothesis author is required", ErrValidation)
	}
	t, err := NewHypothesisTitle(title)
	if err != nil {
		return nil, err
	}
	b, err := NewHypothesisBody(body)
	if err != nil {
		return nil, err
	}
	c, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Hypothesis{
		id:        strings.TrimSpace(id),
		eventID:   eventID,
		title:     t,
		body:      b,
		category:  c,
		author:    author,
		createdAt: createdAt,
	}, nil
}

// HypothesisRecord is the flat shape used to rebuild a hypothesis from a
// trusted store, counters included.
type HypothesisRecord struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Category        string    `json:"category"`
	AuthorPubKey    string    `json:"author_pubkey"`
	CreatedAt       time.Time `json:"created_at"`
	SupportingCount int       `json:"supporting_count"`
	RefutingCount   int       `json:"refuting_count"`
	CommentCount    int       `json:"comment_count"`
}

// HypothesisFromRecord rebuilds a hypothesis from a record, re-running all
// field validation and restoring the cached counters.
func HypothesisFromRecord(rec HypothesisRecord) (*Hypothesis, error) {
	author, err := NewPublicKey(rec.AuthorPubKey)
	if err != nil {
		return nil, err
	}
	h, err := NewHypothesis(rec.ID, rec.EventID, rec.Title, rec.Body, rec.Category, author, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := h.UpdateSourceStats(rec.SupportingCount, rec.RefutingCount); err != nil {
		return nil, err
	}
	if err := h.UpdateCommentCount(rec.CommentCount); err != nil {
		return nil, err
	}
	return h, nil
}

// ID returns the stable entity identifier.
func (h *Hypothesis) ID() string { return h.id }

// EventID returns the wire event id, empty until published.
func (h *Hypothesis) EventID() string { return h.eventID }

// Title returns the validated title.
func (h *Hypothesis) Title() HypothesisTitle { return h.title }

// Body returns the validated body.
func (h *Hypothesis) Body() HypothesisBody { return h.body }

// Category returns the category.
func (h *Hypothesis) Category() Category { return h.category }

// Author returns the creator's public key.
func (h *Hypothesis) Author() PublicKey { return h.author }

// CreatedAt returns the creation time.
func (h *Hypothesis) CreatedAt() time.Time { return h.createdAt }

// SupportingCount returns the cached count of supporting sources.
func (h *Hypothesis) SupportingCount() int { return h.supportingCount }

// RefutingCount returns the cached count of refuting sources.
func (h *Hypothesis) RefutingCount() int { return h.refutingCount }

// CommentCount returns the cached comment count.
func (h *Hypothesis) CommentCount() int { return h.commentCount }

// SetEventID records the wire event id after publication. It may be set once.
func (h *Hypothesis) SetEventID(eventID string) error {
	if h.eventID != "" && h.eventID != eventID {
		return fmt.Errorf("%w: hypothesis %s already bound to event %s", ErrInvariant, h.id, h.eventID)
	}
	h.eventID = eventID
	return nil
}

// UpdateSourceStats overwrites the cached source counters. Counts come from
// external aggregation; negatives are rejected and leave the counters untouched.
func (h *Hypothesis) UpdateSourceStats(supporting, refuting int) error {
	if supporting < 0 || refuting < 0 {
		return fmt.Errorf("%w: source counts cannot be negative (%d supporting, %d refuting)", ErrInvariant, supporting, refuting)
	}
	h.supportingCount = supporting
	h.refutingCount = refuting
	return nil
}

// UpdateCommentCount overwrites the cached comment counter.
func (h *Hypothesis) UpdateCommentCount(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: comment count cannot be negative (%d)", ErrInvariant, n)
	}
	h.commentCount = n
	return nil
}

// TotalSources returns the combined source count.
func (h *Hypothesis) TotalSources() int {
	return h.supportingCount + h.refutingCount
}

// EvidenceBalance maps the supporting/refuting split onto [-1, 1]: +1 all
// supporting, -1 all refuting, 0 for an even split or no sources at all.
func (h *Hypothesis) EvidenceBalance() float64 {
	total := h.TotalSources()
	if total == 0 {
		return 0
	}
	return (float64(h.supportingCount)/float64(total) - 0.5) * 2
}

// IsControversial reports whether the evidence is both plentiful and nearly
// evenly split: |balance| < 0.3 with at least 10 sources.
func (h *Hypothesis) IsControversial() bool {
	balance := h.EvidenceBalance()
	if balance < 0 {
		balance = -balance
	}
	return balance < controversyBalanceMax && h.TotalSources() >= controversyMinSources
}

// NeedsMoreEvidence reports whether fewer than 5 sources are attached.
func (h *Hypothesis) NeedsMoreEvidence() bool {
	return h.TotalSources() < minSourcesForEvidence
}

// HypothesisSummary is the plain projection handed to callers outside the
// domain (JSON API, store rows).
type HypothesisSummary struct {
	ID                string    `json:"id"`
	EventID           string    `json:"event_id,omitempty"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	Category          string    `json:"category"`
	AuthorPubKey      string    `json:"author_pubkey"`
	AuthorNpub        string    `json:"author_npub"`
	CreatedAt         time.Time `json:"created_at"`
	SupportingCount   int       `json:"supporting_count"`
	RefutingCount     int       `json:"refuting_count"`
	CommentCount      int       `json:"comment_count"`
	EvidenceBalance   float64   `json:"evidence_balance"`
	Controversial     bool      `json:"controversial"`
	NeedsMoreEvidence bool      `json:"needs_more_evidence"`
}

// Summary creates the plain projection of the hypothesis.
func (h *Hypothesis) Summary() HypothesisSummary {
	return HypothesisSummary{
		ID:                h.id,
		EventID:           h.eventID,
		Title:             h.title.String(),
		Body:              h.body.String(),
		Category:          string(h.category),
		AuthorPubKey:      h.author.Hex(),
		AuthorNpub:        h.author.Npub(),
		CreatedAt:         h.createdAt,
		SupportingCount:   h.supportingCount,
		RefutingCount:     h.refutingCount,
		CommentCount:      h.commentCount,
		EvidenceBalance:   h.EvidenceBalance(),
		Controversial:     h.IsControversial(),
		NeedsMoreEvidence: h.NeedsMoreEvidence(),
	}
}
