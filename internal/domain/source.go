package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Credibility tiers for source URLs. Matching is ordered, first match wins;
// this is a fixed lookup table, not a learned model.
const (
	CredibilityAcademic = 1.0
	CredibilityHigh     = 0.8
	CredibilityMedium   = 0.6
	CredibilityDefault  = 0.4
)

var academicDomains = []string{
	".edu", "arxiv.org", "pubmed", "doi.org", "jstor", "springer",
	"nature", "science.org", "ieee.org",
}

var highTierDomains = []string{
	"reuters", "apnews", "bbc", ".gov", "who.int", "cdc.gov", "nasa.gov",
}

var mediumTierDomains = []string{
	"nytimes", "washingtonpost", "economist", "guardian",
}

// DefaultBlocklist lists hosts that are never acceptable as evidence: link
// shorteners that hide the real destination.
var DefaultBlocklist = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
}

// SourceURL is a validated HTTPS link to supporting or refuting material.
type SourceURL struct {
	value string
	host  string
}

// NewSourceURL validates a URL against the default blocklist.
func NewSourceURL(raw string) (SourceURL, error) {
	return NewSourceURLWithBlocklist(raw, DefaultBlocklist)
}

// NewSourceURLWithBlocklist validates a URL: well-formed, HTTPS-only, host
// present and not on the blocklist.
func NewSourceURLWithBlocklist(raw string, blocklist []string) (SourceURL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return SourceURL{}, fmt.Errorf("%w: source url is required", ErrValidation)
	}
	u, err := url.Parse(s)
	if err != nil {
		return SourceURL{}, fmt.Errorf("%w: source url is not a valid URL: %v", ErrValidation, err)
	}
	if u.Scheme != "https" {
		return SourceURL{}, fmt.Errorf("%w: source url must use https, got %q", ErrValidation, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return SourceURL{}, fmt.Errorf("%w: source url has no host", ErrValidation)
	}
	for _, blocked := range blocklist {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return SourceURL{}, fmt.Errorf("%w: domain %q is not accepted as a source", ErrValidation, host)
		}
	}
	return SourceURL{value: s, host: host}, nil
}

func (u SourceURL) String() string { return u.value }

// Host returns the lowercase hostname.
func (u SourceURL) Host() string { return u.host }

// CredibilityScore classifies the host into a fixed trust tier: academic 1.0,
// high 0.8, medium 0.6, everything else 0.4.
func (u SourceURL) CredibilityScore() float64 {
	for _, d := range academicDomains {
		if strings.Contains(u.host, d) {
			return CredibilityAcademic
		}
	}
	for _, d := range highTierDomains {
		if strings.Contains(u.host, d) {
			return CredibilityHigh
		}
	}
	for _, d := range mediumTierDomains {
		if strings.Contains(u.host, d) {
			return CredibilityMedium
		}
	}
	return CredibilityDefault
}

// IsAcademic reports whether the host matches the academic tier.
func (u SourceURL) IsAcademic() bool {
	return u.CredibilityScore() == CredibilityAcademic
}

const (
	minDescriptionLen   = 20
	maxDescriptionLen   = 512
	minDescriptionWords = 5
)

// SourceDescription explains why a source supports or refutes a hypothesis.
type SourceDescription struct {
	value string
}

// NewSourceDescription validates a description: trimmed, 20-512 characters,
// at least 5 words.
func NewSourceDescription(raw string) (SourceDescription, error) {
	desc := strings.TrimSpace(raw)
	n := len([]rune(desc))
	if n < minDescriptionLen {
		return SourceDescription{}, fmt.Errorf("%w: description must be at least %d characters, got %d", ErrValidation, minDescriptionLen, n)
	}
	if n > maxDescriptionLen {
		return SourceDescription{}, fmt.Errorf("%w: description must be at most %d characters, got %d", ErrValidation, maxDescriptionLen, n)
	}
	if words := len(strings.Fields(desc)); words < minDescriptionWords {
		return SourceDescription{}, fmt.Errorf("%w: description must contain at least %d words, got %d", ErrValidation, minDescriptionWords, words)
	}
	return SourceDescription{value: desc}, nil
}

func (d SourceDescription) String() string { return d.value }

// Length returns the character count.
func (d SourceDescription) Length() int { return len([]rune(d.value)) }

// Stance is whether a source supports or refutes its hypothesis.
type Stance string

const (
	StanceSupporting Stance = "supporting"
	StanceRefuting   Stance = "refuting"
)

// ParseStance validates a raw stance string.
func ParseStance(raw string) (Stance, error) {
	switch s := Stance(strings.ToLower(strings.TrimSpace(raw))); s {
	case StanceSupporting, StanceRefuting:
		return s, nil
	default:
		return "", fmt.Errorf("%w: stance must be supporting or refuting, got %q", ErrValidation, raw)
	}
}

// Source quality thresholds. Given constants.
const (
	highQualityMinScore    = 2.0
	highQualityMinVotes    = 3
	sourceControversyVotes = 5
	sourceControversyRatio = 0.6
)

// Source is an evidence link attached to a hypothesis. The vote map is the
// one mutable field; it is reachable only through AddVote/RemoveVote so the
// one-vote-per-voter invariant stays centralized.
type Source struct {
	id           string
	eventID      string
	hypothesisID string
	url          SourceURL
	description  SourceDescription
	stance       Stance
	contributor  PublicKey
	createdAt    time.Time

	votes map[string]Vote // keyed by voter hex
}

// NewSource validates all fields and returns a source with no votes.
func NewSource(id, eventID, hypothesisID, rawURL, rawDescription, rawStance string, contributor PublicKey, createdAt time.Time) (*Source, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: source id is required", ErrValidation)
	}
	if strings.TrimSpace(hypothesisID) == "" {
		return nil, fmt.Errorf("%w: source requires a hypothesis id", ErrValidation)
	}
	if contributor.IsZero() {
		return nil, fmt.Errorf("%w: source contributor is required", ErrValidation)
	}
	u, err := NewSourceURL(rawURL)
	if err != nil {
		return nil, err
	}
	desc, err := NewSourceDescription(rawDescription)
	if err != nil {
		return nil, err
	}
	stance, err := ParseStance(rawStance)
	if err != nil {
		return nil, err
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Source{
		id:           strings.TrimSpace(id),
		eventID:      eventID,
		hypothesisID: strings.TrimSpace(hypothesisID),
		url:          u,
		description:  desc,
		stance:       stance,
		contributor:  contributor,
		createdAt:    createdAt,
		votes:        make(map[string]Vote),
	}, nil
}

// ID returns the stable entity identifier.
func (s *Source) ID() string { return s.id }

// EventID returns the wire event id, empty until published.
func (s *Source) EventID() string { return s.eventID }

// HypothesisID returns the owning hypothesis id.
func (s *Source) HypothesisID() string { return s.hypothesisID }

// URL returns the validated URL.
func (s *Source) URL() SourceURL { return s.url }

// Description returns the validated description.
func (s *Source) Description() SourceDescription { return s.description }

// Stance returns supporting or refuting.
func (s *Source) Stance() Stance { return s.stance }

// Contributor returns who attached the source.
func (s *Source) Contributor() PublicKey { return s.contributor }

// CreatedAt returns the creation time.
func (s *Source) CreatedAt() time.Time { return s.createdAt }

// SetEventID records the wire event id after publication. It may be set once.
func (s *Source) SetEventID(eventID string) error {
	if s.eventID != "" && s.eventID != eventID {
		return fmt.Errorf("%w: source %s already bound to event %s", ErrInvariant, s.id, s.eventID)
	}
	s.eventID = eventID
	return nil
}

// AddVote records a vote, replacing any prior vote from the same voter.
func (s *Source) AddVote(voter PublicKey, value int, at time.Time) error {
	v, err := NewVote(value, voter, at)
	if err != nil {
		return err
	}
	s.votes[voter.Hex()] = v
	return nil
}

// RemoveVote deletes the voter's vote, if any.
func (s *Source) RemoveVote(voter PublicKey) {
	delete(s.votes, voter.Hex())
}

// VoteOf returns the voter's current vote, if any.
func (s *Source) VoteOf(voter PublicKey) (Vote, bool) {
	v, ok := s.votes[voter.Hex()]
	return v, ok
}

// VoteCount returns the number of distinct voters.
func (s *Source) VoteCount() int { return len(s.votes) }

// VoteScore returns the sum of all vote values.
func (s *Source) VoteScore() int {
	score := 0
	for _, v := range s.votes {
		score += v.Value()
	}
	return score
}

// Upvotes returns the count of +1 votes.
func (s *Source) Upvotes() int {
	n := 0
	for _, v := range s.votes {
		if v.IsUpvote() {
			n++
		}
	}
	return n
}

// Downvotes returns the count of -1 votes.
func (s *Source) Downvotes() int {
	return len(s.votes) - s.Upvotes()
}

// QualityScore combines vote sum, URL credibility, and description length into
// a deterministic score, recomputed from the vote map on every call.
func (s *Source) QualityScore() float64 {
	lengthBonus := float64(s.description.Length()) / 100
	if lengthBonus > 1.0 {
		lengthBonus = 1.0
	}
	return float64(s.VoteScore()) + s.url.CredibilityScore()*2 + lengthBonus
}

// IsHighQuality reports a score above 2 with at least 3 votes.
func (s *Source) IsHighQuality() bool {
	return s.QualityScore() > highQualityMinScore && s.VoteCount() >= highQualityMinVotes
}

// IsControversial reports at least 5 votes with the minority side exceeding
// 60% of the majority side.
func (s *Source) IsControversial() bool {
	if s.VoteCount() < sourceControversyVotes {
		return false
	}
	up, down := s.Upvotes(), s.Downvotes()
	minVotes, maxVotes := up, down
	if minVotes > maxVotes {
		minVotes, maxVotes = maxVotes, minVotes
	}
	if maxVotes == 0 {
		return false
	}
	return float64(minVotes)/float64(maxVotes) > sourceControversyRatio
}

// SourceSummary is the plain projection handed to callers outside the domain.
type SourceSummary struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id,omitempty"`
	HypothesisID     string    `json:"hypothesis_id"`
	URL              string    `json:"url"`
	Description      string    `json:"description"`
	Stance           string    `json:"stance"`
	ContributorHex   string    `json:"contributor_pubkey"`
	CreatedAt        time.Time `json:"created_at"`
	VoteCount        int       `json:"vote_count"`
	VoteScore        int       `json:"vote_score"`
	Upvotes          int       `json:"upvotes"`
	Downvotes        int       `json:"downvotes"`
	CredibilityScore float64   `json:"credibility_score"`
	QualityScore     float64   `json:"quality_score"`
	HighQuality      bool      `json:"high_quality"`
	Controversial    bool      `json:"controversial"`
}

// Summary creates the plain projection of the source.
func (s *Source) Summary() SourceSummary {
	return SourceSummary{
		ID:               s.id,
		EventID:          s.eventID,
		HypothesisID:     s.hypothesisID,
		URL:              s.url.String(),
		Description:      s.description.String(),
		Stance:           string(s.stance),
		ContributorHex:   s.contributor.Hex(),
		CreatedAt:        s.createdAt,
		VoteCount:        s.VoteCount(),
		VoteScore:        s.VoteScore(),
		Upvotes:          s.Upvotes(),
		Downvotes:        s.Downvotes(),
		CredibilityScore: s.url.CredibilityScore(),
		QualityScore:     s.QualityScore(),
		HighQuality:      s.IsHighQuality(),
		Controversial:    s.IsControversial(),
	}
}
