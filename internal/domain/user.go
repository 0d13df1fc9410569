package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReputationTier buckets a reputation score for display.
type ReputationTier string

const (
	TierNewcomer    ReputationTier = "newcomer"
	TierContributor ReputationTier = "contributor"
	TierEstablished ReputationTier = "established"
	TierExpert      ReputationTier = "expert"
	TierAuthority   ReputationTier = "authority"
)

// Tier boundaries on the 0-100 reputation score.
const (
	tierContributorMin = 10
	tierEstablishedMin = 30
	tierExpertMin      = 60
	tierAuthorityMin   = 90
)

// UserReputation is a derived score over a user's received votes and
// contribution volume. It is computed, never stored.
type UserReputation struct {
	UpvotesReceived   int `json:"upvotes_received"`
	DownvotesReceived int `json:"downvotes_received"`
	Contributions     int `json:"contributions"`
}

// NewUserReputation validates the raw counts.
func NewUserReputation(upvotes, downvotes, contributions int) (UserReputation, error) {
	if upvotes < 0 || downvotes < 0 || contributions < 0 {
		return UserReputation{}, fmt.Errorf("%w: reputation counts cannot be negative", ErrValidation)
	}
	return UserReputation{
		UpvotesReceived:   upvotes,
		DownvotesReceived: downvotes,
		Contributions:     contributions,
	}, nil
}

// VoteRatio returns upvotes over total votes received, 0 with no votes.
func (r UserReputation) VoteRatio() float64 {
	total := r.UpvotesReceived + r.DownvotesReceived
	if total == 0 {
		return 0
	}
	return float64(r.UpvotesReceived) / float64(total)
}

// Score combines vote ratio (up to 50 points) and contribution count capped
// at 100 (up to 50 points) into a 0-100 value.
func (r UserReputation) Score() float64 {
	contributions := r.Contributions
	if contributions > 100 {
		contributions = 100
	}
	return r.VoteRatio()*50 + float64(contributions)*0.5
}

// Tier maps the score to a named tier.
func (r UserReputation) Tier() ReputationTier {
	switch score := r.Score(); {
	case score >= tierAuthorityMin:
		return TierAuthority
	case score >= tierExpertMin:
		return TierExpert
	case score >= tierEstablishedMin:
		return TierEstablished
	case score >= tierContributorMin:
		return TierContributor
	default:
		return TierNewcomer
	}
}

// UserActivityMetrics tracks a user's contribution counts and the span of
// their participation.
type UserActivityMetrics struct {
	HypothesesPublished int        `json:"hypotheses_published"`
	SourcesContributed  int        `json:"sources_contributed"`
	CommentsWritten     int        `json:"comments_written"`
	VotesCast           int        `json:"votes_cast"`
	FirstSeenAt         *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
}

// TotalContributions sums hypotheses, sources, and comments.
func (m UserActivityMetrics) TotalContributions() int {
	return m.HypothesesPublished + m.SourcesContributed + m.CommentsWritten
}

// IsActive reports activity within the last 30 days.
func (m UserActivityMetrics) IsActive(now time.Time) bool {
	if m.LastSeenAt == nil {
		return false
	}
	return now.Sub(*m.LastSeenAt) <= 30*24*time.Hour
}

// User is a participant identified by their public key. Display name and the
// human-readable identifier are optional; reputation is derived on read.
type User struct {
	pubkey      PublicKey
	displayName DisplayName
	nip05       string
	reputation  UserReputation
	activity    UserActivityMetrics
}

// NewUser validates identity and optional profile fields.
func NewUser(pubkey PublicKey, rawDisplayName, nip05 string) (*User, error) {
	if pubkey.IsZero() {
		return nil, fmt.Errorf("%w: user requires a public key", ErrValidation)
	}
	name, err := NewDisplayName(rawDisplayName)
	if err != nil {
		return nil, err
	}
	nip05 = strings.TrimSpace(nip05)
	if nip05 != "" && !strings.Contains(nip05, "@") {
		return nil, fmt.Errorf("%w: identifier %q is not of the form name@domain", ErrValidation, nip05)
	}
	return &User{pubkey: pubkey, displayName: name, nip05: nip05}, nil
}

// PubKey returns the user's identity key.
func (u *User) PubKey() PublicKey { return u.pubkey }

// DisplayName returns the optional display name.
func (u *User) DisplayName() DisplayName { return u.displayName }

// Identifier returns the optional name@domain identifier.
func (u *User) Identifier() string { return u.nip05 }

// Reputation returns the current derived reputation.
func (u *User) Reputation() UserReputation { return u.reputation }

// Activity returns the current activity metrics.
func (u *User) Activity() UserActivityMetrics { return u.activity }

// SetReputation replaces the derived reputation.
func (u *User) SetReputation(rep UserReputation) { u.reputation = rep }

// SetActivity replaces the activity metrics.
func (u *User) SetActivity(m UserActivityMetrics) { u.activity = m }

// Handle returns the best display form: display name, then identifier, then a
// shortened npub.
func (u *User) Handle() string {
	if u.displayName.IsSet() {
		return u.displayName.String()
	}
	if u.nip05 != "" {
		return u.nip05
	}
	npub := u.pubkey.Npub()
	if len(npub) > 12 {
		return npub[:12] + "…"
	}
	return npub
}

// UserSummary is the plain projection handed to callers outside the domain.
type UserSummary struct {
	PubKey      string              `json:"pubkey"`
	Npub        string              `json:"npub"`
	DisplayName string              `json:"display_name,omitempty"`
	Identifier  string              `json:"identifier,omitempty"`
	Handle      string              `json:"handle"`
	Score       float64             `json:"reputation_score"`
	Tier        string              `json:"reputation_tier"`
	Activity    UserActivityMetrics `json:"activity"`
}

// Summary creates the plain projection of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		PubKey:      u.pubkey.Hex(),
		Npub:        u.pubkey.Npub(),
		DisplayName: u.displayName.String(),
		Identifier:  u.nip05,
		Handle:      u.Handle(),
		Score:       u.reputation.Score(),
		Tier:        string(u.reputation.Tier()),
		Activity:    u.activity,
	}
}
