package domain

import (
	"fmt"
	"time"
)

// Vote is a single quality judgment on a source: exactly +1 or -1. A value of
// 0 means "no vote" and is represented by the absence of a Vote, never stored.
type Vote struct {
	value     int
	voter     PublicKey
	createdAt time.Time
}

// NewVote validates the vote value and voter identity.
func NewVote(value int, voter PublicKey, createdAt time.Time) (Vote, error) {
	if value != 1 && value != -1 {
		return Vote{}, fmt.Errorf("%w: vote value must be +1 or -1, got %d", ErrInvariant, value)
	}
	if voter.IsZero() {
		return Vote{}, fmt.Errorf("%w: vote requires a voter identity", ErrValidation)
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return Vote{value: value, voter: voter, createdAt: createdAt}, nil
}

// Value returns +1 or -1.
func (v Vote) Value() int { return v.value }

// Voter returns the voter identity.
func (v Vote) Voter() PublicKey { return v.voter }

// CreatedAt returns when the vote was cast.
func (v Vote) CreatedAt() time.Time { return v.createdAt }

// IsUpvote reports whether the vote is +1.
func (v Vote) IsUpvote() bool { return v.value == 1 }
