package codec

import (
	"encoding/json"
	"time"

	"github.com/jimd-den/BlackPaper/internal/domain"
)

// profileContent is the kind-0 metadata payload. Only the fields this
// platform reads are modeled; unknown fields pass through untouched.
type profileContent struct {
	Name  string `json:"name,omitempty"`
	About string `json:"about,omitempty"`
	NIP05 string `json:"nip05,omitempty"`
}

// ProfileCodec maps between User aggregates and kind-0 metadata events.
type ProfileCodec struct{}

// NewProfileCodec creates a profile codec.
func NewProfileCodec() *ProfileCodec {
	return &ProfileCodec{}
}

// Encode produces the unsigned metadata event template for a user profile.
func (c *ProfileCodec) Encode(u *domain.User, at time.Time) (Template, error) {
	content, err := json.Marshal(profileContent{
		Name:  u.DisplayName().String(),
		NIP05: u.Identifier(),
	})
	if err != nil {
		return Template{}, err
	}
	return Template{
		Kind:      KindProfile,
		CreatedAt: at,
		Tags:      []Tag{},
		Content:   string(content),
	}, nil
}

// Decode validates an inbound metadata event and maps it into a User. A false
// return means skip. Profiles with an invalid display name or identifier are
// kept with those fields dropped rather than skipped whole: the identity is
// still useful.
func (c *ProfileCodec) Decode(e *Event) (*domain.User, bool) {
	if e == nil || e.Kind != KindProfile {
		return nil, false
	}
	author, err := domain.NewPublicKey(e.PubKey)
	if err != nil {
		return nil, false
	}
	var content profileContent
	if err := json.Unmarshal([]byte(e.Content), &content); err != nil {
		return nil, false
	}
	u, err := domain.NewUser(author, content.Name, content.NIP05)
	if err != nil {
		u, err = domain.NewUser(author, "", "")
		if err != nil {
			return nil, false
		}
	}
	return u, true
}
