// Package codec maps between domain aggregates and the Nostr wire format:
// the event envelope, the tag-based discriminators relays filter on, the JSON
// content payloads, and the query filters. A malformed inbound event yields
// a skip signal, never an error that could abort a subscription.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds used by the platform. Discourse entities ride on parameterized
// replaceable application data (NIP-78); votes are reactions (NIP-25);
// deletions are NIP-09; profiles are kind 0 metadata.
const (
	KindProfile   = 0
	KindDeletion  = 5
	KindReaction  = 7
	KindDiscourse = 30078
)

// Discriminator tag names. The wire protocol has no native schema, so entity
// type, parent references, stance, and category are encoded as tags that
// relays can index and filter on.
const (
	TagEntity     = "t"
	TagIdentifier = "d"
	TagEventRef   = "e"
	TagPubKeyRef  = "p"
	TagTitle      = "title"
	TagCategory   = "category"
	TagStance     = "stance"
	TagParentType = "parent_type"
	TagDepth      = "depth"
)

// Entity labels carried in the "t" tag.
const (
	EntityHypothesis = "hypothesis"
	EntitySource     = "source"
	EntityComment    = "comment"
)

// Tag is one ordered key-value(s) pair on an event.
type Tag []string

// Event is the signed wire envelope delivered by relays.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Template is an unsigned event under construction: everything except the
// author, id, and signature, which the signer supplies.
type Template struct {
	Kind      int
	CreatedAt time.Time
	Tags      []Tag
	Content   string
}

// TagValue returns the first value of the first tag with the given name, and
// whether it was present.
func (e *Event) TagValue(name string) (string, bool) {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// TagValues returns every value carried by tags with the given name. The "t"
// tag repeats: one occurrence for the entity label, more for categories.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// HasEntityTag reports whether the event carries the given entity label in a
// "t" tag.
func (e *Event) HasEntityTag(label string) bool {
	for _, v := range e.TagValues(TagEntity) {
		if v == label {
			return true
		}
	}
	return false
}

// Serialize produces the canonical NIP-01 byte form the event id is computed
// over: the JSON array [0, pubkey, created_at, kind, tags, content] with HTML
// escaping disabled.
func (e *Event) Serialize() ([]byte, error) {
	arr := []any{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	// Encoder appends a newline that is not part of the canonical form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the lowercase hex sha256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	b, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Filter is the relay-side query shape sent in a REQ. Tag filters marshal as
// "#<name>" keys per NIP-01.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

// MarshalJSON flattens the tag map into "#name" keys alongside the fixed
// fields.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		if len(values) > 0 {
			m["#"+name] = values
		}
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// Matches reports whether an event satisfies the filter. Relays apply filters
// server-side; the client re-checks when folding multi-relay streams.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	for name, wanted := range f.Tags {
		found := false
		for _, have := range e.TagValues(name) {
			if containsString(wanted, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
