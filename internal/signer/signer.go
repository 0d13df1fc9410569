// Package signer holds secret keys and produces signed wire events: BIP-340
// Schnorr signatures over the NIP-01 event id, with hex and bech32 "nsec"
// key handling.
package signer

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/jimd-den/BlackPaper/internal/codec"
	"github.com/jimd-den/BlackPaper/internal/domain"
)

const nsecPrefix = "nsec"

// KeyPair is a secp256k1 secret key and its x-only public key.
type KeyPair struct {
	priv *secp256k1.PrivateKey
	pub  domain.PublicKey
}

// Generate creates a fresh random key pair.
func Generate() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromPrivate(priv)
}

// FromSecret accepts a 64-character hex secret key or an nsec bech32 string.
func FromSecret(s string) (*KeyPair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	var raw []byte
	if strings.HasPrefix(s, nsecPrefix) {
		hrp, words, err := bech32.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid nsec encoding: %w", err)
		}
		if hrp != nsecPrefix {
			return nil, fmt.Errorf("expected nsec prefix, got %q", hrp)
		}
		raw, err = bech32.ConvertBits(words, 5, 8, false)
		if err != nil {
			return nil, fmt.Errorf("invalid nsec payload: %w", err)
		}
	} else {
		var err error
		raw, err = hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("secret key is not valid hex: %w", err)
		}
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("secret key is zero")
	}
	return fromPrivate(priv)
}

func fromPrivate(priv *secp256k1.PrivateKey) (*KeyPair, error) {
	// x-only public key: drop the parity byte of the compressed form.
	xonly := priv.PubKey().SerializeCompressed()[1:]
	pub, err := domain.NewPublicKey(hex.EncodeToString(xonly))
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// PublicKey returns the x-only public key.
func (k *KeyPair) PublicKey() domain.PublicKey { return k.pub }

// SecretHex returns the 64-character hex secret key.
func (k *KeyPair) SecretHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// Nsec returns the bech32 form of the secret key.
func (k *KeyPair) Nsec() (string, error) {
	words, err := bech32.ConvertBits(k.priv.Serialize(), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("encode nsec: %w", err)
	}
	return bech32.Encode(nsecPrefix, words)
}

// Sign fills in the author, computes the event id, and signs it, turning an
// unsigned template into a complete wire event. Signing is deterministic for
// a given template and key.
func (k *KeyPair) Sign(tpl codec.Template) (*codec.Event, error) {
	createdAt := tpl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	tags := tpl.Tags
	if tags == nil {
		tags = []codec.Tag{}
	}
	e := &codec.Event{
		PubKey:    k.pub.Hex(),
		CreatedAt: createdAt.Unix(),
		Kind:      tpl.Kind,
		Tags:      tags,
		Content:   tpl.Content,
	}
	id, err := e.ComputeID()
	if err != nil {
		return nil, err
	}
	e.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("decode event id: %w", err)
	}
	sig, err := schnorr.Sign(k.priv, digest)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return e, nil
}

// Verify checks that the event id matches its contents and that the signature
// verifies against the author key.
func Verify(e *codec.Event) error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	if id != e.ID {
		return fmt.Errorf("event id mismatch: claimed %s, computed %s", e.ID, id)
	}

	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return fmt.Errorf("invalid author key %q", e.PubKey)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse author key: %w", err)
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}

	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %w", err)
	}
	if !sig.Verify(digest, pub) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}
