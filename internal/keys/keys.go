// Package keys handles the operator's keypair and identifier parsing
// (npub/nsec/nprofile/note bech32 forms and raw hex).
package keys

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/kojira/nostaro/internal/config"
	"github.com/kojira/nostaro/internal/errors"
)

// KeyPair holds a secret/public key pair in hex form.
type KeyPair struct {
	SecretKey string
	PublicKey string
}

// Generate creates a fresh keypair.
func Generate() (KeyPair, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return KeyPair{}, errors.NewInternal(err)
	}
	return KeyPair{SecretKey: sk, PublicKey: pk}, nil
}

// Parse accepts a secret key as nsec bech32 or raw hex.
func Parse(input string) (KeyPair, error) {
	input = strings.TrimSpace(input)
	sk := input
	if strings.HasPrefix(input, "nsec1") {
		prefix, value, err := nip19.Decode(input)
		if err != nil || prefix != "nsec" {
			return KeyPair{}, errors.NewInvalidRequest(fmt.Sprintf("invalid nsec: %s", input))
		}
		sk = value.(string)
	}
	if !isHex32(sk) {
		return KeyPair{}, errors.NewInvalidRequest("secret key must be nsec1... or 64 hex chars")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return KeyPair{}, errors.NewInvalidRequest(fmt.Sprintf("invalid secret key: %v", err))
	}
	return KeyPair{SecretKey: sk, PublicKey: pk}, nil
}

// FromConfig loads the operator's keypair from the config, failing with
// a NOT_CONFIGURED error when no key has been set up yet.
func FromConfig(cfg *config.Config) (KeyPair, error) {
	if cfg.SecretKey == "" {
		return KeyPair{}, errors.NewNotConfigured("no secret key in config; run `nostaro init` first")
	}
	return Parse(cfg.SecretKey)
}

// Npub returns the public key in npub bech32 form.
func (k KeyPair) Npub() (string, error) {
	return nip19.EncodePublicKey(k.PublicKey)
}

// Nsec returns the secret key in nsec bech32 form.
func (k KeyPair) Nsec() (string, error) {
	return nip19.EncodePrivateKey(k.SecretKey)
}

// Info returns a printable summary of the keypair.
func (k KeyPair) Info() (string, error) {
	npub, err := k.Npub()
	if err != nil {
		return "", err
	}
	nsec, err := k.Nsec()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Public key (npub): %s\nSecret key (nsec): %s\nPublic key (hex):  %s",
		npub, nsec, k.PublicKey), nil
}

// ResolvePubkey resolves a public key from npub, hex, or nprofile form.
func ResolvePubkey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if isHex32(input) {
		return input, nil
	}
	prefix, value, err := nip19.Decode(input)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid pubkey, npub, or nprofile: %s", input))
	}
	switch prefix {
	case "npub":
		return value.(string), nil
	case "nprofile":
		return value.(nostr.ProfilePointer).PublicKey, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("invalid pubkey, npub, or nprofile: %s", input))
}

// ResolveEventID resolves an event id from note1, nevent, or hex form.
func ResolveEventID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if isHex32(input) {
		return input, nil
	}
	prefix, value, err := nip19.Decode(input)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid note id: %s", input))
	}
	switch prefix {
	case "note":
		return value.(string), nil
	case "nevent":
		return value.(nostr.EventPointer).ID, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("invalid note id: %s", input))
}

// ShortNpub returns the first 12 characters of the npub form, used as a
// compact display fallback when no profile name is known.
func ShortNpub(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		npub = pubkey
	}
	if len(npub) > 12 {
		return npub[:12] + "..."
	}
	return npub
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
