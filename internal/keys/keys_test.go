package keys

import (
	"strings"
	"testing"

	"github.com/kojira/nostaro/internal/config"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func TestGenerate(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	npub, err := kp.Npub()
	if err != nil {
		t.Fatalf("Npub() error = %v", err)
	}
	if !strings.HasPrefix(npub, "npub1") {
		t.Errorf("Npub() = %q, want npub1 prefix", npub)
	}

	nsec, err := kp.Nsec()
	if err != nil {
		t.Fatalf("Nsec() error = %v", err)
	}
	if !strings.HasPrefix(nsec, "nsec1") {
		t.Errorf("Nsec() = %q, want nsec1 prefix", nsec)
	}
}

func TestParse_NsecAndHexAgree(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	nsec, err := kp.Nsec()
	if err != nil {
		t.Fatalf("Nsec() error = %v", err)
	}

	fromNsec, err := Parse(nsec)
	if err != nil {
		t.Fatalf("Parse(nsec) error = %v", err)
	}
	fromHex, err := Parse(kp.SecretKey)
	if err != nil {
		t.Fatalf("Parse(hex) error = %v", err)
	}

	if fromNsec.PublicKey != kp.PublicKey || fromHex.PublicKey != kp.PublicKey {
		t.Errorf("parsed public keys differ: nsec=%s hex=%s want=%s",
			fromNsec.PublicKey, fromHex.PublicKey, kp.PublicKey)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "garbage", "nsec1notvalid", "deadbeef"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}

func TestFromConfig_MissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := FromConfig(cfg)
	if !errors.Is(err, errors.ErrNotConfigured) {
		t.Errorf("FromConfig() error = %v, want NOT_CONFIGURED", err)
	}
}

func TestFromConfig_ValidKey(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	nsec, err := kp.Nsec()
	if err != nil {
		t.Fatalf("Nsec() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.SecretKey = nsec

	loaded, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if loaded.PublicKey != kp.PublicKey {
		t.Errorf("FromConfig() pubkey = %s, want %s", loaded.PublicKey, kp.PublicKey)
	}
}

func TestResolvePubkey(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	npub, _ := kp.Npub()
	nprofile, err := nip19.EncodeProfile(kp.PublicKey, nil)
	if err != nil {
		t.Fatalf("EncodeProfile() error = %v", err)
	}

	for _, input := range []string{kp.PublicKey, npub, nprofile} {
		got, err := ResolvePubkey(input)
		if err != nil {
			t.Errorf("ResolvePubkey(%q) error = %v", input, err)
			continue
		}
		if got != kp.PublicKey {
			t.Errorf("ResolvePubkey(%q) = %s, want %s", input, got, kp.PublicKey)
		}
	}

	if _, err := ResolvePubkey("not-a-key"); err == nil {
		t.Error("ResolvePubkey(garbage) succeeded, want error")
	}
}

func TestResolveEventID(t *testing.T) {
	id := strings.Repeat("ab", 32)
	note, err := nip19.EncodeNote(id)
	if err != nil {
		t.Fatalf("EncodeNote() error = %v", err)
	}
	nevent, err := nip19.EncodeEvent(id, nil, "")
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	for _, input := range []string{id, note, nevent} {
		got, err := ResolveEventID(input)
		if err != nil {
			t.Errorf("ResolveEventID(%q) error = %v", input, err)
			continue
		}
		if got != id {
			t.Errorf("ResolveEventID(%q) = %s, want %s", input, got, id)
		}
	}

	if _, err := ResolveEventID("nope"); err == nil {
		t.Error("ResolveEventID(garbage) succeeded, want error")
	}
}

func TestShortNpub(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	short := ShortNpub(kp.PublicKey)
	if !strings.HasPrefix(short, "npub1") || !strings.HasSuffix(short, "...") {
		t.Errorf("ShortNpub() = %q, want truncated npub with ellipsis", short)
	}
}
