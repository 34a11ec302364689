package client

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/kojira/nostaro/internal/keys"
)

func testKeys(t *testing.T) keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return kp
}

func TestParseMetadata(t *testing.T) {
	ev := &nostr.Event{
		Kind:    nostr.KindProfileMetadata,
		Content: `{"name":"alice","display_name":"Alice","about":"bio","picture":"https://pic.example/a.png","lud16":"alice@wallet.example"}`,
	}

	md, err := ParseMetadata(ev)
	if err != nil {
		t.Fatalf("ParseMetadata() error = %v", err)
	}
	if md.Name != "alice" || md.DisplayName != "Alice" || md.About != "bio" {
		t.Errorf("ParseMetadata() = %+v, want parsed fields", md)
	}
	if md.LUD16 != "alice@wallet.example" {
		t.Errorf("LUD16 = %q, want alice@wallet.example", md.LUD16)
	}
}

func TestParseMetadata_Malformed(t *testing.T) {
	ev := &nostr.Event{Kind: nostr.KindProfileMetadata, Content: "not json"}
	if _, err := ParseMetadata(ev); err == nil {
		t.Error("ParseMetadata() succeeded on malformed content, want error")
	}
}

func TestSealedMessage_RoundTrip(t *testing.T) {
	sender := testKeys(t)
	recipient := testKeys(t)

	wrap, err := sealDirectMessage(sender, recipient.PublicKey, "secret hello")
	if err != nil {
		t.Fatalf("sealDirectMessage() error = %v", err)
	}

	// The outer envelope must not leak the sender.
	if wrap.PubKey == sender.PublicKey {
		t.Error("gift wrap signed by sender key; must use an ephemeral key")
	}
	if wrap.Kind != kindGiftWrap {
		t.Errorf("wrap kind = %d, want %d", wrap.Kind, kindGiftWrap)
	}
	if ok, err := wrap.CheckSignature(); err != nil || !ok {
		t.Errorf("wrap signature invalid: ok=%v err=%v", ok, err)
	}

	receiver := &Client{keys: recipient}
	dm, err := receiver.UnwrapGiftWrap(wrap)
	if err != nil {
		t.Fatalf("UnwrapGiftWrap() error = %v", err)
	}
	if dm.Sender != sender.PublicKey {
		t.Errorf("Sender = %s, want %s", dm.Sender, sender.PublicKey)
	}
	if dm.Content != "secret hello" {
		t.Errorf("Content = %q, want original message", dm.Content)
	}
	if dm.Scheme != "nip17" {
		t.Errorf("Scheme = %q, want nip17", dm.Scheme)
	}
}

func TestUnwrapGiftWrap_WrongRecipient(t *testing.T) {
	sender := testKeys(t)
	recipient := testKeys(t)
	eavesdropper := testKeys(t)

	wrap, err := sealDirectMessage(sender, recipient.PublicKey, "secret")
	if err != nil {
		t.Fatalf("sealDirectMessage() error = %v", err)
	}

	other := &Client{keys: eavesdropper}
	if _, err := other.UnwrapGiftWrap(wrap); err == nil {
		t.Error("UnwrapGiftWrap() by non-recipient succeeded, want error")
	}
}

func TestDecryptLegacyDirectMessage_Received(t *testing.T) {
	sender := testKeys(t)
	recipient := testKeys(t)

	shared, err := nip04.ComputeSharedSecret(recipient.PublicKey, sender.SecretKey)
	if err != nil {
		t.Fatalf("ComputeSharedSecret() error = %v", err)
	}
	encrypted, err := nip04.Encrypt("legacy hello", shared)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	ev := &nostr.Event{
		PubKey:    sender.PublicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", recipient.PublicKey}},
		Content:   encrypted,
	}
	if err := ev.Sign(sender.SecretKey); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	receiver := &Client{keys: recipient}
	dm, err := receiver.DecryptLegacyDirectMessage(ev)
	if err != nil {
		t.Fatalf("DecryptLegacyDirectMessage() error = %v", err)
	}
	if dm.Content != "legacy hello" {
		t.Errorf("Content = %q, want legacy hello", dm.Content)
	}
	if dm.Sender != sender.PublicKey {
		t.Errorf("Sender = %s, want %s", dm.Sender, sender.PublicKey)
	}
}

func TestDecryptLegacyDirectMessage_Sent(t *testing.T) {
	me := testKeys(t)
	other := testKeys(t)

	shared, err := nip04.ComputeSharedSecret(other.PublicKey, me.SecretKey)
	if err != nil {
		t.Fatalf("ComputeSharedSecret() error = %v", err)
	}
	encrypted, err := nip04.Encrypt("note to other", shared)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	ev := &nostr.Event{
		PubKey:    me.PublicKey,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", other.PublicKey}},
		Content:   encrypted,
	}
	if err := ev.Sign(me.SecretKey); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	mine := &Client{keys: me}
	dm, err := mine.DecryptLegacyDirectMessage(ev)
	if err != nil {
		t.Fatalf("DecryptLegacyDirectMessage() error = %v", err)
	}
	if dm.Content != "note to other" {
		t.Errorf("Content = %q, want note to other", dm.Content)
	}
	if dm.Recipient != other.PublicKey {
		t.Errorf("Recipient = %s, want counterparty %s", dm.Recipient, other.PublicKey)
	}
}
