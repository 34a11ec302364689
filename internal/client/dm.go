package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// Sealed-envelope kinds per NIP-17/NIP-59.
const (
	kindChatMessage = 14
	kindSeal        = 13
	kindGiftWrap    = 1059
)

// DirectMessage is a decrypted direct message, regardless of which
// encryption scheme carried it.
type DirectMessage struct {
	Sender    string
	Recipient string
	Content   string
	CreatedAt nostr.Timestamp
	Scheme    string // "nip04" or "nip17"
}

// SendDirectMessage sends a NIP-17 sealed message: an unsigned rumor is
// sealed with the sender key, then gift-wrapped with an ephemeral key so
// relays never see the sender.
func (c *Client) SendDirectMessage(ctx context.Context, recipient, message string) error {
	wrap, err := sealDirectMessage(c.keys, recipient, message)
	if err != nil {
		return err
	}
	return c.Publish(ctx, wrap)
}

// sealDirectMessage builds the rumor → seal → gift-wrap layering.
func sealDirectMessage(sender keys.KeyPair, recipient, message string) (*nostr.Event, error) {
	rumor := nostr.Event{
		PubKey:    sender.PublicKey,
		CreatedAt: nostr.Now(),
		Kind:      kindChatMessage,
		Tags:      nostr.Tags{nostr.Tag{"p", recipient}},
		Content:   message,
	}
	rumor.ID = rumor.GetID()

	sealKey, err := nip44.GenerateConversationKey(recipient, sender.SecretKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sealedRumor, err := nip44.Encrypt(string(rumorJSON), sealKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	seal := nostr.Event{
		CreatedAt: randomPastTimestamp(),
		Kind:      kindSeal,
		Tags:      nostr.Tags{},
		Content:   sealedRumor,
	}
	seal.PubKey = sender.PublicKey
	if err := seal.Sign(sender.SecretKey); err != nil {
		return nil, errors.NewInternal(err)
	}

	// The wrap is signed by a throwaway key so the outer event reveals
	// nothing about the sender.
	wrapSK := nostr.GeneratePrivateKey()
	wrapKey, err := nip44.GenerateConversationKey(recipient, wrapSK)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	wrappedSeal, err := nip44.Encrypt(string(sealJSON), wrapKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	wrap := nostr.Event{
		CreatedAt: randomPastTimestamp(),
		Kind:      kindGiftWrap,
		Tags:      nostr.Tags{nostr.Tag{"p", recipient}},
		Content:   wrappedSeal,
	}
	if err := wrap.Sign(wrapSK); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &wrap, nil
}

// UnwrapGiftWrap peels both layers of a kind 1059 envelope addressed to
// the operator and returns the inner chat message.
func (c *Client) UnwrapGiftWrap(wrap *nostr.Event) (*DirectMessage, error) {
	wrapKey, err := nip44.GenerateConversationKey(wrap.PubKey, c.keys.SecretKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sealJSON, err := nip44.Decrypt(wrap.Content, wrapKey)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to open gift wrap: %w", err))
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, errors.NewInternal(err)
	}
	if seal.Kind != kindSeal {
		return nil, errors.NewInternal(fmt.Errorf("unexpected inner kind %d, want seal", seal.Kind))
	}

	sealKey, err := nip44.GenerateConversationKey(seal.PubKey, c.keys.SecretKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rumorJSON, err := nip44.Decrypt(seal.Content, sealKey)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to open seal: %w", err))
	}

	var rumor nostr.Event
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return nil, errors.NewInternal(err)
	}
	// The seal author is authoritative; a mismatched rumor author would
	// allow sender spoofing.
	if rumor.PubKey != seal.PubKey {
		return nil, errors.NewInternal(fmt.Errorf("rumor author does not match seal author"))
	}

	recipient := ""
	if tag := rumor.Tags.GetFirst([]string{"p"}); tag != nil && len(*tag) >= 2 {
		recipient = (*tag)[1]
	}
	return &DirectMessage{
		Sender:    seal.PubKey,
		Recipient: recipient,
		Content:   rumor.Content,
		CreatedAt: rumor.CreatedAt,
		Scheme:    "nip17",
	}, nil
}

// FetchGiftWraps fetches kind 1059 envelopes addressed to the operator.
func (c *Client) FetchGiftWraps(ctx context.Context, limit int) ([]*nostr.Event, error) {
	return c.FetchEvents(ctx, nostr.Filter{
		Kinds: []int{kindGiftWrap},
		Tags:  nostr.TagMap{"p": []string{c.keys.PublicKey}},
		Limit: limit,
	}, DefaultTimeout)
}

// SendLegacyDirectMessage sends a NIP-04 (kind 4) encrypted message.
func (c *Client) SendLegacyDirectMessage(ctx context.Context, recipient, message string) error {
	shared, err := nip04.ComputeSharedSecret(recipient, c.keys.SecretKey)
	if err != nil {
		return errors.NewInternal(err)
	}
	encrypted, err := nip04.Encrypt(message, shared)
	if err != nil {
		return errors.NewInternal(err)
	}
	tags := nostr.Tags{nostr.Tag{"p", recipient}}
	_, err = c.PublishEvent(ctx, nostr.KindEncryptedDirectMessage, encrypted, tags)
	return err
}

// FetchLegacyDirectMessages fetches kind 4 messages sent to or by the
// operator.
func (c *Client) FetchLegacyDirectMessages(ctx context.Context, limit int) ([]*nostr.Event, error) {
	received, err := c.FetchEvents(ctx, nostr.Filter{
		Kinds: []int{nostr.KindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{c.keys.PublicKey}},
		Limit: limit,
	}, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	sent, err := c.FetchEvents(ctx, nostr.Filter{
		Kinds:   []int{nostr.KindEncryptedDirectMessage},
		Authors: []string{c.keys.PublicKey},
		Limit:   limit,
	}, DefaultTimeout)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var all []*nostr.Event
	for _, ev := range append(received, sent...) {
		if !seen[ev.ID] {
			seen[ev.ID] = true
			all = append(all, ev)
		}
	}
	return all, nil
}

// DecryptLegacyDirectMessage decrypts a kind 4 event involving the
// operator, resolving the counterparty from the author or the p tag.
func (c *Client) DecryptLegacyDirectMessage(ev *nostr.Event) (*DirectMessage, error) {
	other := ev.PubKey
	recipient := c.keys.PublicKey
	if ev.PubKey == c.keys.PublicKey {
		// We sent it; the counterparty is the tagged recipient.
		tag := ev.Tags.GetFirst([]string{"p"})
		if tag == nil || len(*tag) < 2 {
			return nil, errors.NewInternal(fmt.Errorf("kind 4 event without recipient tag"))
		}
		other = (*tag)[1]
		recipient = other
	}

	shared, err := nip04.ComputeSharedSecret(other, c.keys.SecretKey)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	content, err := nip04.Decrypt(ev.Content, shared)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &DirectMessage{
		Sender:    ev.PubKey,
		Recipient: recipient,
		Content:   content,
		CreatedAt: ev.CreatedAt,
		Scheme:    "nip04",
	}, nil
}

// randomPastTimestamp backdates seal/wrap events by up to two days so
// timing analysis cannot link the layers, per NIP-59.
func randomPastTimestamp() nostr.Timestamp {
	offset := time.Duration(rand.Int63n(int64(2 * 24 * time.Hour)))
	return nostr.Timestamp(time.Now().Add(-offset).Unix())
}
