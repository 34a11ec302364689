// Package client wraps the go-nostr relay pool with the operations the
// command surface needs: publish, bounded fetch, live subscriptions,
// and profile/contact helpers.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/kojira/nostaro/internal/config"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// DefaultTimeout bounds one-shot relay queries.
const DefaultTimeout = 10 * time.Second

// Metadata is the kind 0 profile content.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD06       string `json:"lud06,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
}

// Client fans out to the configured relays through a shared pool.
type Client struct {
	pool   *nostr.SimplePool
	relays []string
	keys   keys.KeyPair
}

// New creates a client bound to the operator's keypair and the active
// relay list. Relay connections are established lazily.
func New(ctx context.Context, kp keys.KeyPair, cfg *config.Config) *Client {
	return &Client{
		pool:   nostr.NewSimplePool(ctx),
		relays: cfg.ActiveRelays(),
		keys:   kp,
	}
}

// Relays returns the relay list this client fans out to.
func (c *Client) Relays() []string {
	return c.relays
}

// PublicKey returns the operator's public key in hex.
func (c *Client) PublicKey() string {
	return c.keys.PublicKey
}

// Sign signs the event with the operator's key, filling ID and Sig.
func (c *Client) Sign(ev *nostr.Event) error {
	ev.PubKey = c.keys.PublicKey
	if err := ev.Sign(c.keys.SecretKey); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Publish signs the event if needed and sends it to every active relay.
// It succeeds if at least one relay accepts the event.
func (c *Client) Publish(ctx context.Context, ev *nostr.Event) error {
	if ev.Sig == "" {
		if err := c.Sign(ev); err != nil {
			return err
		}
	}

	var lastErr error
	accepted := 0
	for _, url := range c.relays {
		relay, err := c.pool.EnsureRelay(url)
		if err != nil {
			lastErr = err
			continue
		}
		if err := relay.Publish(ctx, *ev); err != nil {
			lastErr = err
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return errors.NewNetwork(fmt.Errorf("no relay accepted event: %w", lastErr))
	}
	return nil
}

// PublishEvent builds, signs, and publishes an event of the given kind.
func (c *Client) PublishEvent(ctx context.Context, kind int, content string, tags nostr.Tags) (*nostr.Event, error) {
	ev := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := c.Publish(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// FetchEvents queries all relays for events matching the filter,
// returning after every relay reports end-of-stored-events or the
// timeout elapses. Results are deduplicated and ordered newest first.
func (c *Client) FetchEvents(ctx context.Context, filter nostr.Filter, timeout time.Duration) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[string]bool)
	var events []*nostr.Event
	for ie := range c.pool.SubManyEose(ctx, c.relays, nostr.Filters{filter}) {
		if ie.Event == nil || seen[ie.Event.ID] {
			continue
		}
		seen[ie.Event.ID] = true
		events = append(events, ie.Event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
	return events, nil
}

// FetchEventByID performs a bounded point query for a single event.
// Returns nil when no relay knows the event.
func (c *Client) FetchEventByID(ctx context.Context, id string, timeout time.Duration) (*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ie := c.pool.QuerySingle(ctx, c.relays, nostr.Filter{IDs: []string{id}})
	if ie == nil || ie.Event == nil {
		return nil, nil
	}
	return ie.Event, nil
}

// FetchProfile fetches the latest kind 0 metadata for a pubkey. Returns
// nil when no profile event is found.
func (c *Client) FetchProfile(ctx context.Context, pubkey string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	ie := c.pool.QuerySingle(ctx, c.relays, nostr.Filter{
		Kinds:   []int{nostr.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	})
	if ie == nil || ie.Event == nil {
		return nil, nil
	}
	return ParseMetadata(ie.Event)
}

// ParseMetadata decodes a kind 0 event's content.
func ParseMetadata(ev *nostr.Event) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal([]byte(ev.Content), &md); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("malformed profile metadata: %w", err))
	}
	return &md, nil
}

// SetMetadata publishes the operator's kind 0 profile event.
func (c *Client) SetMetadata(ctx context.Context, md *Metadata) error {
	content, err := json.Marshal(md)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = c.PublishEvent(ctx, nostr.KindProfileMetadata, string(content), nil)
	return err
}

// FetchContacts returns the pubkeys in the latest kind 3 contact list
// published by the given author.
func (c *Client) FetchContacts(ctx context.Context, pubkey string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	ie := c.pool.QuerySingle(ctx, c.relays, nostr.Filter{
		Kinds:   []int{nostr.KindFollowList},
		Authors: []string{pubkey},
		Limit:   1,
	})
	if ie == nil || ie.Event == nil {
		return nil, nil
	}

	var contacts []string
	for _, tag := range ie.Event.Tags.GetAll([]string{"p"}) {
		if len(tag) >= 2 && tag[1] != "" {
			contacts = append(contacts, tag[1])
		}
	}
	return contacts, nil
}

// PublishContactList publishes a kind 3 event replacing the operator's
// contact list.
func (c *Client) PublishContactList(ctx context.Context, contacts []string) error {
	tags := make(nostr.Tags, 0, len(contacts))
	for _, pk := range contacts {
		tags = append(tags, nostr.Tag{"p", pk})
	}
	_, err := c.PublishEvent(ctx, nostr.KindFollowList, "", tags)
	return err
}

// SearchNotes performs a NIP-50 search against relays that support it.
func (c *Client) SearchNotes(ctx context.Context, query string, limit int) ([]*nostr.Event, error) {
	return c.FetchEvents(ctx, nostr.Filter{
		Kinds:  []int{nostr.KindTextNote},
		Search: query,
		Limit:  limit,
	}, DefaultTimeout)
}

// Subscribe opens a live subscription for the given filters on all
// relays. The returned channel delivers events until ctx is done.
func (c *Client) Subscribe(ctx context.Context, filters nostr.Filters) <-chan nostr.RelayEvent {
	return c.pool.SubMany(ctx, c.relays, filters)
}
