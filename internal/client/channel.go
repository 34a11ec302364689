package client

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// ChannelMetadata is the kind 40/41 content payload.
type ChannelMetadata struct {
	Name    string `json:"name"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// CreateChannel publishes a kind 40 channel-creation event and returns
// it; the event id becomes the channel id.
func (c *Client) CreateChannel(ctx context.Context, metaJSON string) (*nostr.Event, error) {
	return c.PublishEvent(ctx, nostr.KindChannelCreation, metaJSON, nil)
}

// EditChannel publishes a kind 41 metadata update referencing the
// channel-creation event.
func (c *Client) EditChannel(ctx context.Context, channelID, metaJSON, relayHint string) error {
	tags := nostr.Tags{nostr.Tag{"e", channelID, relayHint}}
	_, err := c.PublishEvent(ctx, nostr.KindChannelMetadata, metaJSON, tags)
	return err
}

// FetchChannels lists recent kind 40 channel-creation events.
func (c *Client) FetchChannels(ctx context.Context, limit int) ([]*nostr.Event, error) {
	return c.FetchEvents(ctx, nostr.Filter{
		Kinds: []int{nostr.KindChannelCreation},
		Limit: limit,
	}, DefaultTimeout)
}

// FetchChannelMessages lists kind 42 messages referencing the channel.
func (c *Client) FetchChannelMessages(ctx context.Context, channelID string, limit int) ([]*nostr.Event, error) {
	return c.FetchEvents(ctx, nostr.Filter{
		Kinds: []int{nostr.KindChannelMessage},
		Tags:  nostr.TagMap{"e": []string{channelID}},
		Limit: limit,
	}, DefaultTimeout)
}

// PostChannelMessage publishes a kind 42 message with a root reference
// to the channel-creation event, per NIP-28.
func (c *Client) PostChannelMessage(ctx context.Context, channelID, message string) error {
	relayHint := ""
	if len(c.relays) > 0 {
		relayHint = c.relays[0]
	}
	tags := nostr.Tags{nostr.Tag{"e", channelID, relayHint, "root"}}
	_, err := c.PublishEvent(ctx, nostr.KindChannelMessage, message, tags)
	return err
}
