// Package watch implements the real-time notification loop: it consumes
// a live event stream, classifies and enriches each event, and forwards
// formatted alerts to a webhook. One bad event or one failed delivery
// never ends the session.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/kojira/nostaro/internal/client"
	"github.com/kojira/nostaro/internal/keys"
	"github.com/kojira/nostaro/internal/webhook"
)

const (
	// excerptLimit caps the quoted portion of a reacted-to note.
	excerptLimit = 200
	// originalFetchTimeout bounds the point query for a reacted-to note.
	originalFetchTimeout = 5 * time.Second
	// defaultReactionEmoji stands in when a reaction has empty content.
	defaultReactionEmoji = "👍"
)

// Lookup is the slice of the protocol client the loop needs for
// enrichment. Failures here degrade gracefully and never abort a
// notification.
type Lookup interface {
	FetchProfile(ctx context.Context, pubkey string) (*client.Metadata, error)
	FetchEventByID(ctx context.Context, id string, timeout time.Duration) (*nostr.Event, error)
}

// Poster delivers one formatted alert.
type Poster interface {
	Send(ctx context.Context, msg webhook.Message) error
}

// Options configures one watch session.
type Options struct {
	// SelfPubKey is the operator's own identity; self-authored events are
	// skipped, except channel messages.
	SelfPubKey string
	// ChannelID, when set, relays kind 42 messages whose root reference
	// matches it exactly.
	ChannelID string
}

// displayEntry is a resolved (display string, avatar URL) pair, cached
// for the lifetime of one watch session. Staleness within a run is
// accepted.
type displayEntry struct {
	name   string
	avatar string
}

// Watcher consumes an event stream and forwards alerts.
type Watcher struct {
	lookup Lookup
	poster Poster
	opts   Options
	names  map[string]displayEntry
	out    io.Writer
}

// New creates a watcher. The out writer receives the operator console
// log (one line per relayed or failed notification).
func New(lookup Lookup, poster Poster, opts Options, out io.Writer) *Watcher {
	return &Watcher{
		lookup: lookup,
		poster: poster,
		opts:   opts,
		names:  make(map[string]displayEntry),
		out:    out,
	}
}

// Run processes notifications strictly in delivery order until the
// stream closes or ctx is cancelled. Delivery is awaited before
// advancing, so webhook calls preserve source ordering.
func (w *Watcher) Run(ctx context.Context, events <-chan *nostr.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev == nil {
				continue
			}
			w.handle(ctx, ev)
		}
	}
}

// handle processes a single notification. All failures are contained
// here: enrichment degrades, delivery errors are logged.
func (w *Watcher) handle(ctx context.Context, ev *nostr.Event) {
	// Self-authored events are skipped, except channel messages: channel
	// watch covers all channel activity, the operator's own posts
	// included. This asymmetry is deliberate.
	if ev.PubKey == w.opts.SelfPubKey && ev.Kind != nostr.KindChannelMessage {
		return
	}

	body, ok := w.formatBody(ctx, ev)
	if !ok {
		return
	}

	entry := w.displayName(ctx, ev.PubKey)
	noteRef := eventRef(ev.ID)
	message := fmt.Sprintf("%s from %s\n%s\n🔗 %s", body.header, entry.name, body.text, noteRef)

	fmt.Fprintf(w.out, "[%s] %s\n", time.Now().Format("15:04:05"), message)

	if err := w.poster.Send(ctx, webhook.Message{
		Content:   message,
		Username:  entry.name,
		AvatarURL: entry.avatar,
	}); err != nil {
		fmt.Fprintf(w.out, "webhook error: %v\n", err)
	}
}

type formatted struct {
	header string
	text   string
}

// formatBody classifies the event and builds the alert body. ok=false
// means the event is not relayed.
func (w *Watcher) formatBody(ctx context.Context, ev *nostr.Event) (formatted, bool) {
	switch ev.Kind {
	case nostr.KindChannelMessage:
		if w.opts.ChannelID == "" || rootReference(ev.Tags) != w.opts.ChannelID {
			return formatted{}, false
		}
		return formatted{
			header: "💬 **チャンネル**",
			text:   "> " + ev.Content,
		}, true

	case nostr.KindTextNote:
		label := "メンション"
		if ev.Tags.GetFirst([]string{"e"}) != nil {
			label = "リプライ"
		}
		return formatted{
			header: fmt.Sprintf("📩 **%s**", label),
			text:   "> " + ev.Content,
		}, true

	case nostr.KindReaction:
		emoji := ev.Content
		if emoji == "" {
			emoji = defaultReactionEmoji
		}
		text := "Emoji: " + emoji
		if excerpt := w.reactionExcerpt(ctx, ev.Tags); excerpt != "" {
			text += "\n> " + excerpt
		}
		return formatted{
			header: "⚡ **リアクション**",
			text:   text,
		}, true
	}

	return formatted{}, false
}

// reactionExcerpt fetches the reacted-to event and returns a short
// quote of its content. Any failure yields an empty excerpt; the
// notification is still delivered without it.
func (w *Watcher) reactionExcerpt(ctx context.Context, tags nostr.Tags) string {
	tag := tags.GetFirst([]string{"e"})
	if tag == nil || len(*tag) < 2 {
		return ""
	}
	original, err := w.lookup.FetchEventByID(ctx, (*tag)[1], originalFetchTimeout)
	if err != nil || original == nil {
		return ""
	}
	return webhook.Truncate(original.Content, excerptLimit)
}

// displayName resolves an author to a display string and avatar URL,
// memoized for the session. Fetch failures fall back to the short npub
// with no avatar.
func (w *Watcher) displayName(ctx context.Context, pubkey string) displayEntry {
	if entry, ok := w.names[pubkey]; ok {
		return entry
	}

	short := keys.ShortNpub(pubkey)
	entry := displayEntry{name: short}

	md, err := w.lookup.FetchProfile(ctx, pubkey)
	if err == nil && md != nil {
		switch {
		case md.DisplayName != "":
			entry.name = fmt.Sprintf("%s(%s)", md.DisplayName, short)
		case md.Name != "":
			entry.name = fmt.Sprintf("%s(%s)", md.Name, short)
		}
		entry.avatar = md.Picture
	}

	w.names[pubkey] = entry
	return entry
}

// rootReference returns the event id carried by the "root"-marked e tag,
// or the empty string when the event has none.
func rootReference(tags nostr.Tags) string {
	for _, tag := range tags.GetAll([]string{"e"}) {
		if len(tag) >= 4 && tag[3] == "root" {
			return tag[1]
		}
	}
	return ""
}

// eventRef renders a permanent bech32 reference to the event.
func eventRef(id string) string {
	note, err := nip19.EncodeNote(id)
	if err != nil {
		return id
	}
	return note
}
