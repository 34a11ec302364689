package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"

	"github.com/kojira/nostaro/internal/client"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
	"github.com/kojira/nostaro/internal/upload"
	"github.com/kojira/nostaro/internal/vanity"
	"github.com/kojira/nostaro/internal/watch"
	"github.com/kojira/nostaro/internal/webhook"
)

// channelCmd creates the channel command with its subcommands.
func channelCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "channel",
		Usage: "Channel commands (NIP-28)",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a new channel (kind:40)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Channel name"},
					&cli.StringFlag{Name: "about", Usage: "Channel description"},
					&cli.StringFlag{Name: "picture", Usage: "Channel picture URL"},
				},
				Action: func(c *cli.Context) error {
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}
					meta, err := json.Marshal(client.ChannelMetadata{
						Name:    c.String("name"),
						About:   c.String("about"),
						Picture: c.String("picture"),
					})
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					ev, err := cl.CreateChannel(c.Context, string(meta))
					if err != nil {
						return outputError(err)
					}
					fmt.Fprintf(env.out, "Channel %q created!\n", c.String("name"))
					fmt.Fprintf(env.out, "Channel ID: %s\n", ev.ID)
					return nil
				},
			},
			{
				Name:      "edit",
				Usage:     "Edit channel metadata (kind:41)",
				ArgsUsage: "<channel-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "New channel name"},
					&cli.StringFlag{Name: "about", Usage: "New channel description"},
					&cli.StringFlag{Name: "picture", Usage: "New channel picture URL"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("channel id is required"))
					}
					cfg, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}
					channelID, err := keys.ResolveEventID(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					meta, err := json.Marshal(client.ChannelMetadata{
						Name:    c.String("name"),
						About:   c.String("about"),
						Picture: c.String("picture"),
					})
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					relayHint := ""
					if relays := cfg.ActiveRelays(); len(relays) > 0 {
						relayHint = relays[0]
					}
					if err := cl.EditChannel(c.Context, channelID, string(meta), relayHint); err != nil {
						return outputError(err)
					}
					fmt.Fprintln(env.out, "Channel metadata updated!")
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List channels",
				Action: func(c *cli.Context) error {
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}
					channels, err := cl.FetchChannels(c.Context, 20)
					if err != nil {
						return outputError(err)
					}
					if len(channels) == 0 {
						fmt.Fprintln(env.out, "No channels found.")
						return nil
					}
					for _, ev := range channels {
						var meta client.ChannelMetadata
						name := "(unnamed)"
						if err := json.Unmarshal([]byte(ev.Content), &meta); err == nil && meta.Name != "" {
							name = meta.Name
						}
						fmt.Fprintf(env.out, "%s  %s\n", ev.ID, name)
						if meta.About != "" {
							fmt.Fprintf(env.out, "    %s\n", meta.About)
						}
					}
					return nil
				},
			},
			{
				Name:      "read",
				Usage:     "Read channel messages",
				ArgsUsage: "<channel-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("channel id is required"))
					}
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}
					channelID, err := keys.ResolveEventID(c.Args().First())
					if err != nil {
						return outputError(err)
					}
					messages, err := cl.FetchChannelMessages(c.Context, channelID, 50)
					if err != nil {
						return outputError(err)
					}
					if len(messages) == 0 {
						fmt.Fprintln(env.out, "No messages found.")
						return nil
					}
					// Oldest first for reading order.
					for i := len(messages) - 1; i >= 0; i-- {
						ev := messages[i]
						fmt.Fprintf(env.out, "[%s] %s\n", keys.ShortNpub(ev.PubKey), formatTimestamp(ev.CreatedAt))
						fmt.Fprintln(env.out, ev.Content)
						fmt.Fprintln(env.out)
					}
					return nil
				},
			},
			{
				Name:      "post",
				Usage:     "Post a message to a channel",
				ArgsUsage: "<channel-id> <message>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("channel id and message are required"))
					}
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}
					channelID, err := keys.ResolveEventID(c.Args().Get(0))
					if err != nil {
						return outputError(err)
					}
					if err := cl.PostChannelMessage(c.Context, channelID, c.Args().Get(1)); err != nil {
						return outputError(err)
					}
					fmt.Fprintln(env.out, "Message posted to channel!")
					return nil
				},
			},
		},
	}
}

// uploadCmd creates the upload command.
func uploadCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a file via Blossom (default) or NIP-96",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "Custom upload server URL"},
			&cli.BoolFlag{Name: "nip96", Usage: "Use NIP-96 instead of Blossom"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("file path is required"))
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return outputError(err)
			}
			kp, err := keys.FromConfig(cfg)
			if err != nil {
				return outputError(err)
			}

			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return outputError(errors.NewNotFound(path))
			}
			name := filepath.Base(path)

			up := upload.New(kp)
			var url string
			if c.Bool("nip96") {
				server := c.String("server")
				if server == "" {
					server = upload.DefaultNIP96Server
				}
				fmt.Fprintf(env.out, "Uploading %s (%d bytes) via NIP-96 to %s...\n", name, len(data), server)
				url, err = up.NIP96(c.Context, server, name, data)
			} else {
				server := c.String("server")
				if server == "" {
					server = cfg.BlossomURL()
				}
				fmt.Fprintf(env.out, "Uploading %s (%d bytes) to %s...\n", name, len(data), server)
				url, err = up.Blossom(c.Context, server, name, data)
			}
			if err != nil {
				return outputError(err)
			}

			fmt.Fprintln(env.out, "Uploaded successfully!")
			fmt.Fprintf(env.out, "URL: %s\n", url)
			return nil
		},
	}
}

// cacheCmd creates the cache command with clear/stats subcommands.
func cacheCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the local cache",
		Subcommands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Clear all cached data",
				Action: func(c *cli.Context) error {
					db, err := env.openCache()
					if err != nil {
						return outputError(err)
					}
					defer db.Close()
					if err := db.Clear(); err != nil {
						return outputError(err)
					}
					fmt.Fprintln(env.out, "Cache cleared.")
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "Show cache statistics",
				Action: func(c *cli.Context) error {
					db, err := env.openCache()
					if err != nil {
						return outputError(err)
					}
					defer db.Close()
					events, profiles, err := db.Stats()
					if err != nil {
						return outputError(err)
					}
					fmt.Fprintf(env.out, "Events:   %d\n", events)
					fmt.Fprintf(env.out, "Profiles: %d\n", profiles)
					return nil
				},
			},
		},
	}
}

// relayCmd creates the relay command with add/remove/list subcommands.
func relayCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Manage relay connections",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a relay",
				ArgsUsage: "<url>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("relay URL is required"))
					}
					url := c.Args().First()
					if !isRelayURL(url) {
						return outputError(errors.NewInvalidRequest(
							"relay URL must start with wss:// or ws://"))
					}
					cfg, err := env.loadConfig()
					if err != nil {
						return outputError(err)
					}
					for _, r := range cfg.Relays {
						if r == url {
							fmt.Fprintf(env.out, "Relay %s is already configured.\n", url)
							return nil
						}
					}
					cfg.Relays = append(cfg.Relays, url)
					if err := cfg.Save(env.baseDir); err != nil {
						return outputError(err)
					}
					fmt.Fprintf(env.out, "Added relay %s\n", url)
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a relay",
				ArgsUsage: "<url>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("relay URL is required"))
					}
					url := c.Args().First()
					cfg, err := env.loadConfig()
					if err != nil {
						return outputError(err)
					}
					kept := cfg.Relays[:0]
					for _, r := range cfg.Relays {
						if r != url {
							kept = append(kept, r)
						}
					}
					if len(kept) == len(cfg.Relays) {
						return outputError(errors.NewNotFound(url))
					}
					cfg.Relays = kept
					if err := cfg.Save(env.baseDir); err != nil {
						return outputError(err)
					}
					fmt.Fprintf(env.out, "Removed relay %s\n", url)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List all configured relays",
				Action: func(c *cli.Context) error {
					cfg, err := env.loadConfig()
					if err != nil {
						return outputError(err)
					}
					relays := cfg.ActiveRelays()
					if len(relays) == 0 {
						fmt.Fprintln(env.out, "No relays configured.")
						return nil
					}
					fmt.Fprintf(env.out, "%d relay(s):\n", len(relays))
					for _, r := range relays {
						fmt.Fprintf(env.out, "  %s\n", r)
					}
					return nil
				},
			},
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch for mentions, replies, and reactions in real-time",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "webhook", Required: true, Usage: "Webhook URL for notifications"},
			&cli.StringFlag{Name: "npub", Usage: "Target npub to watch (defaults to your own)"},
			&cli.StringFlag{Name: "channel", Usage: "NIP-28 channel ID to watch (hex or note1...)"},
		},
		Action: func(c *cli.Context) error {
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			target := kp.PublicKey
			if pk := c.String("npub"); pk != "" {
				target, err = keys.ResolvePubkey(pk)
				if err != nil {
					return outputError(err)
				}
			}

			channelID := ""
			if ch := c.String("channel"); ch != "" {
				channelID, err = keys.ResolveEventID(ch)
				if err != nil {
					return outputError(err)
				}
			}

			now := nostr.Now()
			filters := nostr.Filters{{
				Kinds: []int{nostr.KindTextNote, nostr.KindReaction},
				Tags:  nostr.TagMap{"p": []string{target}},
				Since: &now,
			}}
			if channelID != "" {
				filters = append(filters, nostr.Filter{
					Kinds: []int{nostr.KindChannelMessage},
					Tags:  nostr.TagMap{"e": []string{channelID}},
					Since: &now,
				})
			}

			fmt.Fprintf(env.out, "Watching for events targeting %s...\n", keys.ShortNpub(target))
			if channelID != "" {
				fmt.Fprintf(env.out, "Watching channel %s...\n", channelID)
			}
			fmt.Fprintf(env.out, "Webhook: %s\n", c.String("webhook"))
			fmt.Fprintln(env.out, "Press Ctrl+C to stop.")
			fmt.Fprintln(env.out)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			incoming := cl.Subscribe(ctx, filters)
			events := make(chan *nostr.Event)
			go func() {
				defer close(events)
				for ie := range incoming {
					if ie.Event == nil {
						continue
					}
					select {
					case events <- ie.Event:
					case <-ctx.Done():
						return
					}
				}
			}()

			w := watch.New(cl, webhook.New(c.String("webhook")), watch.Options{
				SelfPubKey: kp.PublicKey,
				ChannelID:  channelID,
			}, env.out)
			if err := w.Run(ctx, events); err != nil && ctx.Err() == nil {
				return outputError(err)
			}
			fmt.Fprintln(env.out, "Stopped watching.")
			return nil
		},
	}
}

// vanityCmd creates the vanity command.
func vanityCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "vanity",
		Usage:     "Search for a vanity npub with a given prefix",
		ArgsUsage: "<prefix>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "threads", Aliases: []string{"t"}, Usage: "Number of workers (default: CPU cores)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("prefix is required"))
			}
			prefix := c.Args().First()

			fmt.Fprintf(env.out, "Searching for npub1%s...\n", prefix)
			res, err := vanity.Search(c.Context, prefix, vanity.Options{
				Workers:  c.Int("threads"),
				Progress: os.Stderr,
			})
			if err != nil {
				return outputError(err)
			}

			npub, err := nip19.EncodePublicKey(res.Keys.PublicKey)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			nsec, err := res.Keys.Nsec()
			if err != nil {
				return outputError(err)
			}

			fmt.Fprintf(env.out, "Found a match after %d attempts (%s)!\n", res.Attempts, res.Elapsed.Round(10*time.Millisecond))
			fmt.Fprintf(env.out, "Npub: %s\n", npub)
			fmt.Fprintf(env.out, "Nsec: %s\n", nsec)
			fmt.Fprintln(env.out)
			fmt.Fprintln(env.out, "Keep the nsec secret. Import it with: nostaro init")
			return nil
		},
	}
}

func isRelayURL(url string) bool {
	return strings.HasPrefix(url, "wss://") || strings.HasPrefix(url, "ws://")
}
