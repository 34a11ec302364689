package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"

	"github.com/kojira/nostaro/internal/cache"
	"github.com/kojira/nostaro/internal/client"
	"github.com/kojira/nostaro/internal/config"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// appEnv carries the injectable pieces of the process environment so
// commands can run against a temp dir and captured output in tests.
type appEnv struct {
	baseDir string
	in      io.Reader
	out     io.Writer
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "nostaro",
		Usage:   "A Nostr CLI tool",
		Version: Version,
		Commands: []*cli.Command{
			initCmd(env),
			postCmd(env),
			replyCmd(env),
			repostCmd(env),
			timelineCmd(env),
			searchCmd(env),
			profileCmd(env),
			followCmd(env),
			unfollowCmd(env),
			followingCmd(env),
			followersCmd(env),
			reactCmd(env),
			dmCmd(env),
			zapCmd(env),
			channelCmd(env),
			uploadCmd(env),
			cacheCmd(env),
			relayCmd(env),
			watchCmd(env),
			eventCmd(env),
			vanityCmd(env),
		},
	}
	app.Writer = env.out
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// loadConfig reads the config file, falling back to defaults.
func (a *appEnv) loadConfig() (*config.Config, error) {
	return config.Load(a.baseDir)
}

// session loads the config and keypair and builds a relay client.
// Commands that publish or fetch go through here.
func (a *appEnv) session(c *cli.Context) (*config.Config, keys.KeyPair, *client.Client, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, keys.KeyPair{}, nil, err
	}
	kp, err := keys.FromConfig(cfg)
	if err != nil {
		return nil, keys.KeyPair{}, nil, err
	}
	return cfg, kp, client.New(c.Context, kp, cfg), nil
}

func (a *appEnv) openCache() (*cache.DB, error) {
	return cache.Open(a.baseDir)
}

// cacheEvent stores a fetched event in the local cache, best effort.
func (a *appEnv) cacheEvent(ev *nostr.Event) {
	db, err := a.openCache()
	if err != nil {
		return
	}
	defer db.Close()

	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return
	}
	rawJSON, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = db.StoreEvent(cache.Event{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		Kind:      ev.Kind,
		Content:   ev.Content,
		CreatedAt: int64(ev.CreatedAt),
		TagsJSON:  string(tagsJSON),
		RawJSON:   string(rawJSON),
	})
}

// initCmd creates the init command.
func initCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize nostaro with a new or existing keypair",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(env.out, "Welcome to nostaro setup!")
			fmt.Fprintln(env.out)
			fmt.Fprint(env.out, "Do you want to (1) generate a new key or (2) import an existing key? [1/2]: ")

			reader := bufio.NewReader(env.in)
			choice, _ := reader.ReadString('\n')

			var kp keys.KeyPair
			var err error
			if strings.TrimSpace(choice) == "2" {
				fmt.Fprint(env.out, "Enter your secret key (nsec1... or hex): ")
				secret, _ := reader.ReadString('\n')
				secret = strings.TrimSpace(secret)
				if secret == "" {
					return outputError(errors.NewInvalidRequest("no secret key provided"))
				}
				kp, err = keys.Parse(secret)
			} else {
				fmt.Fprintln(env.out, "Generating new keypair...")
				kp, err = keys.Generate()
			}
			if err != nil {
				return outputError(err)
			}

			info, err := kp.Info()
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintln(env.out, info)

			cfg, err := env.loadConfig()
			if err != nil {
				return outputError(err)
			}
			nsec, err := kp.Nsec()
			if err != nil {
				return outputError(err)
			}
			cfg.SecretKey = nsec
			if len(cfg.Relays) == 0 {
				cfg.Relays = append([]string{}, cfg.DefaultRelays...)
			}
			if err := cfg.Save(env.baseDir); err != nil {
				return outputError(err)
			}

			fmt.Fprintln(env.out)
			fmt.Fprintln(env.out, "Configuration saved to ~/.nostaro/config.yaml")
			fmt.Fprintln(env.out, "Default relays have been configured.")
			fmt.Fprintln(env.out)
			fmt.Fprintln(env.out, `You're all set! Try posting with: nostaro post "Hello Nostr!"`)
			return nil
		},
	}
}

// postCmd creates the post command.
func postCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Post a text note to Nostr (kind:1)",
		ArgsUsage: "<message>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("message is required"))
			}
			_, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			ev, err := cl.PublishEvent(c.Context, nostr.KindTextNote, c.Args().First(), nil)
			if err != nil {
				return outputError(err)
			}
			env.cacheEvent(ev)

			note, _ := nip19.EncodeNote(ev.ID)
			fmt.Fprintln(env.out, "Posted successfully!")
			fmt.Fprintf(env.out, "Note ID: %s\n", note)
			return nil
		},
	}
}

// replyCmd creates the reply command.
func replyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "reply",
		Usage:     "Reply to a note (kind:1 with e/p tags)",
		ArgsUsage: "<note-id> <message>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("note id and message are required"))
			}
			_, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			id, err := keys.ResolveEventID(c.Args().Get(0))
			if err != nil {
				return outputError(err)
			}
			target, err := cl.FetchEventByID(c.Context, id, client.DefaultTimeout)
			if err != nil {
				return outputError(err)
			}
			if target == nil {
				return outputError(errors.NewNotFound(c.Args().Get(0)))
			}

			fmt.Fprintf(env.out, "Replying to %s...\n", id[:8])
			tags := nostr.Tags{
				{"e", target.ID, "", "root"},
				{"p", target.PubKey},
			}
			ev, err := cl.PublishEvent(c.Context, nostr.KindTextNote, c.Args().Get(1), tags)
			if err != nil {
				return outputError(err)
			}
			env.cacheEvent(ev)
			fmt.Fprintln(env.out, "Reply published successfully!")
			return nil
		},
	}
}

// repostCmd creates the repost command.
func repostCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "repost",
		Usage:     "Repost a note (kind:6)",
		ArgsUsage: "<note-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("note id is required"))
			}
			cfg, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			id, err := keys.ResolveEventID(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			target, err := cl.FetchEventByID(c.Context, id, client.DefaultTimeout)
			if err != nil {
				return outputError(err)
			}
			if target == nil {
				return outputError(errors.NewNotFound(c.Args().First()))
			}

			fmt.Fprintf(env.out, "Reposting %s...\n", id[:8])
			raw, err := json.Marshal(target)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			relayHint := ""
			if relays := cfg.ActiveRelays(); len(relays) > 0 {
				relayHint = relays[0]
			}
			tags := nostr.Tags{
				{"e", target.ID, relayHint},
				{"p", target.PubKey},
			}
			if _, err := cl.PublishEvent(c.Context, nostr.KindRepost, string(raw), tags); err != nil {
				return outputError(err)
			}
			fmt.Fprintln(env.out, "Reposted successfully!")
			return nil
		},
	}
}

// timelineCmd creates the timeline command.
func timelineCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "View your timeline",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum number of notes to fetch"},
		},
		Action: func(c *cli.Context) error {
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}
			limit := c.Int("limit")

			fmt.Fprintln(env.out, "Fetching timeline...")
			fmt.Fprintln(env.out)

			contacts, err := cl.FetchContacts(c.Context, kp.PublicKey)
			if err != nil {
				return outputError(err)
			}
			following := make(map[string]bool, len(contacts))
			for _, pk := range contacts {
				following[pk] = true
			}

			authors := append(append([]string{}, contacts...), kp.PublicKey)
			events, err := cl.FetchEvents(c.Context, nostr.Filter{
				Kinds:   []int{nostr.KindTextNote},
				Authors: authors,
				Limit:   limit,
			}, client.DefaultTimeout)
			if err != nil {
				return outputError(err)
			}

			// Fill from the global firehose when followed authors alone
			// do not reach the limit.
			if len(events) < limit {
				global, err := cl.FetchEvents(c.Context, nostr.Filter{
					Kinds: []int{nostr.KindTextNote},
					Limit: limit,
				}, client.DefaultTimeout)
				if err == nil {
					seen := make(map[string]bool, len(events))
					for _, ev := range events {
						seen[ev.ID] = true
					}
					for _, ev := range global {
						if !seen[ev.ID] {
							events = append(events, ev)
						}
					}
				}
			}

			// Followed authors first, newest first within each group.
			sort.SliceStable(events, func(i, j int) bool {
				fi := following[events[i].PubKey] || events[i].PubKey == kp.PublicKey
				fj := following[events[j].PubKey] || events[j].PubKey == kp.PublicKey
				if fi != fj {
					return fi
				}
				return events[i].CreatedAt > events[j].CreatedAt
			})
			if len(events) > limit {
				events = events[:limit]
			}

			if len(events) == 0 {
				fmt.Fprintln(env.out, "No notes found.")
				return nil
			}

			for _, ev := range events {
				env.cacheEvent(ev)
				label := ""
				if ev.PubKey == kp.PublicKey {
					label = " [you]"
				} else if following[ev.PubKey] {
					label = " [following]"
				}
				fmt.Fprintf(env.out, "[%s]%s %s\n", keys.ShortNpub(ev.PubKey), label, formatTimestamp(ev.CreatedAt))
				fmt.Fprintln(env.out, ev.Content)
				fmt.Fprintln(env.out, strings.Repeat("-", 60))
			}
			fmt.Fprintf(env.out, "\nShowing %d note(s).\n", len(events))
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search notes (NIP-50)",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum number of results"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("search query is required"))
			}
			_, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			query := c.Args().First()
			fmt.Fprintf(env.out, "Searching for %q...\n\n", query)

			events, err := cl.SearchNotes(c.Context, query, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			if len(events) == 0 {
				fmt.Fprintln(env.out, "No results found.")
				return nil
			}

			for _, ev := range events {
				env.cacheEvent(ev)
				fmt.Fprintf(env.out, "[%s] %s\n", keys.ShortNpub(ev.PubKey), formatTimestamp(ev.CreatedAt))
				fmt.Fprintln(env.out, ev.Content)
				fmt.Fprintln(env.out, strings.Repeat("-", 60))
			}
			fmt.Fprintf(env.out, "\nFound %d note(s).\n", len(events))
			return nil
		},
	}
}

// reactCmd creates the react command.
func reactCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "react",
		Usage:     "React to a note (kind:7)",
		ArgsUsage: "<note-id> [emoji]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("note id is required"))
			}
			emoji := "⚡"
			if c.NArg() > 1 {
				emoji = c.Args().Get(1)
			}
			_, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			id, err := keys.ResolveEventID(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			target, err := cl.FetchEventByID(c.Context, id, client.DefaultTimeout)
			if err != nil {
				return outputError(err)
			}
			if target == nil {
				return outputError(errors.NewNotFound(c.Args().First()))
			}

			tags := nostr.Tags{
				{"e", target.ID},
				{"p", target.PubKey},
				{"k", fmt.Sprintf("%d", target.Kind)},
			}
			if _, err := cl.PublishEvent(c.Context, nostr.KindReaction, emoji, tags); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(env.out, "Reacted with %q to event %s\n", emoji, id[:8])
			return nil
		},
	}
}

// eventCmd creates the event command for custom kinds.
func eventCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "event",
		Usage: "Post a custom kind Nostr event",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "Event kind number"},
			&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: `Tags in "key,value" format (repeatable)`},
			&cli.StringFlag{Name: "content", Aliases: []string{"c"}, Usage: "Event content"},
		},
		Action: func(c *cli.Context) error {
			_, _, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			var tags nostr.Tags
			for _, raw := range c.StringSlice("tag") {
				parts := strings.Split(raw, ",")
				if len(parts) < 2 {
					return outputError(errors.NewInvalidRequest(
						fmt.Sprintf("tag %q must be in \"key,value\" format", raw)))
				}
				tags = append(tags, nostr.Tag(parts))
			}

			ev, err := cl.PublishEvent(c.Context, c.Int("kind"), c.String("content"), tags)
			if err != nil {
				return outputError(err)
			}
			env.cacheEvent(ev)
			fmt.Fprintf(env.out, "Published kind %d event.\n", ev.Kind)
			fmt.Fprintf(env.out, "Event ID: %s\n", ev.ID)
			return nil
		},
	}
}

// Helper functions

// outputError formats error for CLI.
func outputError(err error) error {
	if nerr, ok := err.(*errors.NostaroError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", nerr.Code, nerr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// formatTimestamp renders a unix timestamp for display.
func formatTimestamp(ts nostr.Timestamp) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// strPtr returns a pointer to s, or nil when s is empty.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
