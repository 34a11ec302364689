package main

import (
	"fmt"
	"sort"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"

	"github.com/kojira/nostaro/internal/client"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
	"github.com/kojira/nostaro/internal/zap"
)

// profileCmd creates the profile command with show/set subcommands.
func profileCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "View or set a Nostr profile",
		Subcommands: []*cli.Command{
			profileShowCmd(env),
			profileSetCmd(env),
		},
	}
}

func profileShowCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a Nostr profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pubkey", Aliases: []string{"p"}, Usage: "Public key (npub or hex) to look up; defaults to your own"},
		},
		Action: func(c *cli.Context) error {
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			pubkey := kp.PublicKey
			if pk := c.String("pubkey"); pk != "" {
				pubkey, err = keys.ResolvePubkey(pk)
				if err != nil {
					return outputError(err)
				}
			}

			npub, err := nip19.EncodePublicKey(pubkey)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			fmt.Fprintf(env.out, "Fetching profile for %s...\n\n", keys.ShortNpub(pubkey))

			md, err := cl.FetchProfile(c.Context, pubkey)
			if err != nil {
				return outputError(err)
			}
			if md != nil {
				if md.Name != "" {
					fmt.Fprintf(env.out, "Name:         %s\n", md.Name)
				}
				if md.DisplayName != "" {
					fmt.Fprintf(env.out, "Display Name: %s\n", md.DisplayName)
				}
				if md.About != "" {
					fmt.Fprintf(env.out, "About:        %s\n", md.About)
				}
				if md.Picture != "" {
					fmt.Fprintf(env.out, "Picture:      %s\n", md.Picture)
				}
				if md.NIP05 != "" {
					fmt.Fprintf(env.out, "NIP-05:       %s\n", md.NIP05)
				}
				if md.LUD16 != "" {
					fmt.Fprintf(env.out, "Lightning:    %s\n", md.LUD16)
				}
				env.cacheProfile(pubkey, md)
			} else {
				fmt.Fprintln(env.out, "No profile metadata found.")
			}

			fmt.Fprintf(env.out, "Npub:         %s\n", npub)
			if nprofile, err := nip19.EncodeProfile(pubkey, nil); err == nil {
				fmt.Fprintf(env.out, "Nprofile:     %s\n", nprofile)
			}
			return nil
		},
	}
}

// cacheProfile stores fetched profile metadata locally, best effort.
func (a *appEnv) cacheProfile(pubkey string, md *client.Metadata) {
	db, err := a.openCache()
	if err != nil {
		return
	}
	defer db.Close()
	_ = db.StoreProfile(pubkey, strPtr(md.Name), strPtr(md.DisplayName), strPtr(md.About), strPtr(md.Picture))
}

func profileSetCmd(env *appEnv) *cli.Command {
	fields := []string{"name", "display-name", "about", "picture", "lud16", "lud06", "nip05", "banner", "website"}
	return &cli.Command{
		Name:  "set",
		Usage: "Set your profile metadata (kind:0)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Name (username)"},
			&cli.StringFlag{Name: "display-name", Usage: "Display name"},
			&cli.StringFlag{Name: "about", Usage: "About / bio"},
			&cli.StringFlag{Name: "picture", Usage: "Profile picture URL"},
			&cli.StringFlag{Name: "lud16", Usage: "Lightning address (lud16)"},
			&cli.StringFlag{Name: "lud06", Usage: "LNURL pay URL (lud06)"},
			&cli.StringFlag{Name: "nip05", Usage: "NIP-05 identifier"},
			&cli.StringFlag{Name: "banner", Usage: "Banner image URL"},
			&cli.StringFlag{Name: "website", Usage: "Website URL"},
		},
		Action: func(c *cli.Context) error {
			anySet := false
			for _, f := range fields {
				if c.IsSet(f) {
					anySet = true
					break
				}
			}
			if !anySet {
				return outputError(errors.NewInvalidRequest(
					"at least one field must be specified (--name, --display-name, --about, ...)"))
			}

			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			// Merge over the current profile so unspecified fields survive.
			md, err := cl.FetchProfile(c.Context, kp.PublicKey)
			if err != nil || md == nil {
				md = &client.Metadata{}
			}
			if c.IsSet("name") {
				md.Name = c.String("name")
			}
			if c.IsSet("display-name") {
				md.DisplayName = c.String("display-name")
			}
			if c.IsSet("about") {
				md.About = c.String("about")
			}
			if c.IsSet("picture") {
				md.Picture = c.String("picture")
			}
			if c.IsSet("lud16") {
				md.LUD16 = c.String("lud16")
			}
			if c.IsSet("lud06") {
				md.LUD06 = c.String("lud06")
			}
			if c.IsSet("nip05") {
				md.NIP05 = c.String("nip05")
			}
			if c.IsSet("banner") {
				md.Banner = c.String("banner")
			}
			if c.IsSet("website") {
				md.Website = c.String("website")
			}

			fmt.Fprintln(env.out, "Setting profile metadata...")
			if err := cl.SetMetadata(c.Context, md); err != nil {
				return outputError(err)
			}
			fmt.Fprintln(env.out, "Profile updated successfully!")
			return nil
		},
	}
}

// followCmd creates the follow command.
func followCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "follow",
		Usage:     "Follow a user (kind:3)",
		ArgsUsage: "<npub>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("public key is required"))
			}
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			pubkey, err := keys.ResolvePubkey(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			contacts, err := cl.FetchContacts(c.Context, kp.PublicKey)
			if err != nil {
				return outputError(err)
			}
			npub, _ := nip19.EncodePublicKey(pubkey)
			for _, pk := range contacts {
				if pk == pubkey {
					fmt.Fprintf(env.out, "Already following %s\n", npub)
					return nil
				}
			}

			contacts = append(contacts, pubkey)
			if err := cl.PublishContactList(c.Context, contacts); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(env.out, "Now following %s\n", npub)
			return nil
		},
	}
}

// unfollowCmd creates the unfollow command.
func unfollowCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "unfollow",
		Usage:     "Unfollow a user (kind:3)",
		ArgsUsage: "<npub>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("public key is required"))
			}
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			pubkey, err := keys.ResolvePubkey(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			contacts, err := cl.FetchContacts(c.Context, kp.PublicKey)
			if err != nil {
				return outputError(err)
			}
			npub, _ := nip19.EncodePublicKey(pubkey)

			kept := contacts[:0]
			for _, pk := range contacts {
				if pk != pubkey {
					kept = append(kept, pk)
				}
			}
			if len(kept) == len(contacts) {
				fmt.Fprintf(env.out, "Not following %s\n", npub)
				return nil
			}

			if err := cl.PublishContactList(c.Context, kept); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(env.out, "Unfollowed %s\n", npub)
			return nil
		},
	}
}

// followingCmd creates the following command.
func followingCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "following",
		Usage:     "List users you're following",
		ArgsUsage: "[npub]",
		Action: func(c *cli.Context) error {
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			pubkey := kp.PublicKey
			if c.NArg() > 0 {
				pubkey, err = keys.ResolvePubkey(c.Args().First())
				if err != nil {
					return outputError(err)
				}
			}

			contacts, err := cl.FetchContacts(c.Context, pubkey)
			if err != nil {
				return outputError(err)
			}
			if len(contacts) == 0 {
				fmt.Fprintln(env.out, "Not following anyone yet.")
				return nil
			}

			fmt.Fprintf(env.out, "Following %d user(s):\n", len(contacts))
			printContacts(env, c, cl, contacts)
			return nil
		},
	}
}

// followersCmd creates the followers command.
func followersCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "followers",
		Usage:     "List followers",
		ArgsUsage: "[npub]",
		Action: func(c *cli.Context) error {
			_, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			pubkey := kp.PublicKey
			if c.NArg() > 0 {
				pubkey, err = keys.ResolvePubkey(c.Args().First())
				if err != nil {
					return outputError(err)
				}
			}

			// Followers are authors of contact lists that reference the
			// target. This is inherently relay-local and approximate.
			events, err := cl.FetchEvents(c.Context, nostr.Filter{
				Kinds: []int{nostr.KindFollowList},
				Tags:  nostr.TagMap{"p": []string{pubkey}},
				Limit: 500,
			}, client.DefaultTimeout)
			if err != nil {
				return outputError(err)
			}

			seen := make(map[string]bool)
			var followers []string
			for _, ev := range events {
				if !seen[ev.PubKey] {
					seen[ev.PubKey] = true
					followers = append(followers, ev.PubKey)
				}
			}
			sort.Strings(followers)

			if len(followers) == 0 {
				fmt.Fprintln(env.out, "No followers found.")
				return nil
			}

			fmt.Fprintf(env.out, "%d follower(s):\n", len(followers))
			printContacts(env, c, cl, followers)
			return nil
		},
	}
}

// printContacts lists pubkeys with profile names where available.
func printContacts(env *appEnv, c *cli.Context, cl *client.Client, pubkeys []string) {
	for _, pk := range pubkeys {
		npub, err := nip19.EncodePublicKey(pk)
		if err != nil {
			npub = pk
		}
		if md, err := cl.FetchProfile(c.Context, pk); err == nil && md != nil && md.Name != "" {
			fmt.Fprintf(env.out, "  %s (%s)\n", md.Name, npub)
		} else {
			fmt.Fprintf(env.out, "  %s\n", npub)
		}
	}
}

// dmCmd creates the dm command with send/read subcommands.
func dmCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "dm",
		Usage: "Direct messages (NIP-44/NIP-17)",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send a direct message",
				ArgsUsage: "<npub> <message>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "nip04", Usage: "Use NIP-04 (kind:4) instead of NIP-17"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("recipient and message are required"))
					}
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}

					recipient, err := keys.ResolvePubkey(c.Args().Get(0))
					if err != nil {
						return outputError(err)
					}

					fmt.Fprintln(env.out, "Sending DM...")
					if c.Bool("nip04") {
						err = cl.SendLegacyDirectMessage(c.Context, recipient, c.Args().Get(1))
					} else {
						err = cl.SendDirectMessage(c.Context, recipient, c.Args().Get(1))
					}
					if err != nil {
						return outputError(err)
					}
					fmt.Fprintf(env.out, "DM sent to %s!\n", keys.ShortNpub(recipient))
					return nil
				},
			},
			{
				Name:      "read",
				Usage:     "Read received direct messages",
				ArgsUsage: "[npub]",
				Action: func(c *cli.Context) error {
					_, _, cl, err := env.session(c)
					if err != nil {
						return outputError(err)
					}

					senderFilter := ""
					if c.NArg() > 0 {
						senderFilter, err = keys.ResolvePubkey(c.Args().First())
						if err != nil {
							return outputError(err)
						}
					}

					fmt.Fprintln(env.out, "Fetching DMs...")
					fmt.Fprintln(env.out)

					var messages []*client.DirectMessage

					wraps, err := cl.FetchGiftWraps(c.Context, 20)
					if err != nil {
						return outputError(err)
					}
					for _, wrap := range wraps {
						dm, err := cl.UnwrapGiftWrap(wrap)
						if err != nil {
							continue
						}
						messages = append(messages, dm)
					}

					legacy, err := cl.FetchLegacyDirectMessages(c.Context, 20)
					if err == nil {
						for _, ev := range legacy {
							dm, err := cl.DecryptLegacyDirectMessage(ev)
							if err != nil {
								continue
							}
							messages = append(messages, dm)
						}
					}

					if senderFilter != "" {
						kept := messages[:0]
						for _, dm := range messages {
							if dm.Sender == senderFilter {
								kept = append(kept, dm)
							}
						}
						messages = kept
					}

					if len(messages) == 0 {
						fmt.Fprintln(env.out, "No direct messages found.")
						return nil
					}

					sort.Slice(messages, func(i, j int) bool {
						return messages[i].CreatedAt < messages[j].CreatedAt
					})
					for _, dm := range messages {
						fmt.Fprintf(env.out, "[%s] %s (%s)\n", keys.ShortNpub(dm.Sender),
							formatTimestamp(dm.CreatedAt), dm.Scheme)
						fmt.Fprintln(env.out, dm.Content)
						fmt.Fprintln(env.out)
					}
					fmt.Fprintf(env.out, "Showing %d message(s).\n", len(messages))
					return nil
				},
			},
		},
	}
}

// zapCmd creates the zap command.
func zapCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "zap",
		Usage:     "Send a zap (NIP-57)",
		ArgsUsage: "<npub> <amount-sats>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Optional message"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("target and amount are required"))
			}
			var amount uint64
			if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &amount); err != nil || amount == 0 {
				return outputError(errors.NewInvalidRequest("amount must be a positive number of sats"))
			}

			cfg, kp, cl, err := env.session(c)
			if err != nil {
				return outputError(err)
			}

			target, err := keys.ResolvePubkey(c.Args().First())
			if err != nil {
				return outputError(err)
			}

			md, err := cl.FetchProfile(c.Context, target)
			if err != nil {
				return outputError(err)
			}
			if md == nil {
				return outputError(errors.NewNotFound(c.Args().First()))
			}

			endpoint, err := zap.ResolveLNURL(md)
			if err != nil {
				return outputError(err)
			}

			fmt.Fprintln(env.out, "Fetching LNURL endpoint...")
			z := zap.New(kp, cfg.PaymentCommand)
			invoice, err := z.RequestInvoice(c.Context, endpoint, target, amount,
				c.String("message"), cfg.ActiveRelays())
			if err != nil {
				return outputError(err)
			}

			fmt.Fprintln(env.out, "Paying invoice...")
			if _, err := z.Pay(c.Context, invoice); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(env.out, "⚡ Zap sent successfully! %d sats to %s\n", amount, keys.ShortNpub(target))
			return nil
		},
	}
}
