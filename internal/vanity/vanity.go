// Package vanity brute-forces keypairs whose npub carries a chosen
// prefix.
package vanity

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"golang.org/x/sync/errgroup"

	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// bech32Charset is the alphabet bech32 strings are drawn from. A prefix
// containing any other character can never match, so it is rejected up
// front.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const defaultProgressInterval = time.Second

// Result is a successful vanity search.
type Result struct {
	Keys     keys.KeyPair
	Attempts uint64
	Elapsed  time.Duration
}

// Options tunes a search. Zero values select the defaults: one worker
// per CPU, no progress output.
type Options struct {
	Workers          int
	Progress         io.Writer
	ProgressInterval time.Duration
}

// ValidatePrefix rejects prefixes that contain characters outside the
// bech32 alphabet.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return errors.NewInvalidRequest("prefix must not be empty")
	}
	for _, r := range prefix {
		if !strings.ContainsRune(bech32Charset, r) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"character %q is not in the bech32 alphabet (%s)", r, bech32Charset))
		}
	}
	return nil
}

// Search generates keypairs in parallel until one encodes to an npub
// starting with "npub1"+prefix, ctx is cancelled, or an internal error
// occurs. Expected cost grows by a factor of 32 per prefix character.
func Search(ctx context.Context, prefix string, opts Options) (*Result, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	target := "npub1" + prefix
	start := time.Now()

	var attempts atomic.Uint64
	found := make(chan keys.KeyPair, 1)

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(gctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				sk := nostr.GeneratePrivateKey()
				pk, err := nostr.GetPublicKey(sk)
				if err != nil {
					return errors.NewInternal(err)
				}
				attempts.Add(1)
				npub, err := nip19.EncodePublicKey(pk)
				if err != nil {
					return errors.NewInternal(err)
				}
				if strings.HasPrefix(npub, target) {
					select {
					case found <- keys.KeyPair{SecretKey: sk, PublicKey: pk}:
					default:
					}
					cancel()
					return nil
				}
			}
		})
	}

	if opts.Progress != nil {
		interval := opts.ProgressInterval
		if interval <= 0 {
			interval = defaultProgressInterval
		}
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					n := attempts.Load()
					rate := float64(n) / time.Since(start).Seconds()
					fmt.Fprintf(opts.Progress, "searched %d keys (%.0f keys/s)\n", n, rate)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	select {
	case kp := <-found:
		return &Result{Keys: kp, Attempts: attempts.Load(), Elapsed: time.Since(start)}, nil
	default:
		return nil, ctx.Err()
	}
}
