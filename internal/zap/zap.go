// Package zap implements Lightning zaps: LNURL endpoint resolution,
// invoice negotiation with a signed zap request, and payment through an
// operator-configured external command.
package zap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/kojira/nostaro/internal/client"
	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// Zapper negotiates and pays zap invoices.
type Zapper struct {
	keys   keys.KeyPair
	http   *http.Client
	payCmd []string
}

// New creates a zapper. payCmd is the external payment command; the
// bolt11 invoice is appended as its final argument.
func New(kp keys.KeyPair, payCmd []string) *Zapper {
	return &Zapper{
		keys:   kp,
		http:   &http.Client{Timeout: 30 * time.Second},
		payCmd: payCmd,
	}
}

// ResolveLNURL derives the LNURL-pay endpoint from a profile's
// Lightning fields. lud16 addresses map to the well-known path; plain
// http lud06 values pass through.
func ResolveLNURL(md *client.Metadata) (string, error) {
	if md.LUD16 != "" {
		parts := strings.Split(md.LUD16, "@")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", parts[1], parts[0]), nil
		}
	}
	if md.LUD06 != "" {
		if strings.HasPrefix(md.LUD06, "http") {
			return md.LUD06, nil
		}
		return "", errors.NewInvalidRequest(
			"bech32 lud06 values are not supported; ask the target to set a Lightning address (lud16)")
	}
	return "", errors.NewInvalidRequest("target has no Lightning address configured (lud06/lud16)")
}

type lnurlResponse struct {
	Callback    string `json:"callback"`
	MinSendable uint64 `json:"minSendable"`
	MaxSendable uint64 `json:"maxSendable"`
	AllowsNostr bool   `json:"allowsNostr"`
}

// RequestInvoice fetches the LNURL endpoint, validates the amount
// against the endpoint's bounds, and exchanges a signed kind 9734 zap
// request for a bolt11 invoice. amountSats is in whole sats.
func (z *Zapper) RequestInvoice(ctx context.Context, endpoint, targetPubkey string, amountSats uint64, message string, relays []string) (string, error) {
	var ln lnurlResponse
	if err := z.getJSON(ctx, endpoint, &ln); err != nil {
		return "", err
	}
	if !ln.AllowsNostr {
		return "", errors.NewInvalidRequest("target's LNURL endpoint does not support zaps")
	}

	msats := amountSats * 1000
	if ln.MinSendable > 0 && msats < ln.MinSendable {
		return "", errors.NewInvalidRequest(fmt.Sprintf(
			"amount too small, minimum is %d sats", ln.MinSendable/1000))
	}
	if ln.MaxSendable > 0 && msats > ln.MaxSendable {
		return "", errors.NewInvalidRequest(fmt.Sprintf(
			"amount too large, maximum is %d sats", ln.MaxSendable/1000))
	}

	relayTag := append(nostr.Tag{"relays"}, relays...)
	request := nostr.Event{
		Kind:      nostr.KindZapRequest,
		CreatedAt: nostr.Now(),
		Content:   message,
		Tags: nostr.Tags{
			{"p", targetPubkey},
			{"amount", strconv.FormatUint(msats, 10)},
			relayTag,
		},
	}
	if err := request.Sign(z.keys.SecretKey); err != nil {
		return "", errors.NewInternal(err)
	}
	raw, err := json.Marshal(request)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	callback, err := url.Parse(ln.Callback)
	if err != nil {
		return "", errors.NewNetwork(fmt.Errorf("invalid callback url %q: %w", ln.Callback, err))
	}
	q := callback.Query()
	q.Set("amount", strconv.FormatUint(msats, 10))
	q.Set("nostr", string(raw))
	callback.RawQuery = q.Encode()

	var invoice struct {
		PR string `json:"pr"`
	}
	if err := z.getJSON(ctx, callback.String(), &invoice); err != nil {
		return "", err
	}
	if invoice.PR == "" {
		return "", errors.NewNetwork(fmt.Errorf("LNURL callback returned no invoice"))
	}
	return invoice.PR, nil
}

// Pay runs the configured payment command with the invoice appended
// and returns its combined output.
func (z *Zapper) Pay(ctx context.Context, invoice string) (string, error) {
	if len(z.payCmd) == 0 {
		return "", errors.NewNotConfigured(
			"no payment command configured; set payment_command in the config file")
	}
	args := append(append([]string{}, z.payCmd[1:]...), invoice)
	cmd := exec.CommandContext(ctx, z.payCmd[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.NewDelivery(fmt.Sprintf(
			"payment command failed: %v\n%s", err, strings.TrimSpace(string(out))))
	}
	return strings.TrimSpace(string(out)), nil
}

func (z *Zapper) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	resp, err := z.http.Do(req)
	if err != nil {
		return errors.NewNetwork(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewNetwork(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewNetwork(fmt.Errorf("%s returned %d", rawURL, resp.StatusCode))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewNetwork(fmt.Errorf("invalid response from %s: %w", rawURL, err))
	}
	return nil
}
