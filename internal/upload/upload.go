// Package upload pushes media files to Blossom or NIP-96 hosts,
// authorizing each request with a signed event.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

// DefaultNIP96Server is used when no server is given for a NIP-96
// upload.
const DefaultNIP96Server = "https://nostr.build"

const (
	kindBlossomAuth = 24242
	kindHTTPAuth    = 27235

	// authExpiry bounds how long a Blossom authorization stays valid.
	authExpiry = 300 * time.Second
)

// Uploader signs upload authorizations and talks to media hosts.
type Uploader struct {
	keys keys.KeyPair
	http *http.Client
}

func New(kp keys.KeyPair) *Uploader {
	return &Uploader{
		keys: kp,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Blossom uploads data with a PUT to server/upload, authorized by a
// signed kind 24242 event carrying the payload's sha256. It returns
// the hosted URL, or the raw response body when the host reports none.
func (u *Uploader) Blossom(ctx context.Context, server, name string, data []byte) (string, error) {
	sum := sha256.Sum256(data)

	auth, err := u.signAuth(kindBlossomAuth, "Upload", nostr.Tags{
		{"t", "upload"},
		{"x", hex.EncodeToString(sum[:])},
		{"expiration", strconv.FormatInt(time.Now().Add(authExpiry).Unix(), 10)},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		strings.TrimSuffix(server, "/")+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", MimeType(name))

	body, err := u.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.URL != "" {
		return resp.URL, nil
	}
	return string(body), nil
}

// NIP96 uploads data as a multipart POST to the server's advertised
// api_url, authorized by a signed kind 27235 event. The hosted URL is
// taken from the nip94_event tags of the response.
func (u *Uploader) NIP96(ctx context.Context, server, name string, data []byte) (string, error) {
	server = strings.TrimSuffix(server, "/")

	apiURL, err := u.discoverAPI(ctx, server)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(apiURL, "http") {
		apiURL = server + apiURL
	}

	auth, err := u.signAuth(kindHTTPAuth, "", nostr.Tags{
		{"u", apiURL},
		{"method", "POST"},
	})
	if err != nil {
		return "", err
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.NewInternal(err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &form)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := u.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		NIP94Event struct {
			Tags [][]string `json:"tags"`
		} `json:"nip94_event"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		for _, tag := range resp.NIP94Event.Tags {
			if len(tag) >= 2 && tag[0] == "url" {
				return tag[1], nil
			}
		}
	}
	return string(body), nil
}

// discoverAPI reads the server's NIP-96 well-known document.
func (u *Uploader) discoverAPI(ctx context.Context, server string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		server+"/.well-known/nostr/nip96.json", nil)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	body, err := u.do(req)
	if err != nil {
		return "", err
	}
	var doc struct {
		APIURL string `json:"api_url"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", errors.NewNetwork(fmt.Errorf("invalid nip96.json: %w", err))
	}
	if doc.APIURL == "" {
		return "", errors.NewNetwork(fmt.Errorf("no api_url in %s/.well-known/nostr/nip96.json", server))
	}
	return doc.APIURL, nil
}

// signAuth builds, signs, and base64-encodes an authorization event
// for the Authorization header.
func (u *Uploader) signAuth(kind int, content string, tags nostr.Tags) (string, error) {
	ev := nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      tags,
	}
	if err := ev.Sign(u.keys.SecretKey); err != nil {
		return "", errors.NewInternal(err)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(raw), nil
}

func (u *Uploader) do(req *http.Request) ([]byte, error) {
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, errors.NewNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetwork(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewNetwork(fmt.Errorf(
			"upload failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return body, nil
}

// MimeType maps a file name's extension to a content type, defaulting
// to application/octet-stream.
func MimeType(name string) string {
	ext := strings.ToLower(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = strings.ToLower(name[i+1:])
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
