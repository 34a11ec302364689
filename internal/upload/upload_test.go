package upload

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/kojira/nostaro/internal/errors"
	"github.com/kojira/nostaro/internal/keys"
)

func testUploader(t *testing.T) *Uploader {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return New(kp)
}

func decodeAuth(t *testing.T, header string) *nostr.Event {
	t.Helper()
	if !strings.HasPrefix(header, "Nostr ") {
		t.Fatalf("Authorization %q lacks Nostr scheme", header)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Nostr "))
	if err != nil {
		t.Fatalf("decode auth: %v", err)
	}
	var ev nostr.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal auth event: %v", err)
	}
	return &ev
}

func TestBlossomUpload(t *testing.T) {
	data := []byte("fake png bytes")
	sum := sha256.Sum256(data)

	var gotAuth *nostr.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(data) {
			t.Errorf("body does not match upload data")
		}
		gotAuth = decodeAuth(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/abc.png"})
	}))
	defer srv.Close()

	u := testUploader(t)
	url, err := u.Blossom(context.Background(), srv.URL, "photo.png", data)
	if err != nil {
		t.Fatalf("Blossom: %v", err)
	}
	if url != "https://cdn.example/abc.png" {
		t.Errorf("url = %q", url)
	}

	if gotAuth.Kind != kindBlossomAuth {
		t.Errorf("auth kind = %d, want %d", gotAuth.Kind, kindBlossomAuth)
	}
	if ok, err := gotAuth.CheckSignature(); err != nil || !ok {
		t.Errorf("auth signature invalid: %v", err)
	}
	xTag := gotAuth.Tags.GetFirst([]string{"x"})
	if xTag == nil || (*xTag)[1] != hex.EncodeToString(sum[:]) {
		t.Errorf("x tag does not carry the payload sha256")
	}
	if gotAuth.Tags.GetFirst([]string{"expiration"}) == nil {
		t.Errorf("expiration tag missing")
	}
}

func TestBlossomUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	u := testUploader(t)
	_, err := u.Blossom(context.Background(), srv.URL, "big.mp4", []byte("data"))
	if err == nil {
		t.Fatal("Blossom succeeded against a failing server")
	}
	if !errors.Is(err, errors.ErrNetwork) {
		t.Errorf("error code = %v, want NETWORK", err)
	}
	if !strings.Contains(err.Error(), "413") {
		t.Errorf("status not surfaced: %v", err)
	}
}

func TestNIP96Upload(t *testing.T) {
	var gotAuth *nostr.Event
	var uploadURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/nostr/nip96.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"api_url": "/api/v2/upload"})
	})
	mux.HandleFunc("/api/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = decodeAuth(t, r.Header.Get("Authorization"))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		if header.Filename != "clip.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"nip94_event": map[string]any{
				"tags": [][]string{{"url", "https://media.example/clip.webm"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u := testUploader(t)
	url, err := u.NIP96(context.Background(), srv.URL, "clip.webm", []byte("webm data"))
	if err != nil {
		t.Fatalf("NIP96: %v", err)
	}
	if url != "https://media.example/clip.webm" {
		t.Errorf("url = %q", url)
	}
	uploadURL = srv.URL + "/api/v2/upload"

	if gotAuth.Kind != kindHTTPAuth {
		t.Errorf("auth kind = %d, want %d", gotAuth.Kind, kindHTTPAuth)
	}
	uTag := gotAuth.Tags.GetFirst([]string{"u"})
	if uTag == nil || (*uTag)[1] != uploadURL {
		t.Errorf("u tag does not name the upload endpoint")
	}
	if m := gotAuth.Tags.GetFirst([]string{"method"}); m == nil || (*m)[1] != "POST" {
		t.Errorf("method tag missing or wrong")
	}
}

func TestNIP96MissingAPIURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	u := testUploader(t)
	if _, err := u.NIP96(context.Background(), srv.URL, "a.png", []byte("x")); err == nil {
		t.Fatal("NIP96 succeeded without an advertised api_url")
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"photo.jpg", "image/jpeg"},
		{"photo.JPEG", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"icon.svg", "image/svg+xml"},
		{"song.mp3", "audio/mpeg"},
		{"doc.pdf", "application/pdf"},
		{"archive.zip", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := MimeType(tt.name); got != tt.want {
			t.Errorf("MimeType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
