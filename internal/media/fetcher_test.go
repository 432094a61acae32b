package media

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crmlat/wabot/internal/whatsapp"
)

type fakeMediaAPI struct {
	infoFunc     func(ctx context.Context, token, mediaID string) (whatsapp.MediaInfo, error)
	downloadFunc func(ctx context.Context, token, url string) (io.ReadCloser, error)
}

func (f *fakeMediaAPI) MediaInfo(ctx context.Context, token, mediaID string) (whatsapp.MediaInfo, error) {
	if f.infoFunc == nil {
		return whatsapp.MediaInfo{ID: mediaID, URL: "https://cdn.example.com/file", MimeType: "image/jpeg"}, nil
	}
	return f.infoFunc(ctx, token, mediaID)
}

func (f *fakeMediaAPI) DownloadMedia(ctx context.Context, token, url string) (io.ReadCloser, error) {
	if f.downloadFunc == nil {
		return io.NopCloser(strings.NewReader("image-bytes")), nil
	}
	return f.downloadFunc(ctx, token, url)
}

func newTestStorage(t *testing.T) *DiskStorage {
	t.Helper()
	storage, err := NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("disk storage: %v", err)
	}
	return storage
}

func TestFetchStoresAssetAndReturnsPublicURL(t *testing.T) {
	t.Parallel()

	storage := newTestStorage(t)
	f := NewFetcher(nil, &fakeMediaAPI{}, storage, "https://crm.example.com/")

	url, err := f.Fetch(context.Background(), "media-9", "app-token")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if url != "https://crm.example.com/storage/media-9.jpg" {
		t.Fatalf("url=%q", url)
	}

	raw, err := os.ReadFile(filepath.Join(storage.Dir(), "media-9.jpg"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(raw) != "image-bytes" {
		t.Fatalf("stored=%q", raw)
	}
}

func TestFetchEmptyBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	api := &fakeMediaAPI{
		downloadFunc: func(ctx context.Context, token, url string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("")), nil
		},
	}
	f := NewFetcher(nil, api, newTestStorage(t), "https://crm.example.com")

	_, err := f.Fetch(context.Background(), "media-9", "app-token")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v want ErrUnavailable", err)
	}
}

func TestFetchInfoFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	api := &fakeMediaAPI{
		infoFunc: func(ctx context.Context, token, mediaID string) (whatsapp.MediaInfo, error) {
			return whatsapp.MediaInfo{}, &whatsapp.APIError{Status: 404, Body: "not found"}
		},
	}
	f := NewFetcher(nil, api, newTestStorage(t), "https://crm.example.com")

	_, err := f.Fetch(context.Background(), "media-gone", "app-token")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v want ErrUnavailable", err)
	}
}

func TestExtensionFromMime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mime string
		want string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"audio/ogg; codecs=opus", ".ogg"},
		{"video/mp4", ".mp4"},
		{"application/pdf", ".pdf"},
		{"application/octet-stream", ".bin"},
		{"", ".bin"},
	}
	for _, tc := range cases {
		if got := extensionFromMime(tc.mime); got != tc.want {
			t.Fatalf("mime=%q got=%q want=%q", tc.mime, got, tc.want)
		}
	}
}

func TestDiskStorageRejectsTraversal(t *testing.T) {
	t.Parallel()

	storage := newTestStorage(t)
	if _, err := storage.Put(context.Background(), "../outside.bin", strings.NewReader("x")); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := storage.Put(context.Background(), "/abs.bin", strings.NewReader("x")); err == nil {
		t.Fatal("expected absolute key rejection")
	}
}
