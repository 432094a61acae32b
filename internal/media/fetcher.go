package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/crmlat/wabot/internal/whatsapp"
)

// ErrUnavailable is returned when the asset cannot be downloaded or the
// platform serves an empty body.
var ErrUnavailable = errors.New("media unavailable")

// MediaAPI is the platform surface the fetcher downloads through.
type MediaAPI interface {
	MediaInfo(ctx context.Context, token, mediaID string) (whatsapp.MediaInfo, error)
	DownloadMedia(ctx context.Context, token, url string) (io.ReadCloser, error)
}

// Fetcher downloads a media asset by id and returns the public URL of
// the stored copy.
type Fetcher struct {
	api           MediaAPI
	storage       Storage
	publicBaseURL string
	logger        *slog.Logger
}

// NewFetcher creates a media fetcher. publicBaseURL is the externally
// reachable base under which /storage is served.
func NewFetcher(log *slog.Logger, api MediaAPI, storage Storage, publicBaseURL string) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		api:           api,
		storage:       storage,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        log.With(slog.String("service", "media")),
	}
}

// Fetch downloads the asset behind mediaID using the application token
// and stores it. All download failures map to ErrUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, mediaID, token string) (string, error) {
	info, err := f.api.MediaInfo(ctx, token, mediaID)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrUnavailable, mediaID, err)
	}

	body, err := f.api.DownloadMedia(ctx, token, info.URL)
	if err != nil {
		return "", fmt.Errorf("%w: download %s: %v", ErrUnavailable, mediaID, err)
	}
	defer body.Close()

	key := mediaID + extensionFromMime(info.MimeType)
	written, err := f.storage.Put(ctx, key, body)
	if err != nil {
		return "", fmt.Errorf("%w: store %s: %v", ErrUnavailable, mediaID, err)
	}
	if written == 0 {
		return "", fmt.Errorf("%w: empty body for %s", ErrUnavailable, mediaID)
	}

	f.logger.Debug("media stored", slog.String("media_id", mediaID), slog.Int64("bytes", written))
	return f.publicBaseURL + "/storage/" + key, nil
}

func extensionFromMime(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
