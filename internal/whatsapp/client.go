// Package whatsapp is a thin client for the Cloud API message and media
// endpoints. Credentials are passed per call: each business number
// carries its own application token.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SendResponse is the Cloud API response to a message send.
type SendResponse struct {
	Contacts []struct {
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the platform id assigned to the sent message.
func (r SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// RecipientWaID returns the normalized recipient id from the response.
func (r SendResponse) RecipientWaID() string {
	if len(r.Contacts) == 0 {
		return ""
	}
	return r.Contacts[0].WaID
}

// MediaInfo describes a downloadable media asset.
type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// APIError is a non-2xx Cloud API response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api status %d: %s", e.Status, e.Body)
}

// Client calls the Cloud API graph endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Cloud API client rooted at baseURL (including the
// graph version segment).
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("client", "whatsapp")),
	}
}

// SendText sends a plain text message from the given business number.
func (c *Client) SendText(ctx context.Context, token, phoneID, to, body string) (SendResponse, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        body,
		},
	}
	return c.SendPayload(ctx, token, phoneID, payload)
}

// SendPayload posts an arbitrary message payload (templates, interactive
// messages) to the messages endpoint of a business number.
func (c *Client) SendPayload(ctx context.Context, token, phoneID string, payload map[string]any) (SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResponse{}, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s/messages", c.baseURL, phoneID), bytes.NewReader(body))
	if err != nil {
		return SendResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp SendResponse
	if err := c.do(req, &resp); err != nil {
		return SendResponse{}, err
	}
	return resp, nil
}

// MediaInfo resolves the download URL for an uploaded media id.
func (c *Client) MediaInfo(ctx context.Context, token, mediaID string) (MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s", c.baseURL, mediaID), nil)
	if err != nil {
		return MediaInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var info MediaInfo
	if err := c.do(req, &info); err != nil {
		return MediaInfo{}, err
	}
	return info, nil
}

// DownloadMedia fetches the media bytes behind an info URL. The caller
// owns the returned reader.
func (c *Client) DownloadMedia(ctx context.Context, token, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return resp.Body, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
