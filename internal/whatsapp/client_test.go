package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextPostsMessagePayload(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"contacts": [{"wa_id": "5215550002222"}], "messages": [{"id": "wamid.OUT"}]}`))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	resp, err := c.SendText(context.Background(), "app-token", "phone-1", "5215550002222", "hola")
	require.NoError(t, err)

	assert.Equal(t, "/phone-1/messages", gotPath)
	assert.Equal(t, "Bearer app-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "5215550002222", gotBody["to"])
	text, ok := gotBody["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hola", text["body"])

	assert.Equal(t, "wamid.OUT", resp.MessageID())
	assert.Equal(t, "5215550002222", resp.RecipientWaID())
}

func TestSendPayloadAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid token"}}`))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	_, err := c.SendPayload(context.Background(), "bad", "phone-1", map[string]any{"type": "text"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestMediaInfo(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media-9", r.URL.Path)
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(MediaInfo{
			ID:       "media-9",
			URL:      "https://lookaside.example.com/file",
			MimeType: "image/jpeg",
			FileSize: 1234,
		})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	info, err := c.MediaInfo(context.Background(), "app-token", "media-9")
	require.NoError(t, err)
	assert.Equal(t, "https://lookaside.example.com/file", info.URL)
	assert.Equal(t, "image/jpeg", info.MimeType)
}

func TestDownloadMedia(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		w.Write([]byte("binary-bytes"))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	body, err := c.DownloadMedia(context.Background(), "app-token", srv.URL+"/file")
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(raw))
}

func TestDownloadMediaRejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	_, err := c.DownloadMedia(context.Background(), "app-token", srv.URL+"/gone")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
