// package ingest implements the client for the destination video platform's
// ingest API and the types for its asynchronous callback channel.
//
// The destination pulls the asset from a transient access URL, encodes it on
// its own schedule, and reports completion through webhooks; the correlation
// payload submitted here is echoed back verbatim in the callback's
// passthrough field.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// EventKind identifies a callback event type.
type EventKind string

const (
	EventAssetCreated EventKind = "video.asset.created"
	EventAssetReady   EventKind = "video.asset.ready"
	EventAssetErrored EventKind = "video.asset.errored"
)

// CallbackEvent is the webhook body delivered by the destination platform.
// Delivery is at-least-once and unordered across event kinds for one asset.
type CallbackEvent struct {
	Type   EventKind `json:"type"`
	Object struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"object"`
	Environment struct {
		Name string `json:"name"`
	} `json:"environment"`
	Data CallbackData `json:"data"`
}

// CallbackData carries the asset state inside a callback event.
type CallbackData struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PlaybackIDs []struct {
		ID string `json:"id"`
	} `json:"playback_ids,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
}

// PlaybackID returns the first playback identifier, or the empty string.
func (d CallbackData) PlaybackID() string {
	if len(d.PlaybackIDs) == 0 {
		return ""
	}
	return d.PlaybackIDs[0].ID
}

// StreamingURL derives the HLS playback URL for a playback identifier.
func StreamingURL(streamHost, playbackID string) string {
	return fmt.Sprintf("https://%s/%s.m3u8", streamHost, playbackID)
}

// ThumbnailURL derives the poster image URL for a playback identifier.
func ThumbnailURL(imageHost, playbackID string) string {
	return fmt.Sprintf("https://%s/%s/thumbnail.jpg", imageHost, playbackID)
}

// Submission is the destination's acknowledgement of an ingest request.
type Submission struct {
	AssetID    string
	PlaybackID string
	Status     string
}

// Client submits ingest requests to the destination platform.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
}

// NewClient creates a new ingest API client authenticated with the
// destination's token pair.
func NewClient(cfg shared.DestinationConfig, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		httpClient:  client,
	}
}

// assetRequest is the ingest request body.
type assetRequest struct {
	Input          []assetInput `json:"input"`
	Passthrough    string       `json:"passthrough"`
	PlaybackPolicy []string     `json:"playback_policy"`
}

type assetInput struct {
	URL string `json:"url"`
}

// assetResponse wraps the created asset.
type assetResponse struct {
	Data struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PlaybackIDs []struct {
			ID string `json:"id"`
		} `json:"playback_ids"`
	} `json:"data"`
}

// Submit hands the access URL and correlation payload to the destination's
// ingest API. The destination deduplicates on its side; Submit itself makes
// no idempotency promise and is safe to retry on transient failures.
func (c *Client) Submit(ctx context.Context, accessURL string, passthrough models.Passthrough) (*Submission, error) {
	encoded, err := passthrough.Encode()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(assetRequest{
		Input:          []assetInput{{URL: accessURL}},
		Passthrough:    encoded,
		PlaybackPolicy: []string{"public"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ingest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/v1/assets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", shared.ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrIngestRequest, resp.StatusCode, string(respBody))
	}

	var created assetResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", shared.ErrIngestRequest, err)
	}
	if created.Data.ID == "" {
		return nil, fmt.Errorf("%w: response missing asset id", shared.ErrIngestRequest)
	}

	submission := &Submission{AssetID: created.Data.ID, Status: created.Data.Status}
	if len(created.Data.PlaybackIDs) > 0 {
		submission.PlaybackID = created.Data.PlaybackIDs[0].ID
	}
	return submission, nil
}

// ValidateCredential performs a read-only probe of the destination token pair
// by listing a single asset.
func (c *Client) ValidateCredential(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/video/v1/assets?limit=1", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", shared.ErrTransient, resp.StatusCode)
	}
}
