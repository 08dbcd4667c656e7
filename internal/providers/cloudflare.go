// Cloudflare Stream implementation of [Provider]
//
// API reference: https://developers.cloudflare.com/api/operations/stream-videos-list-videos
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const defaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// cloudflareEnvelope is the standard Cloudflare API response wrapper.
type cloudflareEnvelope struct {
	Success bool            `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result json.RawMessage `json:"result"`
}

// CloudflareVideo represents one Stream video in list and detail responses.
type CloudflareVideo struct {
	UID     string `json:"uid"`
	Created string `json:"created"`
	Meta    struct {
		Name string `json:"name"`
	} `json:"meta"`
	ReadyToStream bool `json:"readyToStream"`
}

// cloudflareDownload is the result of enabling MP4 downloads for a video.
type cloudflareDownload struct {
	Default struct {
		URL             string  `json:"url"`
		Status          string  `json:"status"`
		PercentComplete float64 `json:"percentComplete"`
	} `json:"default"`
}

// CloudflareService implements [Provider] against Cloudflare Stream.
//
// Credentials: SecretKey is an API token with Stream read permission; the
// metadata bag must carry "account_id". Requests authenticate through an
// [oauth2.StaticTokenSource] so the bearer plumbing matches any future
// token-refresh flow.
type CloudflareService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCloudflareService creates a new Cloudflare Stream adapter. An empty
// baseURL selects the public API endpoint.
func NewCloudflareService(baseURL string, client *http.Client) *CloudflareService {
	if baseURL == "" {
		baseURL = defaultCloudflareBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &CloudflareService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(10), 1),
	}
}

// Name returns the platform identifier.
func (c *CloudflareService) Name() string {
	return "cloudflare-stream"
}

// FetchPage lists Stream videos after the cursor's creation timestamp. The
// platform pages by creation time rather than a request count, so page sizes
// vary; enumeration is exhausted when a listing comes back empty or the
// cursor stops advancing.
func (c *CloudflareService) FetchPage(ctx context.Context, cred models.Credential, cursor *Cursor) (*Page, error) {
	if err := cursor.Check(c.Name()); err != nil {
		return nil, err
	}

	account := cred.Meta("account_id")
	if account == "" {
		return nil, fmt.Errorf("%w: account_id metadata is required", shared.ErrMissingCredentials)
	}

	after := ""
	if cursor != nil {
		after = string(cursor.Payload)
	}

	query := url.Values{"asc": {"true"}}
	if after != "" {
		query.Set("after", after)
	}

	var videos []CloudflareVideo
	endpoint := fmt.Sprintf("%s/accounts/%s/stream?%s", c.baseURL, url.PathEscape(account), query.Encode())
	if err := c.doJSON(ctx, cred, http.MethodGet, endpoint, &videos); err != nil {
		return nil, fmt.Errorf("failed to list stream videos: %w", err)
	}

	page := &Page{}
	for _, v := range videos {
		title := v.Meta.Name
		if title == "" {
			title = v.UID
		}
		page.Videos = append(page.Videos, models.Video{
			SourceID: v.UID,
			Title:    title,
			Location: account,
			Status:   models.StatusUnmigrated,
		})
	}

	if len(videos) == 0 {
		page.Exhausted = true
		return page, nil
	}

	next := videos[len(videos)-1].Created
	if next == "" || next == after {
		page.Exhausted = true
		return page, nil
	}

	page.Next = &Cursor{Kind: c.Name(), Payload: []byte(next)}
	return page, nil
}

// FetchVideo enables MP4 downloads for the video and returns the default
// download URL as the transient access URL.
func (c *CloudflareService) FetchVideo(ctx context.Context, cred models.Credential, ref VideoRef) (*models.Video, error) {
	account := cred.Meta("account_id")
	if account == "" {
		account = ref.Location
	}
	if account == "" {
		return nil, fmt.Errorf("%w: account_id metadata is required", shared.ErrMissingCredentials)
	}

	var download cloudflareDownload
	endpoint := fmt.Sprintf("%s/accounts/%s/stream/%s/downloads", c.baseURL, url.PathEscape(account), url.PathEscape(ref.SourceID))
	if err := c.doJSON(ctx, cred, http.MethodPost, endpoint, &download); err != nil {
		return nil, err
	}

	if download.Default.URL == "" {
		return nil, fmt.Errorf("%w: no download available for %s", shared.ErrNotFound, ref.SourceID)
	}

	return &models.Video{
		SourceID:  ref.SourceID,
		Title:     ref.SourceID,
		Location:  account,
		AccessURL: download.Default.URL,
		Status:    models.StatusUnmigrated,
	}, nil
}

// ValidateCredential verifies the API token against the token-verify
// endpoint, a read-only probe independent of any account resource.
func (c *CloudflareService) ValidateCredential(ctx context.Context, cred models.Credential) error {
	if cred.SecretKey == "" {
		return fmt.Errorf("%w: API token is required", shared.ErrMissingCredentials)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, cred, http.MethodGet, c.baseURL+"/user/tokens/verify", &result); err != nil {
		return err
	}

	if result.Status != "active" {
		return fmt.Errorf("%w: token status %q", shared.ErrInvalidCredentials, result.Status)
	}
	return nil
}

// doJSON executes one authenticated request and decodes the envelope's result.
func (c *CloudflareService) doJSON(ctx context.Context, cred models.Credential, method, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.SecretKey})
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), source)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status 404", shared.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", shared.ErrTransient, resp.StatusCode)
	}

	var envelope cloudflareEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !envelope.Success {
		message := "request rejected"
		if len(envelope.Errors) > 0 {
			message = envelope.Errors[0].Message
		}
		return fmt.Errorf("%w: %s", shared.ErrInvalidCredentials, message)
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
	}
	return nil
}
