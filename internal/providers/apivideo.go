// api.video implementation of [Provider]
//
// API reference: https://docs.api.video/reference/api/Videos
package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultAPIVideoBaseURL = "https://ws.api.video"
	apiVideoPageSize       = 25
)

// APIVideoAsset mirrors the asset URLs attached to an api.video video.
type APIVideoAsset struct {
	MP4       string `json:"mp4"`
	HLS       string `json:"hls"`
	Player    string `json:"player"`
	Thumbnail string `json:"thumbnail"`
}

// APIVideoVideo represents one video in api.video responses.
type APIVideoVideo struct {
	VideoID string        `json:"videoId"`
	Title   string        `json:"title"`
	Assets  APIVideoAsset `json:"assets"`
}

// apiVideoListing is the paginated list response.
type apiVideoListing struct {
	Data       []APIVideoVideo `json:"data"`
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		PagesTotal  int `json:"pagesTotal"`
		ItemsTotal  int `json:"itemsTotal"`
	} `json:"pagination"`
}

// APIVideoService implements [Provider] against api.video.
//
// Credentials: SecretKey is the API key, sent as HTTP basic auth. The
// platform manages its own corpus, so there is no storage hierarchy and
// enumeration needs no filename filter.
type APIVideoService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPIVideoService creates a new api.video adapter. An empty baseURL
// selects the public API endpoint.
func NewAPIVideoService(baseURL string, client *http.Client) *APIVideoService {
	if baseURL == "" {
		baseURL = defaultAPIVideoBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &APIVideoService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(10), 1),
	}
}

// Name returns the platform identifier.
func (s *APIVideoService) Name() string {
	return "api-video"
}

// FetchPage lists one page of the account's videos. The cursor payload is the
// one-based page number; enumeration is exhausted once the reported total
// page count is reached.
func (s *APIVideoService) FetchPage(ctx context.Context, cred models.Credential, cursor *Cursor) (*Page, error) {
	if err := cursor.Check(s.Name()); err != nil {
		return nil, err
	}

	currentPage := 1
	if cursor != nil {
		page, err := strconv.Atoi(string(cursor.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed page cursor", shared.ErrCursorMismatch)
		}
		currentPage = page
	}

	query := url.Values{
		"currentPage": {strconv.Itoa(currentPage)},
		"pageSize":    {strconv.Itoa(apiVideoPageSize)},
	}

	var listing apiVideoListing
	if err := s.doJSON(ctx, cred, s.baseURL+"/videos?"+query.Encode(), &listing); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	page := &Page{}
	for _, v := range listing.Data {
		title := v.Title
		if title == "" {
			title = v.VideoID
		}
		page.Videos = append(page.Videos, models.Video{
			SourceID: v.VideoID,
			Title:    title,
			Status:   models.StatusUnmigrated,
		})
	}

	if listing.Pagination.PagesTotal == 0 || currentPage >= listing.Pagination.PagesTotal {
		page.Exhausted = true
		return page, nil
	}

	page.Next = &Cursor{Kind: s.Name(), Payload: []byte(strconv.Itoa(currentPage + 1))}
	return page, nil
}

// FetchVideo returns the video's source MP4 URL as the transient access URL.
func (s *APIVideoService) FetchVideo(ctx context.Context, cred models.Credential, ref VideoRef) (*models.Video, error) {
	var video APIVideoVideo
	endpoint := s.baseURL + "/videos/" + url.PathEscape(ref.SourceID)
	if err := s.doJSON(ctx, cred, endpoint, &video); err != nil {
		return nil, err
	}

	if video.Assets.MP4 == "" {
		return nil, fmt.Errorf("%w: no MP4 asset for %s", shared.ErrNotFound, ref.SourceID)
	}

	title := video.Title
	if title == "" {
		title = video.VideoID
	}

	return &models.Video{
		SourceID:     video.VideoID,
		Title:        title,
		AccessURL:    video.Assets.MP4,
		ThumbnailURL: video.Assets.Thumbnail,
		Status:       models.StatusUnmigrated,
	}, nil
}

// ValidateCredential lists a single video as a read-only probe of the API key.
func (s *APIVideoService) ValidateCredential(ctx context.Context, cred models.Credential) error {
	if cred.SecretKey == "" {
		return fmt.Errorf("%w: API key is required", shared.ErrMissingCredentials)
	}

	var listing apiVideoListing
	return s.doJSON(ctx, cred, s.baseURL+"/videos?pageSize=1", &listing)
}

func (s *APIVideoService) doJSON(ctx context.Context, cred models.Credential, endpoint string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// api.video accepts the API key as the basic auth username with an empty password.
	auth := base64.StdEncoding.EncodeToString([]byte(cred.SecretKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
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
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
