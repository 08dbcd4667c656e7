// Azure Blob Storage implementation of [Provider]
//
// Talks to the Blob service REST API directly: SharedKey request signing for
// listing, service SAS generation for read access. Reference:
// https://learn.microsoft.com/en-us/rest/api/storageservices/
package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	azureAPIVersion       = "2021-08-06"
	azureContainerPageMax = 25
	azureBlobPageMax      = 100
	azureSASLifetime      = 24 * time.Hour
)

// containerListing mirrors the List Containers response body.
type containerListing struct {
	XMLName    xml.Name `xml:"EnumerationResults"`
	Containers []struct {
		Name string `xml:"Name"`
	} `xml:"Containers>Container"`
	NextMarker string `xml:"NextMarker"`
}

// blobListing mirrors the List Blobs response body.
type blobListing struct {
	XMLName xml.Name `xml:"EnumerationResults"`
	Blobs   []struct {
		Name string `xml:"Name"`
	} `xml:"Blobs>Blob"`
	NextMarker string `xml:"NextMarker"`
}

// AzureService implements [Provider] against Azure Blob Storage.
//
// Credentials: PublicKey is the storage account name, SecretKey the base64
// shared account key. The metadata bag may carry "container" to pin
// validation and URL resolution to one container.
type AzureService struct {
	endpoint       string // overrides the per-account endpoint when set (tests)
	httpClient     *http.Client
	limiter        *rate.Limiter
	resolveTimeout time.Duration
}

// AzureOption customizes an AzureService.
type AzureOption func(*AzureService)

// WithAzureEndpoint overrides the storage endpoint, bypassing the
// https://{account}.blob.core.windows.net default.
func WithAzureEndpoint(endpoint string) AzureOption {
	return func(a *AzureService) { a.endpoint = strings.TrimSuffix(endpoint, "/") }
}

// WithAzureHTTPClient overrides the HTTP client.
func WithAzureHTTPClient(client *http.Client) AzureOption {
	return func(a *AzureService) { a.httpClient = client }
}

// NewAzureService creates a new Azure Blob Storage adapter.
func NewAzureService(opts ...AzureOption) *AzureService {
	a := &AzureService{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(10), 1),
		resolveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the platform identifier.
func (a *AzureService) Name() string {
	return "azure"
}

func (a *AzureService) baseURL(cred models.Credential) string {
	if a.endpoint != "" {
		return a.endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", cred.PublicKey)
}

// FetchPage lists one page of containers (at most 25) and fully drains every
// blob page (at most 100 per request) inside each before advancing.
//
// The returned cursor is the container continuation marker only: a crash
// mid-drain restarts the current container page from its beginning on retry,
// and an absent container marker terminates enumeration even if blob markers
// notionally remain unread.
func (a *AzureService) FetchPage(ctx context.Context, cred models.Credential, cursor *Cursor) (*Page, error) {
	if err := cursor.Check(a.Name()); err != nil {
		return nil, err
	}

	marker := ""
	if cursor != nil {
		marker = string(cursor.Payload)
	}

	containers, err := a.listContainers(ctx, cred, marker)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	for _, container := range containers.Containers {
		blobMarker := ""
		for {
			blobs, err := a.listBlobs(ctx, cred, container.Name, blobMarker)
			if err != nil {
				return nil, err
			}

			for _, blob := range blobs.Blobs {
				if !LooksLikeVideo(blob.Name) {
					continue
				}
				page.Videos = append(page.Videos, models.Video{
					SourceID: blob.Name,
					Title:    blob.Name,
					Location: container.Name,
					Status:   models.StatusUnmigrated,
				})
			}

			if blobs.NextMarker == "" {
				break
			}
			blobMarker = blobs.NextMarker
		}
	}

	if containers.NextMarker == "" {
		page.Exhausted = true
		return page, nil
	}

	page.Next = &Cursor{Kind: a.Name(), Payload: []byte(containers.NextMarker)}
	return page, nil
}

// FetchVideo resolves a read-only SAS URL for the blob. Filename variants are
// tried in a fixed order: the exact name first, then the stem with ".mp4" and
// ".mov" appended, short-circuiting on the first blob that exists.
func (a *AzureService) FetchVideo(ctx context.Context, cred models.Credential, ref VideoRef) (*models.Video, error) {
	container := ref.Location
	if container == "" {
		container = cred.Meta("container")
	}
	if container == "" {
		return nil, fmt.Errorf("%w: no container for blob %s", shared.ErrInvalidInput, ref.SourceID)
	}

	for _, name := range blobNameVariants(ref.SourceID) {
		attemptCtx, cancel := context.WithTimeout(ctx, a.resolveTimeout)
		exists, err := a.blobExists(attemptCtx, cred, container, name)
		cancel()
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		accessURL, err := a.sasURL(cred, container, name)
		if err != nil {
			return nil, err
		}

		return &models.Video{
			SourceID:  ref.SourceID,
			Title:     name,
			Location:  container,
			AccessURL: accessURL,
			Status:    models.StatusUnmigrated,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, container, ref.SourceID)
}

// ValidateCredential probes the configured container (falling back to the
// account's container listing when none is configured) without mutating any
// source-platform state.
func (a *AzureService) ValidateCredential(ctx context.Context, cred models.Credential) error {
	if cred.PublicKey == "" || cred.SecretKey == "" {
		return fmt.Errorf("%w: account name and key are required", shared.ErrMissingCredentials)
	}

	query := url.Values{"comp": {"list"}, "maxresults": {"1"}}
	target := a.baseURL(cred) + "/?" + query.Encode()
	if container := cred.Meta("container"); container != "" {
		query = url.Values{"restype": {"container"}}
		target = a.baseURL(cred) + "/" + container + "?" + query.Encode()
	}

	resp, err := a.do(ctx, cred, http.MethodGet, target)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: storage account rejected probe (status %d)", shared.ErrInvalidCredentials, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", shared.ErrTransient, resp.StatusCode)
	}
}

// blobNameVariants returns the candidate blob names in resolution order.
func blobNameVariants(name string) []string {
	variants := []string{name}
	stem := strings.TrimSuffix(name, ext(name))
	for _, suffix := range []string{".mp4", ".mov"} {
		candidate := stem + suffix
		if candidate != name {
			variants = append(variants, candidate)
		}
	}
	return variants
}

func ext(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func (a *AzureService) listContainers(ctx context.Context, cred models.Credential, marker string) (*containerListing, error) {
	query := url.Values{
		"comp":       {"list"},
		"maxresults": {fmt.Sprintf("%d", azureContainerPageMax)},
	}
	if marker != "" {
		query.Set("marker", marker)
	}

	var listing containerListing
	if err := a.getXML(ctx, cred, a.baseURL(cred)+"/?"+query.Encode(), &listing); err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return &listing, nil
}

func (a *AzureService) listBlobs(ctx context.Context, cred models.Credential, container, marker string) (*blobListing, error) {
	query := url.Values{
		"restype":    {"container"},
		"comp":       {"list"},
		"maxresults": {fmt.Sprintf("%d", azureBlobPageMax)},
	}
	if marker != "" {
		query.Set("marker", marker)
	}

	var listing blobListing
	if err := a.getXML(ctx, cred, a.baseURL(cred)+"/"+container+"?"+query.Encode(), &listing); err != nil {
		return nil, fmt.Errorf("failed to list blobs in %s: %w", container, err)
	}
	return &listing, nil
}

func (a *AzureService) blobExists(ctx context.Context, cred models.Credential, container, blob string) (bool, error) {
	target := a.baseURL(cred) + "/" + container + "/" + url.PathEscape(blob)

	resp, err := a.do(ctx, cred, http.MethodHead, target)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	default:
		return false, fmt.Errorf("%w: unexpected status %d", shared.ErrTransient, resp.StatusCode)
	}
}

func (a *AzureService) getXML(ctx context.Context, cred models.Credential, target string, out any) error {
	resp, err := a.do(ctx, cred, http.MethodGet, target)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrTransient, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrTransient, resp.StatusCode)
	}

	// The service prefixes responses with a UTF-8 BOM, which encoding/xml rejects.
	body = []byte(strings.TrimPrefix(string(body), "\uFEFF"))
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse listing: %w", err)
	}
	return nil
}

// do signs and executes one request against the Blob service.
func (a *AzureService) do(ctx context.Context, cred models.Credential, method, target string) (*http.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-version", azureAPIVersion)

	if err := signSharedKey(req, cred.PublicKey, cred.SecretKey); err != nil {
		return nil, err
	}

	return a.httpClient.Do(req)
}

// signSharedKey sets the SharedKey Authorization header for the request.
func signSharedKey(req *http.Request, account, key string) error {
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("%w: account key is not valid base64", shared.ErrInvalidCredentials)
	}

	mac := hmac.New(sha256.New, decoded)
	mac.Write([]byte(sharedKeyStringToSign(req, account)))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", fmt.Sprintf("SharedKey %s:%s", account, signature))
	return nil
}

// sharedKeyStringToSign builds the canonical string for SharedKey signing.
func sharedKeyStringToSign(req *http.Request, account string) string {
	contentLength := ""
	if req.ContentLength > 0 {
		contentLength = fmt.Sprintf("%d", req.ContentLength)
	}

	fields := []string{
		req.Method,
		req.Header.Get("Content-Encoding"),
		req.Header.Get("Content-Language"),
		contentLength,
		req.Header.Get("Content-MD5"),
		req.Header.Get("Content-Type"),
		"", // Date is carried in x-ms-date instead
		req.Header.Get("If-Modified-Since"),
		req.Header.Get("If-Match"),
		req.Header.Get("If-None-Match"),
		req.Header.Get("If-Unmodified-Since"),
		req.Header.Get("Range"),
	}

	return strings.Join(fields, "\n") + "\n" + canonicalizedHeaders(req) + canonicalizedResource(req, account)
}

// canonicalizedHeaders renders the x-ms-* headers sorted by name.
func canonicalizedHeaders(req *http.Request) string {
	var names []string
	for name := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-ms-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString(":")
		sb.WriteString(strings.TrimSpace(req.Header.Get(name)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// canonicalizedResource renders the account-qualified path plus sorted query parameters.
func canonicalizedResource(req *http.Request, account string) string {
	var sb strings.Builder
	sb.WriteString("/")
	sb.WriteString(account)
	sb.WriteString(req.URL.EscapedPath())

	query := req.URL.Query()
	var keys []string
	for key := range query {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := query[key]
		sort.Strings(values)
		sb.WriteString("\n")
		sb.WriteString(key)
		sb.WriteString(":")
		sb.WriteString(strings.Join(values, ","))
	}
	return sb.String()
}

// sasURL generates a read-only service SAS URL for the blob, valid for
// [azureSASLifetime] from now.
func (a *AzureService) sasURL(cred models.Credential, container, blob string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cred.SecretKey)
	if err != nil {
		return "", fmt.Errorf("%w: account key is not valid base64", shared.ErrInvalidCredentials)
	}

	start := time.Now().UTC().Add(-5 * time.Minute)
	expiry := time.Now().UTC().Add(azureSASLifetime)
	startStr := start.Format("2006-01-02T15:04:05Z")
	expiryStr := expiry.Format("2006-01-02T15:04:05Z")

	// Field order is fixed by the service SAS definition for this API version.
	stringToSign := strings.Join([]string{
		"r",      // signedPermissions
		startStr, // signedStart
		expiryStr,
		fmt.Sprintf("/blob/%s/%s/%s", cred.PublicKey, container, blob),
		"",           // signedIdentifier
		"",           // signedIP
		"https,http", // signedProtocol
		azureAPIVersion,
		"b", // signedResource
		"",  // signedSnapshotTime
		"",  // signedEncryptionScope
		"",  // rscc
		"",  // rscd
		"",  // rsce
		"",  // rscl
		"",  // rsct
	}, "\n")

	mac := hmac.New(sha256.New, decoded)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	query := url.Values{
		"sv":  {azureAPIVersion},
		"sp":  {"r"},
		"st":  {startStr},
		"se":  {expiryStr},
		"sr":  {"b"},
		"spr": {"https,http"},
		"sig": {signature},
	}

	return fmt.Sprintf("%s/%s/%s?%s", a.baseURL(cred), container, url.PathEscape(blob), query.Encode()), nil
}
