// Amazon S3 implementation of [Provider]
//
// Talks to the S3 REST API directly: SigV4 header signing for listing and
// existence checks, SigV4 query presigning for read access. Reference:
// https://docs.aws.amazon.com/AmazonS3/latest/API/sig-v4-authenticating-requests.html
package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
	s3Algorithm       = "AWS4-HMAC-SHA256"
	s3ObjectPageMax   = 1000
	s3PresignLifetime = 24 * time.Hour

	// SHA-256 of an empty body; every request this adapter signs is bodiless.
	s3EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// objectListing mirrors the ListObjectsV2 response body.
type objectListing struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
}

// S3Service implements [Provider] against Amazon S3.
//
// Credentials: PublicKey is the access key id, SecretKey the secret access
// key. The metadata bag must carry "region" and "bucket"; an S3 account
// marker scopes one bucket, unlike the Azure adapter's account-wide listing.
type S3Service struct {
	endpoint       string // overrides the virtual-hosted bucket endpoint when set (tests)
	httpClient     *http.Client
	limiter        *rate.Limiter
	resolveTimeout time.Duration
}

// S3Option customizes an S3Service.
type S3Option func(*S3Service)

// WithS3Endpoint overrides the storage endpoint with a path-style target,
// bypassing the https://{bucket}.s3.{region}.amazonaws.com default.
func WithS3Endpoint(endpoint string) S3Option {
	return func(s *S3Service) { s.endpoint = strings.TrimSuffix(endpoint, "/") }
}

// WithS3HTTPClient overrides the HTTP client.
func WithS3HTTPClient(client *http.Client) S3Option {
	return func(s *S3Service) { s.httpClient = client }
}

// NewS3Service creates a new Amazon S3 adapter.
func NewS3Service(opts ...S3Option) *S3Service {
	s := &S3Service{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(10), 1),
		resolveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the platform identifier.
func (s *S3Service) Name() string {
	return "s3"
}

func (s *S3Service) baseURL(cred models.Credential, bucket string) string {
	if s.endpoint != "" {
		return s.endpoint + "/" + bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, cred.Meta("region"))
}

// FetchPage lists one page of objects (at most 1000) from the configured
// bucket. The cursor is the service's opaque continuation token; buckets are
// flat, so unlike the Azure adapter there is no inner pagination to drain.
func (s *S3Service) FetchPage(ctx context.Context, cred models.Credential, cursor *Cursor) (*Page, error) {
	if err := cursor.Check(s.Name()); err != nil {
		return nil, err
	}

	bucket := cred.Meta("bucket")
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket metadata is required", shared.ErrMissingCredentials)
	}

	query := url.Values{
		"list-type": {"2"},
		"max-keys":  {fmt.Sprintf("%d", s3ObjectPageMax)},
	}
	if cursor != nil {
		query.Set("continuation-token", string(cursor.Payload))
	}

	var listing objectListing
	if err := s.getXML(ctx, cred, s.baseURL(cred, bucket)+"/?"+query.Encode(), &listing); err != nil {
		return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
	}

	page := &Page{}
	for _, object := range listing.Contents {
		if !LooksLikeVideo(object.Key) {
			continue
		}
		page.Videos = append(page.Videos, models.Video{
			SourceID: object.Key,
			Title:    object.Key,
			Location: bucket,
			Status:   models.StatusUnmigrated,
		})
	}

	if !listing.IsTruncated || listing.NextContinuationToken == "" {
		page.Exhausted = true
		return page, nil
	}

	page.Next = &Cursor{Kind: s.Name(), Payload: []byte(listing.NextContinuationToken)}
	return page, nil
}

// FetchVideo resolves a presigned GET URL for the object. Key variants are
// tried in the same fixed order as the Azure adapter: the exact key first,
// then the stem with ".mp4" and ".mov" appended.
func (s *S3Service) FetchVideo(ctx context.Context, cred models.Credential, ref VideoRef) (*models.Video, error) {
	bucket := ref.Location
	if bucket == "" {
		bucket = cred.Meta("bucket")
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: no bucket for object %s", shared.ErrInvalidInput, ref.SourceID)
	}

	for _, key := range blobNameVariants(ref.SourceID) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
		exists, err := s.objectExists(attemptCtx, cred, bucket, key)
		cancel()
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		accessURL, err := s.presignURL(cred, bucket, key)
		if err != nil {
			return nil, err
		}

		return &models.Video{
			SourceID:  ref.SourceID,
			Title:     key,
			Location:  bucket,
			AccessURL: accessURL,
			Status:    models.StatusUnmigrated,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, bucket, ref.SourceID)
}

// ValidateCredential probes the configured bucket with a HeadBucket request,
// the same read-only check the credential endpoint expects per platform.
func (s *S3Service) ValidateCredential(ctx context.Context, cred models.Credential) error {
	if cred.PublicKey == "" || cred.SecretKey == "" {
		return fmt.Errorf("%w: access key id and secret access key are required", shared.ErrMissingCredentials)
	}
	if cred.Meta("region") == "" || cred.Meta("bucket") == "" {
		return fmt.Errorf("%w: region and bucket metadata are required", shared.ErrMissingCredentials)
	}

	resp, err := s.do(ctx, cred, http.MethodHead, s.baseURL(cred, cred.Meta("bucket"))+"/")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMovedPermanently:
		return fmt.Errorf("%w: bucket rejected probe (status %d)", shared.ErrInvalidCredentials, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", shared.ErrTransient, resp.StatusCode)
	}
}

func (s *S3Service) objectExists(ctx context.Context, cred models.Credential, bucket, key string) (bool, error) {
	target := s.baseURL(cred, bucket) + "/" + url.PathEscape(key)

	resp, err := s.do(ctx, cred, http.MethodHead, target)
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

func (s *S3Service) getXML(ctx context.Context, cred models.Credential, target string, out any) error {
	resp, err := s.do(ctx, cred, http.MethodGet, target)
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

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse listing: %w", err)
	}
	return nil
}

// do signs and executes one request against the S3 service.
func (s *S3Service) do(ctx context.Context, cred models.Credential, method, target string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	now := time.Now().UTC()
	req.Header.Set("x-amz-date", now.Format("20060102T150405Z"))
	req.Header.Set("x-amz-content-sha256", s3EmptyPayloadHash)
	signSigV4(req, cred, now)

	return s.httpClient.Do(req)
}

// signSigV4 sets the SigV4 Authorization header for a bodiless request.
func signSigV4(req *http.Request, cred models.Credential, now time.Time) {
	region := cred.Meta("region")
	amzDate := now.Format("20060102T150405Z")
	scope := now.Format("20060102") + "/" + region + "/s3/aws4_request"

	canonicalHeaders := "host:" + req.URL.Host + "\n" +
		"x-amz-content-sha256:" + s3EmptyPayloadHash + "\n" +
		"x-amz-date:" + amzDate + "\n"
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQueryString(req.URL.Query()),
		canonicalHeaders,
		signedHeaders,
		s3EmptyPayloadHash,
	}, "\n")

	stringToSign := strings.Join([]string{
		s3Algorithm,
		amzDate,
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s3SigningKey(cred.SecretKey, now, region), stringToSign))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s3Algorithm, cred.PublicKey, scope, signedHeaders, signature))
}

// presignURL generates a read-only presigned GET URL for the object, valid
// for [s3PresignLifetime] from now.
func (s *S3Service) presignURL(cred models.Credential, bucket, key string) (string, error) {
	target, err := url.Parse(s.baseURL(cred, bucket) + "/" + url.PathEscape(key))
	if err != nil {
		return "", fmt.Errorf("failed to build object url: %w", err)
	}

	now := time.Now().UTC()
	region := cred.Meta("region")
	amzDate := now.Format("20060102T150405Z")
	scope := now.Format("20060102") + "/" + region + "/s3/aws4_request"

	query := url.Values{
		"X-Amz-Algorithm":     {s3Algorithm},
		"X-Amz-Credential":    {cred.PublicKey + "/" + scope},
		"X-Amz-Date":          {amzDate},
		"X-Amz-Expires":       {fmt.Sprintf("%d", int(s3PresignLifetime.Seconds()))},
		"X-Amz-SignedHeaders": {"host"},
	}

	canonicalRequest := strings.Join([]string{
		http.MethodGet,
		canonicalURI(target),
		canonicalQueryString(query),
		"host:" + target.Host + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	stringToSign := strings.Join([]string{
		s3Algorithm,
		amzDate,
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s3SigningKey(cred.SecretKey, now, region), stringToSign))
	query.Set("X-Amz-Signature", signature)

	target.RawQuery = query.Encode()
	return target.String(), nil
}

// s3SigningKey derives the date-scoped signing key from the secret access key.
func s3SigningKey(secret string, now time.Time, region string) []byte {
	key := []byte("AWS4" + secret)
	for _, part := range []string{now.Format("20060102"), region, "s3", "aws4_request"} {
		key = hmacSHA256(key, part)
	}
	return key
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func canonicalURI(u *url.URL) string {
	if u.EscapedPath() == "" {
		return "/"
	}
	return u.EscapedPath()
}

// canonicalQueryString renders query parameters sorted by key with the
// percent-encoding SigV4 requires (spaces as %20, never +).
func canonicalQueryString(query url.Values) string {
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var pairs []string
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			pairs = append(pairs, sigv4Escape(key)+"="+sigv4Escape(value))
		}
	}
	return strings.Join(pairs, "&")
}

func sigv4Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
