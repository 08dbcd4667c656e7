package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

func s3Cred() models.Credential {
	return models.Credential{
		PublicKey: "AKIAEXAMPLE",
		SecretKey: "secret-access-key",
		Metadata:  map[string]string{"region": "us-east-1", "bucket": "media"},
	}
}

const objectPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult>
  <Contents><Key>clip.mp4</Key></Contents>
  <Contents><Key>clip_draft.mp4</Key></Contents>
  <Contents><Key>notes.txt</Key></Contents>
  <Contents><Key>intro.mov</Key></Contents>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>token-1</NextContinuationToken>
</ListBucketResult>`

const objectPageLast = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult>
  <Contents><Key>outro.mp4</Key></Contents>
  <IsTruncated>false</IsTruncated>
</ListBucketResult>`

func newS3TestServer(t *testing.T, handler http.HandlerFunc) (*S3Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service := NewS3Service(
		WithS3Endpoint(server.URL),
		WithS3HTTPClient(server.Client()),
	)
	return service, server
}

func TestS3FetchPage(t *testing.T) {
	var sawAuth, sawDate bool

	service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/") {
			sawAuth = true
		}
		if r.Header.Get("x-amz-date") != "" && r.Header.Get("x-amz-content-sha256") == s3EmptyPayloadHash {
			sawDate = true
		}

		if r.URL.Query().Get("list-type") != "2" {
			t.Errorf("expected list-type=2, got query %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("continuation-token") == "token-1" {
			w.Write([]byte(objectPageLast))
			return
		}
		w.Write([]byte(objectPage))
	})

	page, err := service.FetchPage(context.Background(), s3Cred(), nil)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if len(page.Videos) != 2 {
		t.Fatalf("expected 2 candidates after filtering, got %d: %+v", len(page.Videos), page.Videos)
	}
	if page.Videos[0].SourceID != "clip.mp4" || page.Videos[1].SourceID != "intro.mov" {
		t.Errorf("unexpected candidates: %+v", page.Videos)
	}
	if page.Videos[0].Location != "media" {
		t.Errorf("expected candidate pinned to its bucket, got %q", page.Videos[0].Location)
	}
	if page.Exhausted {
		t.Error("expected more pages while the listing is truncated")
	}
	if page.Next == nil || page.Next.Kind != "s3" || string(page.Next.Payload) != "token-1" {
		t.Fatalf("unexpected cursor: %+v", page.Next)
	}

	if !sawAuth {
		t.Error("expected SigV4 authorization header")
	}
	if !sawDate {
		t.Error("expected x-amz-date and empty payload hash headers")
	}

	second, err := service.FetchPage(context.Background(), s3Cred(), page.Next)
	if err != nil {
		t.Fatalf("second FetchPage failed: %v", err)
	}
	if !second.Exhausted {
		t.Error("expected enumeration to be exhausted")
	}
	if second.Next != nil {
		t.Errorf("expected nil cursor on exhaustion, got %+v", second.Next)
	}
	if len(second.Videos) != 1 || second.Videos[0].SourceID != "outro.mp4" {
		t.Errorf("unexpected final page candidates: %+v", second.Videos)
	}
}

func TestS3FetchPageRejectsForeignCursor(t *testing.T) {
	service := NewS3Service()
	cursor := &Cursor{Kind: "azure", Payload: []byte("container-marker")}

	_, err := service.FetchPage(context.Background(), s3Cred(), cursor)
	if !errors.Is(err, shared.ErrCursorMismatch) {
		t.Errorf("expected ErrCursorMismatch, got %v", err)
	}
}

func TestS3FetchPageRequiresBucket(t *testing.T) {
	service := NewS3Service()
	cred := s3Cred()
	cred.Metadata = map[string]string{"region": "us-east-1"}

	_, err := service.FetchPage(context.Background(), cred, nil)
	if !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestS3FetchVideo(t *testing.T) {
	t.Run("resolves filename variant", func(t *testing.T) {
		service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodHead {
				t.Errorf("expected HEAD probe, got %s", r.Method)
			}
			if r.URL.Path == "/media/clip.mp4" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		})

		video, err := service.FetchVideo(context.Background(), s3Cred(), VideoRef{SourceID: "clip", Location: "media"})
		if err != nil {
			t.Fatalf("FetchVideo failed: %v", err)
		}

		if video.Title != "clip.mp4" {
			t.Errorf("expected resolved variant clip.mp4, got %s", video.Title)
		}
		if !strings.Contains(video.AccessURL, "/media/clip.mp4?") {
			t.Errorf("expected access URL for resolved object, got %s", video.AccessURL)
		}
		for _, param := range []string{"X-Amz-Signature=", "X-Amz-Credential=", "X-Amz-Expires=86400", "X-Amz-Algorithm=AWS4-HMAC-SHA256"} {
			if !strings.Contains(video.AccessURL, param) {
				t.Errorf("access URL missing presign parameter %s: %s", param, video.AccessURL)
			}
		}
	})

	t.Run("falls back to configured bucket", func(t *testing.T) {
		service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/media/clip.mp4" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		})

		video, err := service.FetchVideo(context.Background(), s3Cred(), VideoRef{SourceID: "clip.mp4"})
		if err != nil {
			t.Fatalf("FetchVideo failed: %v", err)
		}
		if video.Location != "media" {
			t.Errorf("expected bucket from credential metadata, got %q", video.Location)
		}
	})

	t.Run("not found after all variants", func(t *testing.T) {
		service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := service.FetchVideo(context.Background(), s3Cred(), VideoRef{SourceID: "missing.mp4", Location: "media"})
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires a bucket", func(t *testing.T) {
		service := NewS3Service()
		cred := s3Cred()
		cred.Metadata = map[string]string{"region": "us-east-1"}

		_, err := service.FetchVideo(context.Background(), cred, VideoRef{SourceID: "clip.mp4"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestS3ValidateCredential(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodHead {
				t.Errorf("expected HEAD probe, got %s", r.Method)
			}
			w.WriteHeader(http.StatusOK)
		})

		if err := service.ValidateCredential(context.Background(), s3Cred()); err != nil {
			t.Errorf("expected valid credential, got %v", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		service, _ := newS3TestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		err := service.ValidateCredential(context.Background(), s3Cred())
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing key material", func(t *testing.T) {
		service := NewS3Service()

		err := service.ValidateCredential(context.Background(), models.Credential{PublicKey: "AKIAEXAMPLE"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("missing bucket metadata", func(t *testing.T) {
		service := NewS3Service()
		cred := s3Cred()
		cred.Metadata = map[string]string{"region": "us-east-1"}

		err := service.ValidateCredential(context.Background(), cred)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestSigV4Signing(t *testing.T) {
	t.Run("canonical query sorts keys and escapes spaces", func(t *testing.T) {
		query := url.Values{
			"list-type":          {"2"},
			"continuation-token": {"a token"},
		}

		got := canonicalQueryString(query)
		want := "continuation-token=a%20token&list-type=2"
		if got != want {
			t.Errorf("canonicalQueryString = %q, want %q", got, want)
		}
	})

	t.Run("signing key derivation is date scoped", func(t *testing.T) {
		day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

		key1 := s3SigningKey("secret", day1, "us-east-1")
		key2 := s3SigningKey("secret", day2, "us-east-1")
		if string(key1) == string(key2) {
			t.Error("expected distinct signing keys for distinct dates")
		}

		again := s3SigningKey("secret", day1, "us-east-1")
		if string(key1) != string(again) {
			t.Error("expected deterministic signing key for one date and region")
		}
	})

	t.Run("authorization carries credential scope", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "https://media.s3.us-east-1.amazonaws.com/?list-type=2", nil)
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		req.Header.Set("x-amz-date", now.Format("20060102T150405Z"))
		req.Header.Set("x-amz-content-sha256", s3EmptyPayloadHash)

		signSigV4(req, s3Cred(), now)

		auth := req.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20260101/us-east-1/s3/aws4_request, ") {
			t.Errorf("unexpected credential scope: %s", auth)
		}
		if !strings.Contains(auth, "SignedHeaders=host;x-amz-content-sha256;x-amz-date") {
			t.Errorf("unexpected signed headers: %s", auth)
		}
		if !strings.Contains(auth, "Signature=") {
			t.Errorf("expected a signature component: %s", auth)
		}
	})
}
