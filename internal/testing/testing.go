// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/providers"
)

// MockProvider is a scripted test double for [providers.Provider].
//
// Pages are returned in order on successive FetchPage calls; Videos maps
// source IDs to resolved records for FetchVideo.
type MockProvider struct {
	PlatformName string
	Pages        []*providers.Page
	PageErr      error
	Videos       map[string]*models.Video
	FetchErr     error
	ValidateErr  error

	mu        sync.Mutex
	pageCalls int
}

func (m *MockProvider) Name() string {
	if m.PlatformName == "" {
		return "mock"
	}
	return m.PlatformName
}

func (m *MockProvider) FetchPage(ctx context.Context, cred models.Credential, cursor *providers.Cursor) (*providers.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PageErr != nil {
		return nil, m.PageErr
	}
	if m.pageCalls >= len(m.Pages) {
		return &providers.Page{Exhausted: true}, nil
	}
	page := m.Pages[m.pageCalls]
	m.pageCalls++
	return page, nil
}

func (m *MockProvider) FetchVideo(ctx context.Context, cred models.Credential, ref providers.VideoRef) (*models.Video, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	video, ok := m.Videos[ref.SourceID]
	if !ok {
		return nil, errors.New("unexpected source id: " + ref.SourceID)
	}
	return video, nil
}

func (m *MockProvider) ValidateCredential(ctx context.Context, cred models.Credential) error {
	return m.ValidateErr
}

// PageCalls reports how many times FetchPage was invoked.
func (m *MockProvider) PageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// SequenceRoundTripper replays a fixed sequence of responses, one per
// request, and records the requests it saw.
type SequenceRoundTripper struct {
	mu        sync.Mutex
	responses []*http.Response
	errs      []error
	Requests  []*http.Request
}

func NewSequenceRoundTripper() *SequenceRoundTripper {
	return &SequenceRoundTripper{}
}

// Push appends a response (or error) to the replay sequence.
func (s *SequenceRoundTripper) Push(r *http.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	s.errs = append(s.errs, err)
}

func (s *SequenceRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response for request: " + req.URL.String())
	}
	resp, err := s.responses[0], s.errs[0]
	s.responses = s.responses[1:]
	s.errs = s.errs[1:]
	return resp, err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
