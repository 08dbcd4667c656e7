// package providers defines interface Provider for enumerating and resolving
// video assets on source hosting platforms
//
// Azure Blob Storage, Cloudflare Stream, api.video
package providers

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// Provider defines the capability set every source platform adapter implements.
//
// The migration coordinator depends only on this interface, never on a
// concrete platform. Two variants exist: object-storage adapters enumerate a
// container hierarchy and sign their own access URLs, while video-API adapters
// enumerate a platform-managed corpus that already carries download URLs.
type Provider interface {
	// FetchPage returns the next page of candidate videos. A nil cursor starts
	// enumeration from the beginning; the returned page carries the cursor for
	// the following call and reports when the catalog is exhausted. Page sizes
	// are platform-defined and not uniform; the only contract is monotonic
	// progress toward exhaustion.
	FetchPage(ctx context.Context, cred models.Credential, cursor *Cursor) (*Page, error)

	// FetchVideo resolves a transient, time-limited access URL for one video.
	// Platform-specific filename variants are tried in a fixed order before the
	// lookup fails with [shared.ErrNotFound].
	FetchVideo(ctx context.Context, cred models.Credential, ref VideoRef) (*models.Video, error)

	// ValidateCredential performs a lightweight read-only probe of the
	// credential, distinct from full enumeration. Returns
	// [shared.ErrInvalidCredentials] when the platform rejects it.
	ValidateCredential(ctx context.Context, cred models.Credential) error

	// Name returns the platform identifier (e.g. "azure", "cloudflare-stream").
	Name() string
}

// Cursor is an opaque pagination continuation token.
//
// Kind tags the owning platform so an adapter can reject tokens minted by a
// different one; Payload is adapter-defined and never interpreted by callers.
type Cursor struct {
	Kind    string
	Payload []byte
}

// Check verifies the cursor was minted by the named platform. A nil cursor is
// valid for any platform and starts enumeration from the beginning.
func (c *Cursor) Check(platform string) error {
	if c == nil {
		return nil
	}
	if c.Kind != platform {
		return fmt.Errorf("%w: have %q, want %q", shared.ErrCursorMismatch, c.Kind, platform)
	}
	return nil
}

// Page is the result of one FetchPage call.
type Page struct {
	Videos    []models.Video // candidates in discovery order
	Next      *Cursor        // cursor for the following call; nil once exhausted
	Exhausted bool
}

// VideoRef identifies one video on its source platform for URL resolution.
type VideoRef struct {
	SourceID string
	Location string // container, bucket, or account marker; empty for video-API platforms
}

// videoExtensions is the file-extension allowlist object-storage adapters
// apply during enumeration.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

// LooksLikeVideo applies the object-storage candidate filter: the name must
// carry an allowlisted extension and must not contain an underscore, which the
// source treats as a marker for already-derived artifacts (renditions,
// drafts, thumbnails).
func LooksLikeVideo(name string) bool {
	if name == "" || strings.Contains(name, "_") {
		return false
	}
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

// Registry maps platform identifiers to their adapters.
//
// Registries are populated once at startup and hold no mutable state beyond
// the initial registration; lookups are read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry containing the given providers, keyed by
// [Provider.Name].
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter for the given platform identifier.
func (r *Registry) Get(platform string) (Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, platform)
	}
	return p, nil
}

// Names returns the registered platform identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
