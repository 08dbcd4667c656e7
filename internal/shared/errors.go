package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrUnknownEnvironment = fmt.Errorf("unknown environment")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Provider errors
	ErrUnknownPlatform = fmt.Errorf("unknown platform")
	ErrNotFound        = fmt.Errorf("video not found on source platform")
	ErrTransient       = fmt.Errorf("transient provider error")
	ErrCursorMismatch  = fmt.Errorf("cursor belongs to a different platform")

	// Pipeline errors
	ErrJobNotFound         = fmt.Errorf("job not found")
	ErrVideoNotFound       = fmt.Errorf("video record not found")
	ErrCorrelationMismatch = fmt.Errorf("webhook payload has no correlation data")

	// Destination errors
	ErrIngestRequest = fmt.Errorf("ingest API request failed")

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
)
