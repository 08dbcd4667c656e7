package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/shared"
)

// CredentialHandler validates submitted source-platform credentials with a
// live read-only probe before they are used for a migration.
type CredentialHandler struct {
	registry *providers.Registry
	timeout  time.Duration
	logger   *log.Logger
}

// NewCredentialHandler creates the credential validation endpoint.
func NewCredentialHandler(registry *providers.Registry, logger *log.Logger) *CredentialHandler {
	return &CredentialHandler{registry: registry, timeout: 15 * time.Second, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *CredentialHandler) Routes() []string {
	return []string{"POST /credentials"}
}

// credentialRequest is the validation request body.
type credentialRequest struct {
	Platform  string            `json:"platform"`
	PublicKey string            `json:"publicKey"`
	SecretKey string            `json:"secretKey"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ServeHTTP validates one credential submission.
func (h *CredentialHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Ok: false, Message: "malformed request body"})
		return
	}

	provider, err := h.registry.Get(req.Platform)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Ok: false, Message: "unknown platform: " + req.Platform})
		return
	}

	credential := models.Credential{
		PublicKey: req.PublicKey,
		SecretKey: req.SecretKey,
		Metadata:  req.Metadata,
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := provider.ValidateCredential(ctx, credential); err != nil {
		h.logger.Warn("credential validation failed", "platform", req.Platform, "error", err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, shared.ErrTransient) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, ackResponse{Ok: false, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{Ok: true})
}
