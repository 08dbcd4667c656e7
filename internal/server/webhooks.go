package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// VideoStore is the subset of the video repository the webhook correlator
// needs to settle callback events.
type VideoStore interface {
	Get(environment, sourceID string) (*models.Video, error)
	Finalize(environment, sourceID, assetID, playbackID, streamingURL, thumbnailURL string) error
	MarkFailed(environment, sourceID string) error
}

// Tracker appends per-video status reports to the job ledger.
type Tracker interface {
	Report(report models.Report) error
}

// WebhookHandler correlates asynchronous callback events from the destination
// platform back to migration records.
//
// Correlation relies entirely on the passthrough payload echoed in each event;
// events without a decodable passthrough are acknowledged and dropped so the
// sender does not redeliver them. Delivery is at-least-once, so every branch
// must tolerate replays.
type WebhookHandler struct {
	videos     VideoStore
	tracker    Tracker
	streamHost string
	imageHost  string
	logger     *log.Logger
}

// NewWebhookHandler creates the callback correlator. The stream and image
// hosts are used to derive playback URLs when an asset becomes ready.
func NewWebhookHandler(videos VideoStore, tracker Tracker, streamHost, imageHost string, logger *log.Logger) *WebhookHandler {
	return &WebhookHandler{
		videos:     videos,
		tracker:    tracker,
		streamHost: streamHost,
		imageHost:  imageHost,
		logger:     logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *WebhookHandler) Routes() []string {
	return []string{"POST /webhooks/ingest"}
}

// ackResponse is the webhook acknowledgement body. Ok reports whether the
// event was correlated; the sender treats any 2xx as delivered either way.
type ackResponse struct {
	Ok      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ServeHTTP handles one callback event.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var event ingest.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, ackResponse{Ok: false, Message: "malformed event body"})
		return
	}

	passthrough, err := models.DecodePassthrough(event.Data.Passthrough)
	if err != nil {
		// Uncorrelatable events are acknowledged so the sender stops
		// redelivering something we can never settle.
		h.logger.Warn("dropping uncorrelatable event", "type", event.Type, "asset", event.Data.ID, "error", err)
		writeJSON(w, http.StatusOK, ackResponse{Ok: false, Message: "missing correlation payload"})
		return
	}

	switch event.Type {
	case ingest.EventAssetCreated:
		h.handleCreated(passthrough, event.Data)
	case ingest.EventAssetErrored:
		h.handleErrored(passthrough, event.Data)
	case ingest.EventAssetReady:
		if err := h.handleReady(passthrough, event.Data); err != nil {
			h.logger.Error("failed to finalize asset", "asset", event.Data.ID, "video", passthrough.SourceVideoID, "error", err)
			writeJSON(w, http.StatusInternalServerError, ackResponse{Ok: false, Message: "finalize failed"})
			return
		}
	default:
		h.logger.Debug("ignoring event", "type", event.Type, "asset", event.Data.ID)
	}

	writeJSON(w, http.StatusOK, ackResponse{Ok: true})
}

// handleCreated records encoding progress. The asset exists at the
// destination but is not yet playable, so no durable state changes.
func (h *WebhookHandler) handleCreated(p *models.Passthrough, data ingest.CallbackData) {
	h.report(p, models.StatusInProgress, 50, "")
}

// handleErrored settles the video as failed.
func (h *WebhookHandler) handleErrored(p *models.Passthrough, data ingest.CallbackData) {
	if err := h.videos.MarkFailed(p.Environment, p.SourceVideoID); err != nil {
		h.logger.Error("failed to mark video failed", "video", p.SourceVideoID, "error", err)
	}
	h.report(p, models.StatusFailed, 100, "destination reported encoding failure")
}

// handleReady settles the video as completed, recording the destination asset
// identifiers and the playback URLs derived from the first playback ID.
func (h *WebhookHandler) handleReady(p *models.Passthrough, data ingest.CallbackData) error {
	video, err := h.videos.Get(p.Environment, p.SourceVideoID)
	if err != nil {
		if errors.Is(err, shared.ErrVideoNotFound) {
			h.logger.Warn("ready event for unknown video", "video", p.SourceVideoID, "environment", p.Environment)
			h.report(p, models.StatusSkipped, 100, "no migration record for asset")
			return nil
		}
		return err
	}

	playbackID := data.PlaybackID()
	var streamingURL, thumbnailURL string
	if playbackID != "" {
		streamingURL = ingest.StreamingURL(h.streamHost, playbackID)
		thumbnailURL = ingest.ThumbnailURL(h.imageHost, playbackID)
	}

	if err := h.videos.Finalize(video.Environment, video.SourceID, data.ID, playbackID, streamingURL, thumbnailURL); err != nil {
		return err
	}

	h.report(p, models.StatusCompleted, 100, "")
	return nil
}

func (h *WebhookHandler) report(p *models.Passthrough, status models.VideoStatus, progress int, reason string) {
	err := h.tracker.Report(models.Report{
		JobID:    p.JobID,
		VideoID:  p.SourceVideoID,
		Status:   status,
		Progress: progress,
		Reason:   reason,
	})
	if err != nil {
		h.logger.Error("failed to append status report", "job", p.JobID, "video", p.SourceVideoID, "error", err)
	}
}

// writeJSON writes v as a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
