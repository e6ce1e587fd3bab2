package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/internal/health"
	"github.com/jgirmay/presencehub/pkg/http/dto"
	"github.com/jgirmay/presencehub/pkg/http/middleware"
	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/repository"
	"github.com/jgirmay/presencehub/pkg/services/presence"
	"github.com/jgirmay/presencehub/pkg/services/realtime"
)

// PresenceHandlers handles presence and notification API requests
type PresenceHandlers struct {
	tracker  *presence.Tracker
	store    repository.ActivityWriter
	lookup   presence.LastActiveLookup
	registry *realtime.ConnectionRegistry
	notifier *realtime.Notifier
	checker  *health.Checker
	logger   *logging.Logger
}

// NewPresenceHandlers creates new presence handlers. store may be nil when
// no durable store is configured.
func NewPresenceHandlers(
	tracker *presence.Tracker,
	store repository.ActivityWriter,
	registry *realtime.ConnectionRegistry,
	notifier *realtime.Notifier,
	checker *health.Checker,
	logger *logging.Logger,
) *PresenceHandlers {
	if checker == nil {
		checker = health.NewChecker(0)
	}
	// stores that can read single rows back the status endpoint on cache misses
	lookup, _ := store.(presence.LastActiveLookup)
	return &PresenceHandlers{
		tracker:  tracker,
		store:    store,
		lookup:   lookup,
		registry: registry,
		notifier: notifier,
		checker:  checker,
		logger:   logging.OrNop(logger).Named("handlers"),
	}
}

// Heartbeat handles POST /api/presence/heartbeat
// Marks the caller active and flushes the caller's activity immediately
func (h *PresenceHandlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required", "MISSING_TOKEN")
		return
	}

	h.tracker.MarkActive(userID)
	if h.store != nil {
		if err := h.tracker.FlushUser(r.Context(), h.store, userID); err != nil {
			// the user stays queued for the periodic flush
			h.logger.Warn("heartbeat flush failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	snap := h.tracker.GetStatus(userID)
	writeJSON(w, http.StatusOK, &dto.HeartbeatResponse{
		Status:   snap.Status,
		LastSeen: snap.LastSeen,
	})
}

// GetStatus handles GET /api/presence/status/{userID}
func (h *PresenceHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id", "INVALID_REQUEST")
		return
	}
	snap, err := h.tracker.ResolveStatus(r.Context(), h.lookup, userID)
	if err != nil {
		h.logger.Warn("status lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetBulkStatus handles POST /api/presence/bulk
// An empty list yields an empty map, never the full online listing
func (h *PresenceHandlers) GetBulkStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}

	if len(req.UserIDs) == 0 {
		writeJSON(w, http.StatusOK, map[string]presence.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.GetBulkStatus(req.UserIDs))
}

// GetOnline handles GET /api/presence/online
func (h *PresenceHandlers) GetOnline(w http.ResponseWriter, r *http.Request) {
	summary := h.tracker.OnlineSnapshot()
	writeJSON(w, http.StatusOK, &dto.OnlineUsersResponse{
		Users:  summary.Users,
		Count:  len(summary.Users),
		Online: summary.Online,
		Away:   summary.Away,
	})
}

// Notify handles POST /api/notifications
func (h *PresenceHandlers) Notify(w http.ResponseWriter, r *http.Request) {
	var req dto.NotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}

	recipients := dedupe(req.UserIDs)
	connected := 0
	for _, userID := range recipients {
		if h.registry.IsConnected(userID) {
			connected++
		}
	}

	if err := h.notifier.NotifyMany(recipients, req.Kind, req.Title, req.Body, req.Data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PAYLOAD")
		return
	}

	writeJSON(w, http.StatusAccepted, &dto.NotificationResponse{
		Recipients:           len(recipients),
		DeliveredToConnected: connected,
	})
}

// Health handles GET /health
// A degraded dependency is reported but still answers 200: connections and
// in-memory presence keep working without the store or the relay.
func (h *PresenceHandlers) Health(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())
	writeJSON(w, http.StatusOK, &dto.HealthResponse{
		Status:       report.Status,
		Connections:  h.registry.TotalConnections(),
		Users:        h.registry.UserCount(),
		PendingFlush: h.tracker.PendingCount(),
		Services:     report.Services,
		Uptime:       report.Uptime,
		Timestamp:    time.Now(),
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
