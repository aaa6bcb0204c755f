package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/price-tracker/internal/database"
	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/store"
	"github.com/maltedev/price-tracker/internal/tracker"
)

const OwnerHeader = "X-Owner-ID"

type Tracker interface {
	AddItem(ctx context.Context, rawURL, ownerID, target string) (*models.TrackedItem, error)
	ListItems(ctx context.Context, ownerID string) ([]models.TrackedItem, error)
	GetOwnedItem(ctx context.Context, id, ownerID string) (*models.TrackedItem, error)
	DeleteItem(ctx context.Context, id, ownerID string) error
	History(ctx context.Context, id string) ([]models.PriceObservation, error)
	Compare(ctx context.Context, id, ownerID string) ([]models.ComparisonRow, error)
}

type SourceLister interface {
	Sources() []extractor.Source
}

// OutboxStatter reports outbox backlog for /health. Optional.
type OutboxStatter interface {
	Stats(ctx context.Context) (database.OutboxStats, error)
}

type Handlers struct {
	tracker Tracker
	sources SourceLister
	outbox  OutboxStatter
	logger  *slog.Logger
}

func NewHandlers(tracker Tracker, sources SourceLister, outbox OutboxStatter, logger *slog.Logger) *Handlers {
	return &Handlers{
		tracker: tracker,
		sources: sources,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// AddItemRequest is the body of POST /api/v1/items
type AddItemRequest struct {
	URL                string `json:"url"`
	NotificationTarget string `json:"notification_target"`
}

type SourceResponse struct {
	ID        string `json:"id"`
	HostMatch string `json:"host_match"`
}

type HistoryResponse struct {
	ItemID       string                    `json:"item_id"`
	Observations []models.PriceObservation `json:"observations"`
}

type CompareResponse struct {
	ItemID string                 `json:"item_id"`
	Rows   []models.ComparisonRow `json:"rows"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox stats", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		health["outbox"] = stats
		if stats.Pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if stats.DeadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	item, err := h.tracker.AddItem(r.Context(), req.URL, ownerFrom(r), req.NotificationTarget)
	if err != nil {
		h.respondTrackerError(w, err, "failed to add item")
		return
	}

	h.respondJSON(w, http.StatusCreated, item)
}

func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.tracker.ListItems(r.Context(), ownerFrom(r))
	if err != nil {
		h.respondTrackerError(w, err, "failed to list items")
		return
	}

	h.respondJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.tracker.GetOwnedItem(r.Context(), chi.URLParam(r, "itemID"), ownerFrom(r))
	if err != nil {
		h.respondTrackerError(w, err, "failed to get item")
		return
	}

	h.respondJSON(w, http.StatusOK, item)
}

func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.DeleteItem(r.Context(), chi.URLParam(r, "itemID"), ownerFrom(r)); err != nil {
		h.respondTrackerError(w, err, "failed to delete item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if _, err := h.tracker.GetOwnedItem(r.Context(), itemID, ownerFrom(r)); err != nil {
		h.respondTrackerError(w, err, "failed to get item")
		return
	}

	obs, err := h.tracker.History(r.Context(), itemID)
	if err != nil {
		h.respondTrackerError(w, err, "failed to get history")
		return
	}

	h.respondJSON(w, http.StatusOK, HistoryResponse{ItemID: itemID, Observations: obs})
}

func (h *Handlers) CompareItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	rows, err := h.tracker.Compare(r.Context(), itemID, ownerFrom(r))
	if err != nil {
		h.respondTrackerError(w, err, "failed to compare prices")
		return
	}

	h.respondJSON(w, http.StatusOK, CompareResponse{ItemID: itemID, Rows: rows})
}

func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := h.sources.Sources()

	resp := make([]SourceResponse, len(sources))
	for i, s := range sources {
		resp[i] = SourceResponse{ID: s.ID, HostMatch: s.HostMatch}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// RequireOwner rejects requests without an owner id header.
func (h *Handlers) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ownerFrom(r) == "" {
			h.respondError(w, http.StatusUnauthorized, OwnerHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ownerFrom(r *http.Request) string {
	return r.Header.Get(OwnerHeader)
}

func (h *Handlers) respondTrackerError(w http.ResponseWriter, err error, message string) {
	var verr *tracker.ValidationError

	switch {
	case errors.As(err, &verr) && errors.Is(err, store.ErrDuplicate):
		h.respondError(w, http.StatusConflict, verr.Error())
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "item not found")
	default:
		h.logger.Error(message, "error", err)
		h.respondError(w, http.StatusInternalServerError, message)
	}
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
