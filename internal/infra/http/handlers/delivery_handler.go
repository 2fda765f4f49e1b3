package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type DeliveryReader interface {
	Stats(ctx context.Context) (*usecase.DeliveryStats, error)
	Failed(ctx context.Context) ([]entity.Delivery, error)
	Delivery(ctx context.Context, id string) (*entity.Delivery, error)
}

type DeliveryRetrier interface {
	Execute(ctx context.Context, deliveryID string) (usecase.Outcome, error)
}

type ChannelProber interface {
	Probe(ctx context.Context, channel entity.Channel) (usecase.SendResult, error)
}

type DeliveryHandler struct {
	reader  DeliveryReader
	retrier DeliveryRetrier
	prober  ChannelProber
}

func NewDeliveryHandler(reader DeliveryReader, retrier DeliveryRetrier, prober ChannelProber) *DeliveryHandler {
	return &DeliveryHandler{
		reader:  reader,
		retrier: retrier,
		prober:  prober,
	}
}

// Stats is GET /deliveries/stats.
func (h *DeliveryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.Stats(r.Context())
	if err != nil {
		log.Printf("❌ delivery stats: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	middleware.SetDeliveriesByStatus(stats.Counts)
	writeJSON(w, http.StatusOK, stats)
}

// ListFailed is GET /deliveries/failed.
func (h *DeliveryHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := h.reader.Failed(r.Context())
	if err != nil {
		log.Printf("❌ list failed deliveries: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}
	writeJSON(w, http.StatusOK, failed)
}

// GetDelivery is GET /deliveries/{id}.
func (h *DeliveryHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := h.reader.Delivery(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, entity.ErrDeliveryNotFound) {
		writeError(w, http.StatusNotFound, "Delivery not found")
		return
	}
	if err != nil {
		log.Printf("❌ get delivery: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load delivery")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Retry is POST /deliveries/{id}/retry.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	out, err := h.retrier.Execute(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, entity.ErrDeliveryNotFound):
		writeError(w, http.StatusNotFound, "Delivery not found")
	case errors.Is(err, entity.ErrLeadNotFound):
		writeError(w, http.StatusNotFound, "Lead not found for delivery")
	case errors.Is(err, usecase.ErrAlreadySucceeded), errors.Is(err, usecase.ErrMaxAttemptsReached):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("❌ retry delivery: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retry delivery")
	}
}

type TestDeliveryRequest struct {
	Channel string `json:"channel"`
}

// TestDelivery is POST /test-delivery. It sends a sample lead on one channel and stores nothing.
func (h *DeliveryHandler) TestDelivery(w http.ResponseWriter, r *http.Request) {
	var req TestDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	res, err := h.prober.Probe(r.Context(), entity.Channel(strings.ToUpper(strings.TrimSpace(req.Channel))))
	if errors.Is(err, usecase.ErrUnknownChannel) {
		writeError(w, http.StatusBadRequest, "channel must be EMAIL, CRM_WEBHOOK or STAFF_MESSAGE")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Probe failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
