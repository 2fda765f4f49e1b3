package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

type LeadCreator interface {
	Execute(ctx context.Context, input usecase.CreateLeadInput) (*usecase.CreateLeadOutput, error)
}

type LeadReader interface {
	Lead(ctx context.Context, id string) (*usecase.LeadWithDeliveries, error)
}

type LeadHandler struct {
	create      LeadCreator
	reader      LeadReader
	rateLimiter *RateLimiter
}

func NewLeadHandler(create LeadCreator, reader LeadReader, limiter *RateLimiter) *LeadHandler {
	return &LeadHandler{
		create:      create,
		reader:      reader,
		rateLimiter: limiter,
	}
}

type CreateLeadResponse struct {
	Success    bool                      `json:"success"`
	LeadID     string                    `json:"leadId,omitempty"`
	Deliveries []usecase.Outcome         `json:"deliveries,omitempty"`
	Message    string                    `json:"message,omitempty"`
	Errors     []usecase.ValidationError `json:"errors,omitempty"`
}

// CreateLead is POST /leads.
func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	if h.rateLimiter != nil && !h.rateLimiter.Allow(getClientIP(r)) {
		middleware.RecordLead("rate_limited")
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return
	}

	var input usecase.CreateLeadInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.RecordLead("invalid")
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	out, err := h.create.Execute(r.Context(), input)
	if err != nil {
		var de *usecase.DomainError
		if errors.As(err, &de) {
			middleware.RecordLead("invalid")
			writeJSON(w, http.StatusBadRequest, CreateLeadResponse{
				Success: false,
				Message: de.Message,
				Errors:  de.Fields,
			})
			return
		}

		log.Printf("[INTAKE] ❌ %v", err)
		middleware.RecordLead("error")
		writeError(w, http.StatusInternalServerError, "Failed to submit inquiry")
		return
	}

	middleware.RecordLead("created")
	writeJSON(w, http.StatusCreated, CreateLeadResponse{
		Success:    true,
		LeadID:     out.LeadID,
		Deliveries: out.Deliveries,
	})
}

// GetLead is GET /leads/{id}: the lead with all of its deliveries.
func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	view, err := h.reader.Lead(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, entity.ErrLeadNotFound) {
		writeError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		log.Printf("❌ get lead: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load lead")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := rl.now()

	if !exists {
		rl.visitors[ip] = &visitor{count: 1, lastReset: now}
		return true
	}

	if now.Sub(v.lastReset) > rl.window {
		v.count = 1
		v.lastReset = now
		return true
	}

	v.count++
	return v.count <= rl.limit
}

// Cleanup drops idle visitors every interval until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}
