// Package handler provides HTTP handlers for the ratewatch service.
package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ratewatch/internal/rates"
	"ratewatch/pkg/errors"
	"ratewatch/pkg/logger"
	"ratewatch/pkg/validator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RatesHandler manages the rate endpoints.
type RatesHandler struct {
	service   *rates.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewRatesHandler creates a RatesHandler.
func NewRatesHandler(service *rates.Service, val *validator.Validator, log logger.Logger) *RatesHandler {
	return &RatesHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// GetRates returns the full current snapshot.
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetRates(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	h.respondJSON(w, http.StatusOK, snap)
}

// GetStats returns the aggregate rate report.
func (h *RatesHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.AggregateRates(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Search lists currencies whose rate lies within [min, max] inclusive.
func (h *RatesHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minStr := strings.TrimSpace(q.Get("min"))
	maxStr := strings.TrimSpace(q.Get("max"))
	if minStr == "" || maxStr == "" {
		h.respondError(w, http.StatusBadRequest, "min and max query parameters are required")
		return
	}

	min, err := strconv.ParseFloat(minStr, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "min must be a number")
		return
	}
	max, err := strconv.ParseFloat(maxStr, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "max must be a number")
		return
	}

	codes, err := h.service.SearchRates(r.Context(), min, max)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRange) {
			h.respondError(w, http.StatusBadRequest, "min must not exceed max")
			return
		}
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"min":        min,
		"max":        max,
		"currencies": codes,
	})
}

// Chart streams a PNG bar chart of the current rates.
func (h *RatesHandler) Chart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.RenderChart(r.Context(), &buf); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		h.logger.Error("failed to write chart", map[string]interface{}{"error": err.Error()})
	}
}

// Convert computes a conversion between two snapshot currencies.
func (h *RatesHandler) Convert(w http.ResponseWriter, r *http.Request) {
	var req rates.ConvertRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if valErrs := h.validator.ValidateStructured(&req); valErrs != nil {
		h.respondValidationErrors(w, valErrs)
		return
	}

	result, err := h.service.Convert(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownCurrency) {
			h.respondError(w, http.StatusNotFound, "Unknown currency code")
			return
		}
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// Publish refreshes the rates-only cache entry from the current snapshot.
func (h *RatesHandler) Publish(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetRates(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Rates unavailable")
		return
	}

	if err := h.service.PublishRates(r.Context(), snap); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Publish failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"published": len(snap.ConversionRates),
		"base_code": snap.BaseCode,
	})
}

// History returns recent persisted snapshots, newest first.
func (h *RatesHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"history": records,
	})
}

// WebSocketHandler streams snapshot updates to the client.
func (h *RatesHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected", nil)

	h.sendSnapshot(r, conn)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.sendSnapshot(r, conn); err != nil {
				h.logger.Error("Failed to send snapshot", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (h *RatesHandler) sendSnapshot(r *http.Request, conn *websocket.Conn) error {
	snap, err := h.service.GetRates(r.Context())
	if err != nil {
		return conn.WriteJSON(map[string]interface{}{
			"type":      "rates_unavailable",
			"timestamp": time.Now(),
		})
	}

	return conn.WriteJSON(map[string]interface{}{
		"type":      "rates_update",
		"timestamp": time.Now(),
		"snapshot":  snap,
	})
}

func (h *RatesHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("json encode failed", map[string]interface{}{"error": err.Error()})
		_, _ = w.Write([]byte(`{"error":"response encoding failed"}`))
	}
}

func (h *RatesHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *RatesHandler) respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}
