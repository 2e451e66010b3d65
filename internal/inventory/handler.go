// Package inventory exposes the stock ledger API: availability checks plus
// the all-or-nothing reserve and best-effort release operations the saga
// calls.
package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/buildtall-systems/orderflow/internal/db"
)

type Handler struct {
	db  *db.DB
	log zerolog.Logger
}

func NewHandler(database *db.DB, log zerolog.Logger) *Handler {
	return &Handler{
		db:  database,
		log: log.With().Str("component", "inventory-api").Logger(),
	}
}

// Routes wires the inventory API endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/inventory", h.listItems)
	r.Get("/inventory/check", h.checkAvailability)
	r.Get("/inventory/{productId}", h.getItem)
	r.Post("/inventory/reserve", h.reserve)
	r.Post("/inventory/release", h.release)
	return r
}

type itemResponse struct {
	ID                int64     `json:"id"`
	ProductID         int64     `json:"productId"`
	Sku               string    `json:"sku"`
	QuantityOnHand    int       `json:"quantityOnHand"`
	QuantityReserved  int       `json:"quantityReserved"`
	QuantityAvailable int       `json:"quantityAvailable"`
	WarehouseLocation string    `json:"warehouseLocation"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

func toItemResponse(item db.InventoryItem) itemResponse {
	return itemResponse{
		ID:                item.ID,
		ProductID:         item.ProductID,
		Sku:               item.Sku,
		QuantityOnHand:    item.QuantityOnHand,
		QuantityReserved:  item.QuantityReserved,
		QuantityAvailable: item.QuantityAvailable(),
		WarehouseLocation: item.WarehouseLocation,
		LastUpdated:       item.LastUpdated,
	}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.db.GetInventoryItems(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list inventory")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	writeJSON(w, resp)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid product id", http.StatusBadRequest)
		return
	}
	item, err := h.db.GetInventoryItemByProduct(r.Context(), productID)
	if errors.Is(err, db.ErrItemNotFound) {
		writeJSONError(w, "no inventory record for product", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("productId", productID).Msg("failed to get inventory item")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toItemResponse(*item))
}

type checkResponse struct {
	Available         bool `json:"available"`
	QuantityAvailable int  `json:"quantityAvailable"`
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid product id", http.StatusBadRequest)
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity <= 0 {
		writeJSONError(w, "invalid quantity", http.StatusBadRequest)
		return
	}

	available, sufficient, err := h.db.CheckAvailability(r.Context(), productID, quantity)
	if err != nil {
		h.log.Error().Err(err).Int64("productId", productID).Msg("failed availability check")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, checkResponse{Available: sufficient, QuantityAvailable: available})
}

type reservationRequest struct {
	OrderNumber string               `json:"orderNumber"`
	Lines       []db.ReservationLine `json:"lines"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.log.Info().
		Str("orderNumber", req.OrderNumber).
		Int("lines", len(req.Lines)).
		Msg("processing reservation")

	result, err := h.db.ReserveInventory(r.Context(), req.OrderNumber, req.Lines)
	if err != nil {
		h.log.Error().Err(err).Str("orderNumber", req.OrderNumber).Msg("reservation failed unexpectedly")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(db.ReservationResult{
			Success:       false,
			OrderNumber:   req.OrderNumber,
			FailureReason: "An unexpected error occurred while processing the reservation",
		})
		return
	}

	if result.Success {
		h.log.Info().Str("orderNumber", req.OrderNumber).Msg("reservation completed")
	} else {
		h.log.Warn().
			Str("orderNumber", req.OrderNumber).
			Str("reason", result.FailureReason).
			Msg("reservation rejected")
	}
	writeJSON(w, result)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.log.Info().
		Str("orderNumber", req.OrderNumber).
		Int("lines", len(req.Lines)).
		Msg("processing release")

	result, err := h.db.ReleaseInventory(r.Context(), req.OrderNumber, req.Lines)
	if err != nil {
		h.log.Error().Err(err).Str("orderNumber", req.OrderNumber).Msg("release failed unexpectedly")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
