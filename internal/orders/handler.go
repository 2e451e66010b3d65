// Package orders exposes the order API: order creation (which publishes an
// OrderCreated event to the order-events queue), lookups for the saga
// worker, and the idempotent status update the saga drives the state
// machine through.
package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/buildtall-systems/orderflow/internal/db"
	"github.com/buildtall-systems/orderflow/internal/queue"
	"github.com/buildtall-systems/orderflow/internal/trace"
)

type Handler struct {
	db          *db.DB
	orderEvents queue.Queue
	log         zerolog.Logger
}

func NewHandler(database *db.DB, orderEvents queue.Queue, log zerolog.Logger) *Handler {
	return &Handler{
		db:          database,
		orderEvents: orderEvents,
		log:         log.With().Str("component", "order-api").Logger(),
	}
}

// Routes wires the order API endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/pending", h.getPendingOrders)
	r.Get("/orders/by-number/{orderNumber}", h.getOrderByNumber)
	r.Get("/orders/{id}", h.getOrderByID)
	r.Put("/orders/{id}/status", h.updateOrderStatus)
	return r
}

type createOrderItemRequest struct {
	ProductID      int64  `json:"productId"`
	ProductName    string `json:"productName"`
	Sku            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type createOrderRequest struct {
	CustomerName  string                   `json:"customerName"`
	CustomerEmail string                   `json:"customerEmail"`
	Items         []createOrderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ID             int64  `json:"id"`
	ProductID      int64  `json:"productId"`
	ProductName    string `json:"productName"`
	Sku            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerName  string              `json:"customerName"`
	CustomerEmail string              `json:"customerEmail"`
	Items         []orderItemResponse `json:"items"`
	TotalCents    int64               `json:"totalCents"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"createdAt"`
	ProcessedAt   *time.Time          `json:"processedAt,omitempty"`
	FulfilledAt   *time.Time          `json:"fulfilledAt,omitempty"`
}

func toOrderResponse(o *db.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Items:         make([]orderItemResponse, 0, len(o.Items)),
		TotalCents:    o.TotalCents,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
	if o.ProcessedAt.Valid {
		t := o.ProcessedAt.Time
		resp.ProcessedAt = &t
	}
	if o.FulfilledAt.Valid {
		t := o.FulfilledAt.Time
		resp.FulfilledAt = &t
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Sku:            item.Sku,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents(),
		})
	}
	return resp
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CustomerEmail == "" || len(req.Items) == 0 {
		writeJSONError(w, "customerEmail and at least one item are required", http.StatusBadRequest)
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			writeJSONError(w, "item quantities must be positive and prices non-negative", http.StatusBadRequest)
			return
		}
	}

	items := make([]db.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, db.OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Sku:            item.Sku,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	order, err := h.db.CreateOrder(r.Context(), req.CustomerName, req.CustomerEmail, items)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create order")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Info().
		Str("orderNumber", order.OrderNumber).
		Int64("orderId", order.ID).
		Int64("totalCents", order.TotalCents).
		Msg("order created")

	env, err := queue.NewEnvelope(queue.TypeOrderEvent, queue.OrderEvent{
		OrderNumber:   order.OrderNumber,
		EventType:     "OrderCreated",
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		TotalCents:    order.TotalCents,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("orderNumber", order.OrderNumber).Msg("failed to build order event")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	env.TraceParent, env.TraceState = trace.FromRequest(r)

	if err := h.orderEvents.Enqueue(r.Context(), env); err != nil {
		h.log.Error().Err(err).Str("orderNumber", order.OrderNumber).Msg("failed to publish order event")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.log.Info().Str("orderNumber", order.OrderNumber).Msg("OrderCreated event published")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toOrderResponse(order))
}

func (h *Handler) getOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}
	order, err := h.db.GetOrderByID(r.Context(), id)
	if errors.Is(err, db.ErrOrderNotFound) {
		writeJSONError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("orderId", id).Msg("failed to get order")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toOrderResponse(order))
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	order, err := h.db.GetOrderByNumber(r.Context(), orderNumber)
	if errors.Is(err, db.ErrOrderNotFound) {
		writeJSONError(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("orderNumber", orderNumber).Msg("failed to get order")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toOrderResponse(order))
}

func (h *Handler) getPendingOrders(w http.ResponseWriter, r *http.Request) {
	pending, err := h.db.GetPendingOrders(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list pending orders")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	resp := make([]orderResponse, 0, len(pending))
	for _, o := range pending {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid order id", http.StatusBadRequest)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.db.UpdateOrderStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		writeJSONError(w, "order not found", http.StatusNotFound)
		return
	case errors.Is(err, db.ErrInvalidStateTransition):
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Int64("orderId", id).Msg("failed to update order status")
		writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Info().
		Int64("orderId", id).
		Str("status", order.Status).
		Msg("order status updated")
	writeJSON(w, toOrderResponse(order))
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
