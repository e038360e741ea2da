// Package order_api exposes the booking core over HTTP.
package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cinema-ticketing/internal/auth"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
	"cinema-ticketing/internal/order"
	"cinema-ticketing/internal/order/db"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *order.OrderService
	Logger  *logger.Logger
}

func NewHandler(service *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// Routes mounts the public surface. The payment callback is registered
// outside the auth middleware by the caller: the gateway authenticates
// with its signature, not a bearer token.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Get("/users/me/orders", h.MyOrders)
	r.Get("/users/me/bonus", h.MyBonus)
	r.Get("/sessions/{sessionID}/seats", h.SessionSeats)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: bad request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.Service.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	orderID := chi.URLParam(r, "orderID")

	result, err := h.Service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	orders, err := h.Service.OrdersByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) MyBonus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	account, err := h.Service.BonusAccount(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) SessionSeats(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	seats, err := h.Service.SessionSeats(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, seats)
}

// PaymentCallback accepts the gateway's form-encoded data/signature
// pair. Anything past the signature check answers 200: the gateway
// retries non-2xx responses and a retry cannot fix a business failure.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	data := r.FormValue("data")
	signature := r.FormValue("signature")
	if data == "" || signature == "" {
		http.Error(w, "data and signature are required", http.StatusBadRequest)
		return
	}

	if err := h.Service.HandleCallback(r.Context(), data, signature); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *order.ValidationError
	var ferr *order.ForbiddenError
	var cerr *order.CallbackError

	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Message, http.StatusBadRequest)
	case errors.As(err, &ferr):
		http.Error(w, ferr.Message, http.StatusForbidden)
	case errors.As(err, &cerr):
		http.Error(w, cerr.Message, cerr.Status)
	case errors.Is(err, db.ErrSeatTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, db.ErrOrderNotFound), errors.Is(err, db.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		h.Logger.Error("API", fmt.Sprintf("internal error: %v", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
