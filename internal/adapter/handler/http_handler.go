package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

type HTTPHandler struct {
	checkoutService *service.CheckoutService
}

func NewHTTPHandler(checkoutService *service.CheckoutService) *HTTPHandler {
	return &HTTPHandler{checkoutService: checkoutService}
}

// Register wires the API routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/carts/{cartID}/checkout", h.Checkout)
	mux.HandleFunc("GET /api/tickets/{code}", h.GetTicket)
	mux.HandleFunc("GET /api/products/{productID}", h.GetProduct)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type TicketItemPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type TicketPayload struct {
	Code      string              `json:"code"`
	UserID    string              `json:"user_id"`
	Items     []TicketItemPayload `json:"items"`
	Total     decimal.Decimal     `json:"total"`
	CreatedAt time.Time           `json:"created_at"`
}

type CheckoutHTTPResponse struct {
	Message      string        `json:"message"`
	Ticket       TicketPayload `json:"ticket"`
	NotProcessed []string      `json:"not_processed"`
}

type ErrorHTTPResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartID")

	result, err := h.checkoutService.Checkout(r.Context(), cartID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCartNotFound):
			writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: "cart not found"})
		case errors.Is(err, service.ErrNoAssociatedUser):
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{
				Error: "cart has no associated user; attach a user before checkout",
			})
		default:
			// Detail stays in the logs, not in the response.
			writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
		}
		return
	}

	message := "checkout completed"
	if len(result.NotProcessed) > 0 {
		message = fmt.Sprintf("checkout completed; %d item(s) could not be processed", len(result.NotProcessed))
	}

	writeJSON(w, http.StatusOK, CheckoutHTTPResponse{
		Message:      message,
		Ticket:       toTicketPayload(result.Ticket),
		NotProcessed: result.NotProcessed,
	})
}

func (h *HTTPHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	ticket, err := h.checkoutService.TicketByCode(r.Context(), code)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
		return
	}
	if ticket == nil {
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: "ticket not found"})
		return
	}

	writeJSON(w, http.StatusOK, toTicketPayload(ticket))
}

type ProductPayload struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productID")

	product, err := h.checkoutService.ProductByID(r.Context(), productID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
		return
	}
	if product == nil {
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: "product not found"})
		return
	}

	writeJSON(w, http.StatusOK, ProductPayload{
		ID:    product.ID,
		Price: product.Price,
		Stock: product.Stock,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toTicketPayload(t *domain.Ticket) TicketPayload {
	items := make([]TicketItemPayload, 0, len(t.Items))
	for _, item := range t.Items {
		items = append(items, TicketItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return TicketPayload{
		Code:      t.Code,
		UserID:    t.UserID,
		Items:     items,
		Total:     t.Total,
		CreatedAt: t.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
