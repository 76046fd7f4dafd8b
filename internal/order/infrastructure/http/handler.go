package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/bookstore/internal/order/application"
	"github.com/dmehra2102/bookstore/internal/order/domain"
	"github.com/dmehra2102/bookstore/pkg/httpx"
)

type Handler struct {
	log    *slog.Logger
	orders *application.Service
	carts  *application.CartService
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, orders *application.Service, carts *application.CartService) *Handler {
	return &Handler{
		log:    log,
		orders: orders,
		carts:  carts,
		tracer: otel.Tracer("order-http"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Post("/add", h.addToCart)
		r.Post("/remove", h.removeFromCart)
		r.Get("/{userId}", h.viewCart)
		r.Delete("/{userId}", h.clearCart)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Post("/from-cart/{userId}", h.createOrderFromCart)
		r.Get("/{orderId}/status", h.orderStatus)
		r.Get("/user/{userId}", h.orderHistory)
		r.Post("/{orderId}/confirm-payment", h.confirmPayment)
	})
}

type cartItemReq struct {
	UserID   int64 `json:"userId"`
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

type cartLineDTO struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

type cartDTO struct {
	UserID int64         `json:"userId"`
	Items  []cartLineDTO `json:"items"`
}

type orderLineDTO struct {
	BookID   int64           `json:"bookId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type createOrderReq struct {
	UserID int64          `json:"userId"`
	Items  []orderLineDTO `json:"items"`
}

type orderDTO struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"userId"`
	Items     []orderLineDTO `json:"items"`
	Status    string         `json:"status"`
	Total     string         `json:"total"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func toCartDTO(c domain.Cart) cartDTO {
	items := make([]cartLineDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, cartLineDTO{BookID: l.BookID, Quantity: l.Quantity})
	}
	return cartDTO{UserID: c.UserID, Items: items}
}

func toOrderDTO(o domain.Order) orderDTO {
	items := make([]orderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, orderLineDTO{BookID: l.BookID, Quantity: l.Quantity, Price: l.Price})
	}
	return orderDTO{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     items,
		Status:    string(o.Status),
		Total:     o.Total().StringFixed(2),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.carts.AddToCart(r.Context(), req.UserID, req.BookID, req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCartDTO(c))
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.carts.RemoveFromCart(r.Context(), req.UserID, req.BookID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCartDTO(c))
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathInt64(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	c, err := h.carts.ViewCart(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCartDTO(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathInt64(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /orders")
	defer span.End()

	var req createOrderReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.OrderLine{BookID: it.BookID, Quantity: it.Quantity, Price: it.Price})
	}
	o, err := h.orders.CreateOrder(ctx, req.UserID, lines)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) createOrderFromCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /orders/from-cart")
	defer span.End()

	userID, err := httpx.PathInt64(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	o, err := h.orders.CreateOrderFromCart(ctx, userID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.PathInt64(r, "orderId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	status, err := h.orders.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(status))
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.PathInt64(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	orders, err := h.orders.GetOrderHistory(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /orders/confirm-payment")
	defer span.End()

	orderID, err := httpx.PathInt64(r, "orderId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	o, err := h.orders.ConfirmPayment(ctx, orderID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderDTO(o))
}
