package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/bookstore/internal/inventory/application"
	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/auth"
	"github.com/dmehra2102/bookstore/pkg/httpx"
)

type Handler struct {
	log          *slog.Logger
	svc          *application.Service
	lowThreshold int
	tracer       trace.Tracer
}

func NewHandler(log *slog.Logger, svc *application.Service, lowStockThreshold int) *Handler {
	return &Handler{
		log:          log,
		svc:          svc,
		lowThreshold: lowStockThreshold,
		tracer:       otel.Tracer("inventory-http"),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/inventory", func(r chi.Router) {
		r.Post("/update", h.updateInventory)
		r.Post("/decrease", h.decreaseInventory)
		r.Get("/status/{bookId}", h.inventoryStatus)
		r.Get("/filter", h.filterByStock)
		r.Get("/low-stock", h.lowStock)
		r.Get("/logs/{bookId}", h.auditLog)
	})
	r.Route("/api/books", func(r chi.Router) {
		r.Use(auth.RequireRole(h.log, auth.RoleAdmin, auth.RoleSuperAdmin))
		r.Post("/", h.createBook)
		r.Post("/prices", h.prices)
		r.Get("/{id}", h.getBook)
		r.Delete("/{id}", h.deleteBook)
	})
}

type updateReq struct {
	BookID   int64 `json:"bookId"`
	Quantity int   `json:"quantity"`
}

type decreaseReq struct {
	BookID     int64 `json:"bookId"`
	DecreaseBy int   `json:"decreaseBy"`
}

type statusDTO struct {
	BookID   int64  `json:"bookId"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

type logDTO struct {
	ID        int64     `json:"id"`
	BookID    int64     `json:"bookId"`
	Action    string    `json:"action"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

type createBookReq struct {
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Genre    string          `json:"genre"`
	ISBN     string          `json:"isbn"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type bookDTO struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Genre    string          `json:"genre"`
	ISBN     string          `json:"isbn"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type pricesReq struct {
	BookIDs []int64 `json:"bookIds"`
}

type pricesDTO struct {
	Prices map[int64]decimal.Decimal `json:"prices"`
}

func toStatusDTOs(rows []domain.StockStatus) []statusDTO {
	out := make([]statusDTO, 0, len(rows))
	for _, s := range rows {
		out = append(out, statusDTO(s))
	}
	return out
}

func toBookDTO(v domain.BookView) bookDTO {
	return bookDTO{
		ID:       v.ID,
		Title:    v.Title,
		Author:   v.Author,
		Genre:    v.Genre,
		ISBN:     v.ISBN,
		Price:    v.Price,
		Quantity: v.Quantity,
	}
}

func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /api/inventory/update")
	defer span.End()

	var req updateReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.svc.UpdateInventory(ctx, req.BookID, req.Quantity); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decreaseInventory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "POST /api/inventory/decrease")
	defer span.End()

	var req decreaseReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.svc.DecreaseInventory(ctx, req.BookID, req.DecreaseBy); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) inventoryStatus(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpx.PathInt64(r, "bookId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	s, err := h.svc.GetInventoryStatus(r.Context(), bookID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusDTO(s))
}

func (h *Handler) filterByStock(w http.ResponseWriter, r *http.Request) {
	minStock, err := httpx.QueryInt(r, "minStock", 0)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	rows, err := h.svc.FilterBooksByStock(r.Context(), minStock)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toStatusDTOs(rows))
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := httpx.QueryInt(r, "threshold", h.lowThreshold)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	rows, err := h.svc.ListLowOrOutOfStockBooks(r.Context(), threshold)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toStatusDTOs(rows))
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpx.PathInt64(r, "bookId")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	entries, err := h.svc.AuditLog(r.Context(), bookID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]logDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, logDTO{ID: e.ID, BookID: e.BookID, Action: string(e.Action), Quantity: e.Quantity, Timestamp: e.Timestamp})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var req createBookReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	v, err := h.svc.CreateBook(r.Context(), req.Title, req.Author, req.Genre, req.ISBN, req.Price, req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBookDTO(v))
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	v, err := h.svc.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookDTO(v))
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if err := h.svc.SoftDeleteBook(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) prices(w http.ResponseWriter, r *http.Request) {
	var req pricesReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	prices, err := h.svc.GetPrices(r.Context(), req.BookIDs)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pricesDTO{Prices: prices})
}
