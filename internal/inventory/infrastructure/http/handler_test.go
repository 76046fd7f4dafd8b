package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/bookstore/internal/inventory/application"
	"github.com/dmehra2102/bookstore/internal/inventory/domain"
	"github.com/dmehra2102/bookstore/pkg/apperr"
	"github.com/dmehra2102/bookstore/pkg/auth"
	"github.com/dmehra2102/bookstore/pkg/outbox"
)

var secret = []byte("handler-test-secret-0123456789abcd")

type shelf struct {
	books map[int64]domain.BookView
	logs  []domain.LogEntry
}

func (s *shelf) CreateBook(_ context.Context, b domain.Book, q int) (domain.BookView, error) {
	b.ID = int64(len(s.books) + 1)
	v := domain.BookView{Book: b, Quantity: q}
	s.books[b.ID] = v
	s.logs = append(s.logs, domain.LogEntry{ID: 1, BookID: b.ID, Action: domain.ActionCreate, Quantity: q})
	return v, nil
}

func (s *shelf) GetBook(_ context.Context, id int64) (domain.BookView, error) {
	v, ok := s.books[id]
	if !ok || v.Deleted {
		return domain.BookView{}, apperr.NotFound("Book not found with id: %d", id)
	}
	return v, nil
}

func (s *shelf) Prices(_ context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	out := map[int64]decimal.Decimal{}
	for _, id := range ids {
		if v, ok := s.books[id]; ok && !v.Deleted {
			out[id] = v.Price
		}
	}
	return out, nil
}

func (s *shelf) SoftDeleteBook(ctx context.Context, id int64) error {
	v, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	v.Deleted = true
	s.books[id] = v
	return nil
}

func (s *shelf) SetQuantity(ctx context.Context, id int64, q int, _ outbox.Event) error {
	v, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	v.Quantity = q
	s.books[id] = v
	return nil
}

func (s *shelf) Decrease(ctx context.Context, id int64, by int) (int, error) {
	v, err := s.GetBook(ctx, id)
	if err != nil {
		return 0, err
	}
	left, err := domain.Decrease(v.Quantity, by)
	if err != nil {
		return 0, err
	}
	v.Quantity = left
	s.books[id] = v
	return left, nil
}

func (s *shelf) Status(ctx context.Context, id int64) (domain.StockStatus, error) {
	v, err := s.GetBook(ctx, id)
	if err != nil {
		return domain.StockStatus{}, err
	}
	return domain.StockStatus{BookID: id, Title: v.Title, Quantity: v.Quantity}, nil
}

func (s *shelf) where(keep func(int) bool) []domain.StockStatus {
	var out []domain.StockStatus
	for id := int64(1); id <= int64(len(s.books)); id++ {
		if v := s.books[id]; !v.Deleted && keep(v.Quantity) {
			out = append(out, domain.StockStatus{BookID: id, Title: v.Title, Quantity: v.Quantity})
		}
	}
	return out
}

func (s *shelf) FilterByMinStock(_ context.Context, minStock int) ([]domain.StockStatus, error) {
	return s.where(func(q int) bool { return q >= minStock }), nil
}

func (s *shelf) LowStock(_ context.Context, t int) ([]domain.StockStatus, error) {
	return s.where(func(q int) bool { return q <= t }), nil
}

func (s *shelf) AuditLog(_ context.Context, id int64) ([]domain.LogEntry, error) {
	var out []domain.LogEntry
	for _, l := range s.logs {
		if l.BookID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *shelf) ApplyOrder(context.Context, string, []domain.StockLine, application.ShortageFunc) (domain.ApplyResult, error) {
	return domain.ApplyResult{}, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := application.NewService(log, &shelf{books: map[int64]domain.BookView{}}, nil)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(auth.NewVerifier(secret), log))
		NewHandler(log, svc, 5).Register(r)
	})
	return r
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := auth.NewIssuer(secret, "tester", roles, time.Minute).Mint()
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, tok, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBookAndInventoryFlow(t *testing.T) {
	h := newRouter(t)
	admin := token(t, auth.RoleAdmin)

	rec := do(t, h, admin, http.MethodPost, "/api/books",
		`{"title":"Dune","author":"Herbert","genre":"SF","isbn":"978-0441","price":"12.99","quantity":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var b bookDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, int64(1), b.ID)

	rec = do(t, h, admin, http.MethodPost, "/api/inventory/update", `{"bookId":1,"quantity":10}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, admin, http.MethodPost, "/api/inventory/decrease", `{"bookId":1,"decreaseBy":4}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, admin, http.MethodGet, "/api/inventory/status/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookId":1,"title":"Dune","quantity":6}`, rec.Body.String())

	rec = do(t, h, admin, http.MethodPost, "/api/books/prices", `{"bookIds":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var p pricesDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Len(t, p.Prices, 1)
	assert.True(t, decimal.RequireFromString("12.99").Equal(p.Prices[1]))

	rec = do(t, h, admin, http.MethodGet, "/api/inventory/low-stock", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = do(t, h, admin, http.MethodGet, "/api/inventory/low-stock?threshold=6", "")
	assert.JSONEq(t, `[{"bookId":1,"title":"Dune","quantity":6}]`, rec.Body.String())
	rec = do(t, h, admin, http.MethodGet, "/api/inventory/filter?minStock=7", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, admin, http.MethodGet, "/api/inventory/logs/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"CREATE"`)

	assert.Equal(t, http.StatusNoContent, do(t, h, admin, http.MethodDelete, "/api/books/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, admin, http.MethodGet, "/api/books/1", "").Code)
}

func TestInventoryErrors(t *testing.T) {
	h := newRouter(t)
	tok := token(t, auth.RoleAdmin)
	require.Equal(t, http.StatusCreated, do(t, h, tok, http.MethodPost, "/api/books",
		`{"title":"A","author":"B","genre":"C","isbn":"D","price":1,"quantity":1}`).Code)

	cases := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/api/inventory/decrease", `{"bookId":1,"decreaseBy":5}`, http.StatusBadRequest},
		{http.MethodPost, "/api/inventory/update", `{"bookId":1,"quantity":-1}`, http.StatusBadRequest},
		{http.MethodPost, "/api/inventory/update", `{"bookId":9,"quantity":1}`, http.StatusNotFound},
		{http.MethodGet, "/api/inventory/status/9", "", http.StatusNotFound},
		{http.MethodGet, "/api/inventory/filter?minStock=x", "", http.StatusBadRequest},
		{http.MethodPost, "/api/books", `{"title":"","author":"B","genre":"C","isbn":"D","price":1,"quantity":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(t, h, tok, tc.method, tc.path, tc.body)
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestBookRoutesRequireAdmin(t *testing.T) {
	h := newRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "", http.MethodGet, "/api/books/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "", http.MethodGet, "/api/inventory/low-stock", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, token(t, auth.RoleUser), http.MethodGet, "/api/books/1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, token(t, auth.RoleSuperAdmin), http.MethodGet, "/api/books/1", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, token(t, auth.RoleUser), http.MethodGet, "/api/inventory/low-stock", "").Code)
}
