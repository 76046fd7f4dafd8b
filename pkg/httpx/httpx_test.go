package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/bookstore/pkg/apperr"
)

func TestWriteErrorMapsKinds(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	req := httptest.NewRequest(http.MethodGet, "/orders/9/status", nil)

	rec := httptest.NewRecorder()
	WriteError(rec, req, log, fmt.Errorf("load: %w", apperr.NotFound("Order not found with id: 9")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Order not found with id: 9"}`, rec.Body.String())
	assert.Empty(t, buf.String())

	rec = httptest.NewRecorder()
	WriteError(rec, req, log, errors.New("dial tcp 10.0.0.1:5432: refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "refused")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		BookID int64 `json:"bookId"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":3}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, int64(3), v.BookID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(req, &v), apperr.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	assert.ErrorIs(t, DecodeJSON(req, &v), apperr.ErrValidation)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/low-stock?threshold=2", nil)
	n, err := QueryInt(req, "threshold", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = QueryInt(httptest.NewRequest(http.MethodGet, "/low-stock", nil), "threshold", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = QueryInt(httptest.NewRequest(http.MethodGet, "/low-stock?threshold=x", nil), "threshold", 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "x")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, buf.String(), `"status":418`)
}
