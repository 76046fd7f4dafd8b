package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/bookstore/pkg/breaker"
)

type BaseURL interface {
	BaseURL(ctx context.Context) string
}

type TokenSource interface {
	Mint() (string, error)
}

type Config struct {
	Name         string
	Timeout      time.Duration
	BatchTimeout time.Duration
}

// Client reads book prices from the inventory service. Every failure path
// degrades to zero prices; callers treat zero as unresolved.
type Client struct {
	log      *slog.Logger
	http     *http.Client
	base     BaseURL
	tokens   TokenSource
	breakers *breaker.Registry
	cfg      Config
}

func NewClient(log *slog.Logger, base BaseURL, tokens TokenSource, breakers *breaker.Registry, cfg Config) *Client {
	return &Client{
		log:      log,
		http:     &http.Client{},
		base:     base,
		tokens:   tokens,
		breakers: breakers,
		cfg:      cfg,
	}
}

type bookResponse struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type pricesRequest struct {
	BookIDs []int64 `json:"bookIds"`
}

type pricesResponse struct {
	Prices map[int64]decimal.Decimal `json:"prices"`
}

func (c *Client) GetPrice(ctx context.Context, bookID int64) (decimal.Decimal, error) {
	return breaker.Call(ctx, c.breakers, c.cfg.Name,
		func(ctx context.Context) (decimal.Decimal, error) {
			ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			var out bookResponse
			if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d", bookID), nil, &out); err != nil {
				return decimal.Zero, err
			}
			return out.Price, nil
		},
		func(error) (decimal.Decimal, error) {
			return decimal.Zero, nil
		})
}

func (c *Client) GetPrices(ctx context.Context, bookIDs []int64) (map[int64]decimal.Decimal, error) {
	if len(bookIDs) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}
	return breaker.Call(ctx, c.breakers, c.cfg.Name,
		func(ctx context.Context) (map[int64]decimal.Decimal, error) {
			ctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
			defer cancel()

			var out pricesResponse
			if err := c.do(ctx, http.MethodPost, "/api/books/prices", pricesRequest{BookIDs: bookIDs}, &out); err != nil {
				return nil, err
			}
			if out.Prices == nil {
				out.Prices = map[int64]decimal.Decimal{}
			}
			return out.Prices, nil
		},
		func(error) (map[int64]decimal.Decimal, error) {
			zero := make(map[int64]decimal.Decimal, len(bookIDs))
			for _, id := range bookIDs {
				zero[id] = decimal.Zero
			}
			return zero, nil
		})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.BaseURL(ctx)+path, rdr)
	if err != nil {
		return err
	}
	token, err := c.tokens.Mint()
	if err != nil {
		return fmt.Errorf("mint service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
