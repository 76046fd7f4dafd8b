package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLookup struct {
	url string
	err error
}

func (f fakeLookup) ServiceURL(context.Context, string) (string, error) { return f.url, f.err }

func TestResolverBaseURL(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	assert.Equal(t, "http://fixed:8082", NewResolver(nil, "book-inventory-service", "http://fixed:8082", log).BaseURL(ctx))

	found := NewResolver(fakeLookup{url: "http://10.0.0.5:8082"}, "book-inventory-service", "http://fixed:8082", log)
	assert.Equal(t, "http://10.0.0.5:8082", found.BaseURL(ctx))

	missing := NewResolver(fakeLookup{err: errors.New("no healthy instances")}, "book-inventory-service", "http://fixed:8082", log)
	assert.Equal(t, "http://fixed:8082", missing.BaseURL(ctx))
}
