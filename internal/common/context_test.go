package common

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserIDFromContext(ctx))

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, LoggerFromContext(ctx, fallback))
	assert.Same(t, slog.Default(), LoggerFromContext(ctx, nil))

	scoped := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx = WithLogger(WithUserID(ctx, "counter-7"), scoped)
	assert.Equal(t, "counter-7", UserIDFromContext(ctx))
	assert.Same(t, scoped, LoggerFromContext(ctx, fallback))
}
