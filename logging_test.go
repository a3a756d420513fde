package bkmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", CorrelationID(ctx))
}

func TestCorrelationIDMintedWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, CorrelationID(ctx))
	assert.NotEqual(t, "no-correlation-id", CorrelationID(ctx))
}

func TestCorrelationIDFallback(t *testing.T) {
	assert.Equal(t, "no-correlation-id", CorrelationID(context.Background()))
}
