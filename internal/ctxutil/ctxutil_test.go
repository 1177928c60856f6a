package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/archdoc/internal/auth"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ClaimsFromContext(ctx))
	assert.Equal(t, "anonymous", ClientFromContext(ctx))

	ctx = WithClaims(ctx, &auth.Claims{Client: "cli"})
	assert.Equal(t, "cli", ClaimsFromContext(ctx).Client)
	assert.Equal(t, "cli", ClientFromContext(ctx))
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(context.Background(), "req-1")))
}
