package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/client"
)

// WithRequestID sets the X-Request-ID sent by requests made with ctx. The
// same ID is kept when a request is replayed after a refresh.
func WithRequestID(ctx context.Context, id string) context.Context {
	return client.WithRequestID(ctx, id)
}

// RequestIDFromContext returns the ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return client.RequestIDFromContext(ctx)
}
