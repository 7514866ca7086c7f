package branchauth

import (
	"context"

	"github.com/MrEthical07/branchauth/request"
)

type sourceContextKey struct{}

// WithRequestID attaches a correlation id to ctx. Outbound requests carry it in the
// X-Request-ID header and audit events record it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return request.WithRequestID(ctx, id)
}

// WithSource tags ctx with the surface that triggered an operation ("cli", "http", "cron").
// Audit events record it.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceContextKey{}, source)
}

func sourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	source, _ := ctx.Value(sourceContextKey{}).(string)
	return source
}

func contextMetadata(ctx context.Context, extra map[string]string) map[string]string {
	out := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	if id := request.RequestIDFromContext(ctx); id != "" {
		out["request_id"] = id
	}
	if source := sourceFromContext(ctx); source != "" {
		out["source"] = source
	}
	return out
}
