package middleware

import (
	"context"

	"github.com/broady/hooq"
	"github.com/google/uuid"
)

// BearerAuth returns a before-request hook that sets the Authorization
// header from token. The token function is called per request, so rotating
// credentials are picked up without rebuilding the client.
func BearerAuth(token func() string) hooq.BeforeRequestHook {
	return func(ctx context.Context, cfg *hooq.RequestConfig) error {
		if t := token(); t != "" {
			cfg.SetHeader("Authorization", "Bearer "+t)
		}
		return nil
	}
}

// StaticBearerAuth is BearerAuth with a fixed token.
func StaticBearerAuth(token string) hooq.BeforeRequestHook {
	return BearerAuth(func() string { return token })
}

// RequestID returns a before-request hook that tags each request with a
// fresh UUID in the X-Request-ID header, unless one is already set.
func RequestID() hooq.BeforeRequestHook {
	return func(ctx context.Context, cfg *hooq.RequestConfig) error {
		if cfg.Headers.Get("X-Request-ID") == "" {
			cfg.SetHeader("X-Request-ID", uuid.NewString())
		}
		return nil
	}
}
