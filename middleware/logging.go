// Package middleware provides reusable request hooks for hooq clients:
// structured request logging, bearer authentication, and request IDs.
package middleware

import (
	"context"
	"log/slog"

	"github.com/broady/hooq"
)

// Logging returns start/finish lifecycle hooks that log each request using
// slog, including method, URL, and duration.
//
//	start, finish := middleware.Logging(logger)
//	client := hooq.NewClient(baseURL).
//	    WithOnStartRequest(start).
//	    WithOnFinishRequest(finish)
func Logging(logger *slog.Logger) (start, finish hooq.LifecycleHook) {
	if logger == nil {
		logger = slog.Default()
	}

	start = func(ctx context.Context, cfg *hooq.RequestConfig) {
		logger.InfoContext(ctx, "request started",
			slog.String("method", cfg.Method),
			slog.String("url", cfg.URL),
		)
	}
	finish = func(ctx context.Context, cfg *hooq.RequestConfig) {
		logger.InfoContext(ctx, "request finished",
			slog.String("method", cfg.Method),
			slog.String("url", cfg.URL),
			slog.Duration("duration", cfg.Elapsed()),
		)
	}
	return start, finish
}
