package middleware

import (
	"log/slog"
	"net/http"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/logger"
)

// CustomerHeader optionally names the customer acting on the request.
const CustomerHeader = "X-Customer-ID"

// RequestLogger stores a logger enriched with correlation_id, customer_id,
// trace_id and span_id in the request context. Mount it after RequestLogging
// and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(CustomerHeader); id != "" {
				ctx = logger.WithCustomerID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
