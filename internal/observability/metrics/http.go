package metrics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics instruments inbound HTTP requests.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "couponvault"
	}
	meter := provider.Meter(name + "/http")

	requests, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("Inbound HTTP requests."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_request_duration_ms",
		metric.WithDescription("Inbound HTTP request duration in milliseconds."))
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)

		ctx := c.Request.Context()
		h.requests.Add(ctx, 1, attrs)
		h.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
}
