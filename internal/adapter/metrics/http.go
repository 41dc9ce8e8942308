package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	apiRoutePrefix = "/api/"
	broadcastRoute = "/api/broadcast"
)

// Admin broadcast outcomes, derived from the response status.
const (
	BroadcastOutcomeSent        = "sent"
	BroadcastOutcomeRejected    = "rejected"
	BroadcastOutcomeRateLimited = "rate_limited"
	BroadcastOutcomeUnavailable = "unavailable"
)

// HTTPMetrics covers the admin /api routes. Probes, /version and /metrics are not recorded.
type HTTPMetrics struct {
	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	BroadcastOutcomes *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers admin API metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin API requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin API request latency, including any fan-out triggered by the request.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"method", "route"}),
		BroadcastOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "broadcasts_total",
			Help:      "POST /api/broadcast requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Requests, m.RequestDuration, m.BroadcastOutcomes)
	return m
}

// Middleware records every request on an /api route. It must sit outside the error
// rendering middleware so the final status is known.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !strings.HasPrefix(route, apiRoutePrefix) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			status := responseStatus(c, err)
			method := c.Request().Method

			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			if route == broadcastRoute {
				m.BroadcastOutcomes.WithLabelValues(broadcastOutcome(status)).Inc()
			}
			return err
		}
	}
}

// responseStatus prefers the code of an echo.HTTPError that has not been written yet.
func responseStatus(c echo.Context, err error) int {
	var httpErr *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return c.Response().Status
}

func broadcastOutcome(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return BroadcastOutcomeRateLimited
	case status == http.StatusServiceUnavailable:
		return BroadcastOutcomeUnavailable
	case status >= http.StatusBadRequest:
		return BroadcastOutcomeRejected
	default:
		return BroadcastOutcomeSent
	}
}
