package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rar_api_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rar_api_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})

	transactionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rar_api_transaction_decisions_total",
		Help: "Transaction authorization decisions",
	}, []string{"result"})
)

func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		timer := prometheus.NewTimer(httpLatency.WithLabelValues(c.Request().Method, c.Path()))
		defer timer.ObserveDuration()

		err := next(c)

		status := c.Response().Status
		if e := errorStatus(err); e != 0 {
			status = e
		}
		httpReqTotal.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
		return err
	}
}
