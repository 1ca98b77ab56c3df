package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voiceagent"

var (
	// Request metrics
	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "route", "status"},
	)

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route"},
	)

	// Metering metrics
	UsageRecordsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage records appended to the ledger",
		},
		[]string{"call_type"},
	)

	UsageEventsDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_dropped_total",
			Help:      "Usage events that could not be recorded",
		},
		[]string{"reason"},
	)

	UsageRetriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_retries_total",
			Help:      "Replays of failed usage events by outcome",
		},
		[]string{"outcome"},
	)

	// Billing metrics
	PackagePurchasesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "package_purchases_total",
		Help:      "Minute package purchases",
	})

	InvoicesGeneratedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoices_generated_total",
		Help:      "Invoices generated",
	})

	InvoiceExportsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_exports_total",
			Help:      "Invoice export attempts by result",
		},
		[]string{"result"},
	)

	// Lifecycle metrics
	TenantTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_transitions_total",
			Help:      "Tenant status transitions by target status",
		},
		[]string{"to"},
	)
)

// Middleware records request count and latency per matched route
func Middleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		APIRequestCounter.WithLabelValues(service, method, route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDurationHistogram.WithLabelValues(service, method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
