package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Orders successfully created.",
	})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_cancelled_total",
		Help: "Orders cancelled, including janitor expiries.",
	})

	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_completed_total",
		Help: "Orders completed.",
	})

	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_expired_total",
		Help: "Pending orders cancelled by the stale-order janitor.",
	})

	ReservationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reservation_rejects_total",
		Help: "Reservations rejected by the inventory ledger, by reason.",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
