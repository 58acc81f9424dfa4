package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal tracks webhook dispatches by kind, status and result
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somicard_notifications_total",
			Help: "Total number of notification dispatches",
		},
		[]string{"kind", "status", "result"},
	)

	// NotificationLatency tracks webhook round-trip latency
	NotificationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "somicard_notification_latency_seconds",
			Help:    "Notification webhook latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// MirrorPublishTotal tracks copies published to the event mirror
	MirrorPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somicard_mirror_publish_total",
			Help: "Total number of notifications published to the event mirror",
		},
		[]string{"kind", "result"},
	)

	// SessionsTotal tracks monitor sessions by terminal outcome
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somicard_monitor_sessions_total",
			Help: "Total number of monitor sessions by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveSessions tracks sessions still awaiting a terminal outcome
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "somicard_monitor_active_sessions",
			Help: "Number of sessions awaiting a receipt",
		},
	)

	// ReceiptPollsTotal tracks receipt RPC polls by result
	ReceiptPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somicard_receipt_polls_total",
			Help: "Total number of receipt polls",
		},
		[]string{"result"},
	)

	// PriceFetchesTotal tracks price feed fetches by result
	PriceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "somicard_price_fetches_total",
			Help: "Total number of price feed fetches",
		},
		[]string{"result"},
	)

	// TokenPrice tracks the USD price currently exposed by the oracle
	TokenPrice = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "somicard_token_price_usd",
			Help: "Current token price in USD exposed by the oracle",
		},
	)
)
