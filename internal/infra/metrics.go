package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WalletMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_wallet_movements_total",
		Help: "Total number of wallet ledger rows written",
	}, []string{"type", "related_type"})

	InsufficientFundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_insufficient_funds_total",
		Help: "Total number of debits rejected for insufficient balance",
	})

	OrdersProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_orders_processed_total",
		Help: "Total number of orders moved to processing by a reseller",
	}, []string{"mode"})

	PaymentsInitializedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payments_initialized_total",
		Help: "Total number of payments initialized with the gateway",
	}, []string{"type"})

	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payments_settled_total",
		Help: "Total number of payments moved to a final status",
	}, []string{"type", "status", "source"})

	SettlementReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_settlement_replays_total",
		Help: "Total number of settlement attempts that found the payment already final",
	}, []string{"source"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_webhooks_received_total",
		Help: "Total number of gateway webhooks received",
	}, []string{"event", "result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})

	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_redemptions_total",
		Help: "Total number of redeem attempts",
	}, []string{"result"})

	OutboxEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_outbox_events_published_total",
		Help: "Total number of outbox events published to Kafka",
	})

	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_outbox_publish_failures_total",
		Help: "Total number of failed outbox publish batches",
	})

	NotificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_notifications_dropped_total",
		Help: "Total number of notifications that failed to persist or push",
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
