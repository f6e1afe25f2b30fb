package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fitpass_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_checkins_total",
			Help: "Total number of gym check-ins",
		},
		[]string{"plan_type"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_gym_transfers_total",
			Help: "Total number of gym transfer attempts by final status",
		},
		[]string{"status"},
	)

	TransferredCentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fitpass_transferred_cents_total",
			Help: "Total amount transferred to gyms in cents",
		},
	)

	PayoutRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_payout_runs_total",
			Help: "Total number of payout aggregator runs",
		},
		[]string{"status"},
	)

	PayoutRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fitpass_payout_run_duration_seconds",
			Help:    "Payout aggregator run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeferredPayoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fitpass_deferred_payouts_total",
			Help: "Total number of gym payouts deferred below the minimum",
		},
	)

	CarriedBalanceCents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fitpass_carried_balance_cents",
			Help: "Carried (deferred) payout balance per gym in cents",
		},
		[]string{"gym_id"},
	)

	ReportsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_reports_sent_total",
			Help: "Total number of payout reports sent",
		},
		[]string{"status"},
	)

	ReportQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fitpass_report_queue_length",
			Help: "Current length of the payout report queue",
		},
	)

	MembershipsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fitpass_memberships_created_total",
			Help: "Total number of memberships created",
		},
		[]string{"plan_type"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCheckIn(planType string) {
	CheckInsTotal.WithLabelValues(planType).Inc()
}

func RecordTransfer(status string, amountCents int64) {
	TransfersTotal.WithLabelValues(status).Inc()
	if status == "completed" {
		TransferredCentsTotal.Add(float64(amountCents))
	}
}

func RecordPayoutRun(status string, seconds float64) {
	PayoutRunsTotal.WithLabelValues(status).Inc()
	PayoutRunDuration.Observe(seconds)
}

func RecordDeferral() {
	DeferredPayoutsTotal.Inc()
}

func RecordReport(status string) {
	ReportsSentTotal.WithLabelValues(status).Inc()
}

func RecordMembership(planType string) {
	MembershipsCreatedTotal.WithLabelValues(planType).Inc()
}
