package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rental_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_webhook_events_total",
			Help: "Payment provider events by type and processing outcome",
		},
		[]string{"type", "outcome"},
	)

	BookingsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_bookings_created_total",
			Help: "Reservations created by flow",
		},
		[]string{"flow"},
	)

	BookingRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_booking_rejections_total",
			Help: "Reservation requests rejected by reason",
		},
		[]string{"reason"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_booking_transitions_total",
			Help: "Booking state transitions that were applied",
		},
		[]string{"to"},
	)

	BalanceAuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_balance_authorizations_total",
			Help: "Off-session balance authorization attempts by result",
		},
		[]string{"result"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rental_notifications_total",
			Help: "Notifications by kind and status",
		},
		[]string{"kind", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func RecordBookingCreated(flow string) {
	BookingsCreatedTotal.WithLabelValues(flow).Inc()
}

func RecordBookingRejected(reason string) {
	BookingRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordTransition(to string) {
	BookingTransitionsTotal.WithLabelValues(to).Inc()
}

func RecordBalanceAuthorization(result string) {
	BalanceAuthorizationsTotal.WithLabelValues(result).Inc()
}

func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}
