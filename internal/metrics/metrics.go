package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boothbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Booking requests denied by the per-IP rate limiter.",
		},
	)

	notificationTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_tasks_total",
			Help:      "Processed notification tasks by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder emails sent.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookings, rateLimited, notificationTasks, remindersSent)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

// IncBooking counts one booking attempt, e.g. "created", "slot_full".
func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}

func IncNotification(taskType, outcome string) {
	notificationTasks.WithLabelValues(taskType, outcome).Inc()
}

func IncReminderSent() {
	remindersSent.Inc()
}
