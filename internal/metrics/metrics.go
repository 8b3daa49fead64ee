package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_sessions_started_total",
		Help: "Sessions registered on a machine.",
	})

	SessionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundry_session_rejections_total",
		Help: "Session starts refused, by reason.",
	}, []string{"reason"})

	Pickups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_pickups_total",
		Help: "Confirmed pickups.",
	})

	PickupDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "laundry_pickup_delay_minutes",
		Help:    "Recorded delay beyond the grace period at pickup.",
		Buckets: []float64{0, 1, 5, 10, 15, 30, 60, 120, 240},
	})

	VerifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_verify_failures_total",
		Help: "Rejected verification codes.",
	})

	FinishNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundry_finish_notifications_total",
		Help: "Finish notification attempts by outcome (sent, cached, failed).",
	}, []string{"outcome"})

	ConditionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundry_condition_changes_total",
		Help: "Machine condition changes by target condition.",
	}, []string{"condition"})

	VacancyAlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_vacancy_alerts_dropped_total",
		Help: "Vacancy alerts dropped because the worker queue was full.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
