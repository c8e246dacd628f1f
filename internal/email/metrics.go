package email

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marks_access_notifications_total",
		Help: "Notification attempts by type and outcome.",
	},
	[]string{"type", "outcome"},
)
