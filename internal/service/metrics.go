package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	otpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marks_access_otp_verifications_total",
			Help: "OTP verification attempts by result.",
		},
		[]string{"result"},
	)

	remindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marks_access_deadline_reminders_total",
		Help: "Overdue deadline reminders sent.",
	})

	completionReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marks_access_completion_reports_total",
			Help: "Global completion evaluations by outcome.",
		},
		[]string{"outcome"},
	)
)
