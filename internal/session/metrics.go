package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsale_payments_started_total",
		Help: "Payment sessions that reached awaiting_payment, by method.",
	}, []string{"method"})

	paymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsale_payments_confirmed_total",
		Help: "Payments confirmed, by method.",
	}, []string{"method"})

	paymentsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "satsale_payments_expired_total",
		Help: "Payments that expired before confirmation, by method.",
	}, []string{"method"})

	paymentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "satsale_payments_failed_total",
		Help: "Payment sessions that failed during setup.",
	})
)
