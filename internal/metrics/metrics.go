// Package metrics holds the prometheus collectors shared by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ServiceTranslator = "translator"
	ServiceLLM        = "llm"

	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// OutboundRequests counts calls to external collaborators by outcome.
	OutboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmly_outbound_requests_total",
			Help: "Total number of requests sent to external collaborators",
		},
		[]string{"service", "status"},
	)

	// OutboundDuration tracks latency of external collaborator calls.
	OutboundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calmly_outbound_request_duration_seconds",
			Help:    "Duration of requests sent to external collaborators",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "status"},
	)

	// ChatFailures counts chat turns answered with the fallback reply, by the
	// pipeline stage that failed.
	ChatFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmly_chat_failures_total",
			Help: "Chat turns answered with the fallback reply",
		},
		[]string{"stage"},
	)

	// OTPDeliveryFailures counts OTP codes that could not be handed to the mailer.
	OTPDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calmly_otp_delivery_failures_total",
			Help: "OTP codes whose delivery failed",
		},
	)
)

// ObserveOutbound records one outbound call.
func ObserveOutbound(service string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	OutboundRequests.WithLabelValues(service, status).Inc()
	OutboundDuration.WithLabelValues(service, status).Observe(time.Since(start).Seconds())
}
