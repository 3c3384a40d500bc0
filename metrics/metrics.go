package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_tokens_issued_total",
			Help: "Total number of CSRF tokens issued",
		},
		[]string{"scope"},
	)

	// Validations is labelled with the outcome: accepted, not_post,
	// missing_fields, no_session, not_found, expired, mismatch, store_error
	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_validations_total",
			Help: "Total number of CSRF validations by result",
		},
		[]string{"result"},
	)

	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "csrf_validation_duration_seconds",
			Help:    "Time taken to validate a CSRF token, including the store round trip",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProtectionViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_protection_violations_total",
			Help: "Total number of POST requests submitted without CSRF fields",
		},
		[]string{"mode"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_store_errors_total",
			Help: "Total number of session store errors",
		},
		[]string{"backend", "op"},
	)

	StoreSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_store_swept_total",
			Help: "Total number of expired token records removed by sweeps",
		},
		[]string{"backend"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_notifications_total",
			Help: "Total number of operator notifications by channel and result",
		},
		[]string{"channel", "result"},
	)
)
