package clmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SightingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_sightings_total",
			Help: "Requests offered to the visitor tracker, by result (tracked, skipped, error).",
		},
		[]string{"result"},
	)

	CookiesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_cookies_issued_total",
			Help: "Visitor cookie decisions, by result (token, sentinel, kept, error).",
		},
		[]string{"result"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		SightingsTotal,
		CookiesIssuedTotal,
	)
}
