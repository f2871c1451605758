package httpapi

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Chat API requests by operation and HTTP status.",
		},
		[]string{"op", "status"},
	)

	attachmentBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_attachment_bytes_total",
			Help: "Accepted attachment payload bytes.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, attachmentBytesTotal)
}
