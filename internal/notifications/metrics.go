package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riskengine"

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total escalation notifications processed",
		},
		[]string{"channel_type", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)
)

// Send outcomes.
const (
	statusSent         = "sent"
	statusFailed       = "failed"
	statusRenderFailed = "render_failed"
)

func recordNotificationSent(channelType ChannelType, status string) {
	notificationsSent.WithLabelValues(string(channelType), status).Inc()
}

func recordNotificationDuration(channelType ChannelType, duration time.Duration) {
	notificationSendDuration.WithLabelValues(string(channelType)).Observe(duration.Seconds())
}
