package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCount            prometheus.Counter
	FetchedMessages      prometheus.Counter
	StoredMessages       prometheus.Counter
	DuplicateMessages    prometheus.Counter
	ConversationsCreated prometheus.Counter
	ValidationFailures   prometheus.Counter
	DroppedMessages      prometheus.Counter
	DeferredReplies      prometheus.Counter
	BotFailures          *prometheus.CounterVec
	RepliesSent          prometheus.Counter
	PollDuration         prometheus.Histogram
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them on reg. Pass
// prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PollCount: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_poll_count",
			Help: "Total number of reconcile runs",
		}),
		FetchedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_fetched_messages",
			Help: "Total number of messages pulled from mailboxes",
		}),
		StoredMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_stored_messages",
			Help: "Total number of messages filed into conversations",
		}),
		DuplicateMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_duplicate_messages",
			Help: "Total number of redelivered messages that were already stored",
		}),
		ConversationsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_conversations_created",
			Help: "Total number of conversations created",
		}),
		ValidationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_validation_failures",
			Help: "Total number of messages skipped as invalid",
		}),
		DroppedMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_dropped_messages",
			Help: "Total number of messages addressed to no registered bot",
		}),
		DeferredReplies: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_deferred_replies",
			Help: "Total number of replies sent to reply chain resolution",
		}),
		BotFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_mail_bot_failures",
			Help: "Total number of per-bot batches that failed, by error kind",
		}, []string{"kind"}),
		RepliesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_mail_replies_sent",
			Help: "Total number of agent replies delivered over SMTP",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_mail_poll_duration_seconds",
			Help:    "Time spent in one reconcile run",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_mail_http_requests",
			Help: "Total number of API requests, by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_mail_http_request_duration_seconds",
			Help:    "API request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
