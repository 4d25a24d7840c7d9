// Package metrics is the ambient observability surface: Prometheus counters
// for delivery outcomes and rate-limit admission, the kind of operational
// visibility the Non-goals exclude only for external provider dashboards,
// not for the pipeline's own health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery counts notification outcomes by channel.
var Delivery = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Total notifications reaching a terminal delivery outcome, by channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

// RateLimitDenied counts Acquire calls that were denied, by channel.
var RateLimitDenied = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_rate_limit_denied_total",
		Help: "Total rate-limit admission denials by channel.",
	},
	[]string{"channel"},
)

// Retries counts scheduled retry attempts by channel.
var Retries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_retries_total",
		Help: "Total delivery retries scheduled by channel.",
	},
	[]string{"channel"},
)
