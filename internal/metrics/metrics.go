// Package metrics exposes Prometheus instrumentation for the gateway.
//
// Metrics:
//
//	webssh_connections_active              gauge: open real-time connections
//	webssh_shutdown_state                  gauge: 0 running, 1 draining, 2 stopped
//	webssh_shutdown_remaining_seconds      gauge: drain countdown
//	webssh_countdown_broadcasts_total      counter: countdown events sent
//	webssh_config_load_failures_total      counter: config sources that fell back to defaults
//	webssh_ssh_sessions_total              counter: bridge sessions by result
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "webssh_connections_active",
	Help: "Number of open real-time client connections.",
})

var ShutdownState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "webssh_shutdown_state",
	Help: "Shutdown state: 0 running, 1 draining, 2 stopped.",
})

var ShutdownRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "webssh_shutdown_remaining_seconds",
	Help: "Seconds left in the drain countdown.",
})

var CountdownBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "webssh_countdown_broadcasts_total",
	Help: "Countdown updates broadcast to connected clients.",
})

var ConfigLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "webssh_config_load_failures_total",
	Help: "Configuration sources rejected in favour of defaults.",
})

// SSHSessions counts terminal bridge sessions by result: "established",
// "restricted", "config_error", "dial_error", "auth_error", "shell_error".
var SSHSessions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webssh_ssh_sessions_total",
	Help: "Terminal bridge sessions by result.",
}, []string{"result"})

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
