package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesGatewayMetrics(t *testing.T) {
	ConnectionsActive.Set(3)
	ShutdownState.Set(1)
	SSHSessions.WithLabelValues("established").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"webssh_connections_active 3",
		"webssh_shutdown_state 1",
		"webssh_shutdown_remaining_seconds",
		"webssh_countdown_broadcasts_total",
		"webssh_config_load_failures_total",
		`webssh_ssh_sessions_total{result="established"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestCountdownBroadcastsCounts(t *testing.T) {
	CountdownBroadcasts.Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "webssh_countdown_broadcasts_total ") {
			if strings.TrimPrefix(line, "webssh_countdown_broadcasts_total ") == "0" {
				t.Error("counter did not move")
			}
			return
		}
	}
	t.Error("counter missing from scrape output")
}
