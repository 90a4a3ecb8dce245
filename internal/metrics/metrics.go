// Package metrics implements the broker's optional Prometheus
// collectors. A nil *Metrics disables collection with zero overhead,
// the same "pass nil to disable" convention the teacher's adapter
// metrics interfaces use.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the broker exports.
type Metrics struct {
	commands      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	forwarded     *prometheus.CounterVec
	activeServers prometheus.Gauge
	activeClients prometheus.Gauge
	armedNotifs   prometheus.Gauge
}

// New builds a Metrics instance on its own registry and returns it
// alongside an http.Handler serving the text exposition format.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		commands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sbrokerd_commands_total",
			Help: "Total requests handled, by command and resulting status.",
		}, []string{"command", "status"}),
		notifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sbrokerd_notifications_fired_total",
			Help: "Total notifications delivered, by kind.",
		}, []string{"kind"}),
		forwarded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sbrokerd_forwarded_requests_total",
			Help: "Total requests forwarded upstream to a tree-mode master, by command.",
		}, []string{"command"}),
		activeServers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sbrokerd_active_servers",
			Help: "Currently registered servers.",
		}),
		activeClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sbrokerd_active_clients",
			Help: "Currently attached clients.",
		}),
		armedNotifs: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sbrokerd_notifications_armed",
			Help: "Currently armed notifications awaiting a trigger.",
		}),
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordCommand records one handled request.
func (m *Metrics) RecordCommand(command, status string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
}

// RecordNotification records one delivered notification.
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

// RecordForward records one request forwarded upstream.
func (m *Metrics) RecordForward(command string) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(command).Inc()
}

// SetActive updates the server/client gauges to the current counts.
func (m *Metrics) SetActive(servers, clients int) {
	if m == nil {
		return
	}
	m.activeServers.Set(float64(servers))
	m.activeClients.Set(float64(clients))
}

// SetArmedNotifications updates the armed-notification gauge.
func (m *Metrics) SetArmedNotifications(n int) {
	if m == nil {
		return
	}
	m.armedNotifs.Set(float64(n))
}
