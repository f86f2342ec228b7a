package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はプロトコル処理のカウンタ。nil の場合は何も記録しない。
type Metrics struct {
	received     *prometheus.CounterVec
	sent         *prometheus.CounterVec
	decodeErrors prometheus.Counter
	unaddressed  prometheus.Counter
	sendErrors   prometheus.Counter
	nodes        prometheus.Gauge
	devices      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echonet",
			Name:      "messages_received_total",
			Help:      "Number of decoded ECHONET Lite messages by ESV.",
		}, []string{"esv"}),
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echonet",
			Name:      "messages_sent_total",
			Help:      "Number of sent ECHONET Lite messages by ESV.",
		}, []string{"esv"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "echonet",
			Name:      "decode_errors_total",
			Help:      "Number of dropped malformed frames.",
		}),
		unaddressed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "echonet",
			Name:      "unaddressed_messages_total",
			Help:      "Number of messages whose destination matched no local device.",
		}),
		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "echonet",
			Name:      "send_errors_total",
			Help:      "Number of messages the transport failed to send.",
		}),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "echonet",
			Name:      "nodes",
			Help:      "Number of known nodes including this node.",
		}),
		devices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "echonet",
			Name:      "devices",
			Help:      "Number of known devices over all nodes.",
		}),
	}
}

func (m *Metrics) messageReceived(esv string) {
	if m != nil {
		m.received.WithLabelValues(esv).Inc()
	}
}

func (m *Metrics) messageSent(esv string) {
	if m != nil {
		m.sent.WithLabelValues(esv).Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) unaddressedMessage() {
	if m != nil {
		m.unaddressed.Inc()
	}
}

func (m *Metrics) sendError() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

func (m *Metrics) setInventory(nodes, devices int) {
	if m != nil {
		m.nodes.Set(float64(nodes))
		m.devices.Set(float64(devices))
	}
}
