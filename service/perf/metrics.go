// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsSubSystemRooms = "rooms"
	metricsSubSystemRTC   = "rtc"
	metricsSubSystemWS    = "ws"
)

type Metrics struct {
	registry *prometheus.Registry

	Rooms                *prometheus.GaugeVec
	Participants         *prometheus.GaugeVec
	StateTransitions     *prometheus.CounterVec
	CloseReasons         *prometheus.CounterVec
	ReconnectAttempts    *prometheus.CounterVec
	DiscardedEvents      *prometheus.CounterVec
	RTPPacketCounters    *prometheus.CounterVec
	RTPPacketBytes       *prometheus.CounterVec
	RTCPeers             *prometheus.GaugeVec
	RTCConnStateCounters *prometheus.CounterVec
	RTCErrors            *prometheus.CounterVec
	WSConnections        *prometheus.GaugeVec
	WSMessageCounters    *prometheus.CounterVec
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	var m Metrics

	if registry != nil {
		m.registry = registry
	} else {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: namespace,
		}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.Rooms = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "active",
			Help:      "Number of active rooms",
		},
		nil,
	)
	m.registry.MustRegister(m.Rooms)

	m.Participants = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "participants",
			Help:      "Number of participant connections by signaling state",
		},
		[]string{"state"},
	)
	m.registry.MustRegister(m.Participants)

	m.StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "state_transitions_total",
			Help:      "Total number of signaling state transitions",
		},
		[]string{"from", "to"},
	)
	m.registry.MustRegister(m.StateTransitions)

	m.CloseReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "closed_total",
			Help:      "Total number of closed participant connections by reason",
		},
		[]string{"reason"},
	)
	m.registry.MustRegister(m.CloseReasons)

	m.ReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnection attempts",
		},
		nil,
	)
	m.registry.MustRegister(m.ReconnectAttempts)

	m.DiscardedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRooms,
			Name:      "discarded_events_total",
			Help:      "Total number of engine events received for closed connections",
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.DiscardedEvents)

	m.RTPPacketCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "rtp_packets_total",
			Help:      "Total number of sent/received RTP packets",
		},
		[]string{"direction", "type"},
	)
	m.registry.MustRegister(m.RTPPacketCounters)

	m.RTPPacketBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "rtp_bytes_total",
			Help:      "Total number of sent/received RTP packet bytes",
		},
		[]string{"direction", "type"},
	)
	m.registry.MustRegister(m.RTPPacketBytes)

	m.RTCPeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "peers",
			Help:      "Number of active peer connections",
		},
		nil,
	)
	m.registry.MustRegister(m.RTCPeers)

	m.RTCConnStateCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "conn_states_total",
			Help:      "Total number of RTC connection state changes",
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.RTCConnStateCounters)

	m.RTCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "errors_total",
			Help:      "Total number of RTC errors",
		},
		[]string{"type"},
	)
	m.registry.MustRegister(m.RTCErrors)

	m.WSConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "connections",
			Help:      "Number of active WebSocket connections",
		},
		nil,
	)
	m.registry.MustRegister(m.WSConnections)

	m.WSMessageCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "messages_total",
			Help:      "Total number of sent/received WebSocket messages",
		},
		[]string{"type", "direction"},
	)
	m.registry.MustRegister(m.WSMessageCounters)

	return &m
}

func (m *Metrics) IncRooms() {
	m.Rooms.WithLabelValues().Inc()
}

func (m *Metrics) DecRooms() {
	m.Rooms.WithLabelValues().Dec()
}

func (m *Metrics) IncParticipants(state string) {
	m.Participants.With(prometheus.Labels{"state": state}).Inc()
}

func (m *Metrics) DecParticipants(state string) {
	m.Participants.With(prometheus.Labels{"state": state}).Dec()
}

func (m *Metrics) IncStateTransitions(from, to string) {
	m.StateTransitions.With(prometheus.Labels{"from": from, "to": to}).Inc()
}

func (m *Metrics) IncCloseReasons(reason string) {
	m.CloseReasons.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *Metrics) IncReconnectAttempts() {
	m.ReconnectAttempts.WithLabelValues().Inc()
}

func (m *Metrics) IncDiscardedEvents(eventType string) {
	m.DiscardedEvents.With(prometheus.Labels{"type": eventType}).Inc()
}

func (m *Metrics) IncRTPPackets(direction, trackType string) {
	m.RTPPacketCounters.With(prometheus.Labels{"direction": direction, "type": trackType}).Inc()
}

func (m *Metrics) AddRTPPacketBytes(direction, trackType string, value int) {
	m.RTPPacketBytes.With(prometheus.Labels{"direction": direction, "type": trackType}).Add(float64(value))
}

func (m *Metrics) IncRTCPeers() {
	m.RTCPeers.WithLabelValues().Inc()
}

func (m *Metrics) DecRTCPeers() {
	m.RTCPeers.WithLabelValues().Dec()
}

func (m *Metrics) IncRTCConnState(state string) {
	m.RTCConnStateCounters.With(prometheus.Labels{"type": state}).Inc()
}

func (m *Metrics) IncRTCErrors(errType string) {
	m.RTCErrors.With(prometheus.Labels{"type": errType}).Inc()
}

func (m *Metrics) IncWSConnections() {
	m.WSConnections.WithLabelValues().Inc()
}

func (m *Metrics) DecWSConnections() {
	m.WSConnections.WithLabelValues().Dec()
}

func (m *Metrics) IncWSMessages(msgType, direction string) {
	m.WSMessageCounters.With(prometheus.Labels{"type": msgType, "direction": direction}).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
