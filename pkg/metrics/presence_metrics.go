// Package metrics exposes the Prometheus collectors for presencehub.
//
// Collectors register once with the default registry; every method is safe
// to call on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the presencehub collectors.
type Metrics struct {
	// ActiveChannels is the number of registered duplex channels.
	ActiveChannels prometheus.Gauge

	// ConnectedUsers is the number of users with at least one channel.
	ConnectedUsers prometheus.Gauge

	// MessagesSent counts frames accepted by a channel's outbound queue.
	MessagesSent prometheus.Counter

	// ChannelsPruned counts channels removed because a send failed.
	ChannelsPruned prometheus.Counter

	// Heartbeats counts MarkActive calls.
	Heartbeats prometheus.Counter

	// Flushes counts durable flushes. Labels: result (success|error)
	Flushes *prometheus.CounterVec

	// FlushedUsers counts user rows handed to the durable store.
	FlushedUsers prometheus.Counter

	// FlushDuration measures a durable flush in seconds.
	FlushDuration prometheus.Histogram

	// PendingFlush is the size of the pending flush set after each drain.
	PendingFlush prometheus.Gauge

	// RelayMessages counts relayed messages. Labels: result (delivered|heartbeat|invalid)
	RelayMessages *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide collectors, registering them on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			ActiveChannels: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "presencehub_active_channels",
				Help: "Current number of registered duplex channels",
			}),
			ConnectedUsers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "presencehub_connected_users",
				Help: "Current number of users with at least one open channel",
			}),
			MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "presencehub_messages_sent_total",
				Help: "Total number of frames queued to channels",
			}),
			ChannelsPruned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "presencehub_channels_pruned_total",
				Help: "Total number of channels pruned after a failed send",
			}),
			Heartbeats: promauto.NewCounter(prometheus.CounterOpts{
				Name: "presencehub_heartbeats_total",
				Help: "Total number of activity marks",
			}),
			Flushes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "presencehub_flushes_total",
				Help: "Total number of durable activity flushes by result",
			}, []string{"result"}),
			FlushedUsers: promauto.NewCounter(prometheus.CounterOpts{
				Name: "presencehub_flushed_users_total",
				Help: "Total number of user activity rows written to the durable store",
			}),
			FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "presencehub_flush_duration_seconds",
				Help:    "Duration of durable activity flushes in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}),
			PendingFlush: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "presencehub_pending_flush_users",
				Help: "Users waiting for the next durable flush",
			}),
			RelayMessages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "presencehub_relay_messages_total",
				Help: "Total number of relayed notification messages by result",
			}, []string{"result"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.ActiveChannels.Inc()
}

func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.ActiveChannels.Dec()
}

func (m *Metrics) SetConnectedUsers(n int) {
	if m == nil {
		return
	}
	m.ConnectedUsers.Set(float64(n))
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

func (m *Metrics) ChannelPruned() {
	if m == nil {
		return
	}
	m.ChannelsPruned.Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

// FlushCompleted records one flush attempt.
func (m *Metrics) FlushCompleted(users int, seconds float64, err error) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(seconds)
	if err != nil {
		m.Flushes.WithLabelValues("error").Inc()
		return
	}
	m.Flushes.WithLabelValues("success").Inc()
	m.FlushedUsers.Add(float64(users))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingFlush.Set(float64(n))
}

func (m *Metrics) RelayMessage(result string) {
	if m == nil {
		return
	}
	m.RelayMessages.WithLabelValues(result).Inc()
}
