// Package metrics exposes call activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/wirecall/internal/callengine"
	"github.com/vovakirdan/wirecall/internal/core"
)

// Metrics records call activity. It is a core.Handler; register it next to
// the application handler with core.MultiHandler.
type Metrics struct {
	core.NopHandler

	registry *prometheus.Registry

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	disconnectsTotal *prometheus.CounterVec

	// Membership Metrics
	membershipEventsTotal *prometheus.CounterVec

	// Aux Stream Metrics
	auxStreamsOpen prometheus.Gauge

	mu sync.Mutex
	// open tracks calls seen so far and their bound aux streams.
	open map[callengine.CallID]int
}

var _ core.Handler = (*Metrics)(nil)

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecall_calls_total",
				Help: "Total number of calls by direction",
			},
			[]string{"direction"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wirecall_calls_active",
				Help: "Number of calls not yet disconnected",
			},
		),
		disconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecall_disconnects_total",
				Help: "Total number of finished calls by release reason",
			},
			[]string{"reason"},
		),
		membershipEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirecall_membership_events_total",
				Help: "Total number of membership events by kind",
			},
			[]string{"kind"},
		),
		auxStreamsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wirecall_aux_streams_open",
				Help: "Number of auxiliary video streams bound to a track",
			},
		),
		open: make(map[callengine.CallID]int),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// observe counts a call the first time any callback mentions it.
// Outgoing calls have no creation callback. Callers hold m.mu.
func (m *Metrics) observe(call *core.Call) {
	if call == nil {
		return
	}
	if _, ok := m.open[call.ID]; ok {
		return
	}
	m.open[call.ID] = 0
	m.callsTotal.WithLabelValues(call.Direction.String()).Inc()
	m.callsActive.Inc()
}

func (m *Metrics) OnIncomingCall(call *core.Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)
}

func (m *Metrics) OnRinging(call *core.Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)
}

func (m *Metrics) OnConnected(call *core.Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)
}

func (m *Metrics) OnDisconnected(call *core.Call, reason core.DisconnectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)
	m.release(call.ID, reason)
}

// OnVideoActivationDeclined closes a call the core discarded without a
// disconnect. A parked dial was never reported, so only calls already
// counted are released.
func (m *Metrics) OnVideoActivationDeclined(err *core.CallError) {
	if err == nil || err.Call == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[err.Call.ID]; !ok {
		return
	}
	m.release(err.Call.ID, core.ActivationDeclinedReason(err.Call))
}

// release drops an open call. Callers hold m.mu.
func (m *Metrics) release(id callengine.CallID, reason core.DisconnectReason) {
	m.auxStreamsOpen.Sub(float64(m.open[id]))
	delete(m.open, id)
	m.callsActive.Dec()
	m.disconnectsTotal.WithLabelValues(reason.Kind.String()).Inc()
}

func (m *Metrics) OnCallMembershipChanged(call *core.Call, ev core.MembershipEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)
	m.membershipEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
}

func (m *Metrics) OnMediaChanged(call *core.Call, ev core.MediaEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(call)

	switch {
	case ev.Kind == core.MediaAuxStreamOpened && ev.On:
		m.open[call.ID]++
		m.auxStreamsOpen.Inc()
	case ev.Kind == core.MediaAuxStreamClosed && m.open[call.ID] > 0:
		m.open[call.ID]--
		m.auxStreamsOpen.Dec()
	}
}
