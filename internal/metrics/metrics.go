// Package metrics bridges the adapter's four stats snapshots onto
// Prometheus collectors. Every value here is sourced
// from a snapshot the owning component already maintains — these gauges
// never accumulate state of their own, so GaugeFunc (rather than Counter)
// is the right collector: it mirrors, on every scrape, a value someone
// else owns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumduan/settrade-feed-adapter/internal/dispatcher"
	"github.com/lumduan/settrade-feed-adapter/internal/normalizer"
	"github.com/lumduan/settrade-feed-adapter/internal/transport"
)

// Registry wraps the Prometheus collectors mirroring the adapter's stats
// surfaces. It holds no counters of its own.
type Registry struct {
	collectors []prometheus.GaugeFunc
}

// NewRegistry registers GaugeFuncs that read live values from disp, norm,
// and trans on every Prometheus scrape.
func NewRegistry(disp *dispatcher.Dispatcher, norm *normalizer.Normalizer, trans *transport.Controller) *Registry {
	r := &Registry{}

	gauge := func(name, help string, read func() float64) {
		r.collectors = append(r.collectors, promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, read))
	}

	gauge("feedadapter_dispatcher_total_pushed", "Total events pushed into the dispatcher queue.",
		func() float64 { return float64(disp.Stats().TotalPushed) })
	gauge("feedadapter_dispatcher_total_polled", "Total events polled out of the dispatcher queue.",
		func() float64 { return float64(disp.Stats().TotalPolled) })
	gauge("feedadapter_dispatcher_total_dropped", "Total events dropped due to the dispatcher queue being full.",
		func() float64 { return float64(disp.Stats().TotalDropped) })
	gauge("feedadapter_dispatcher_queue_len", "Current number of events queued in the dispatcher.",
		func() float64 { return float64(disp.Stats().QueueLen) })
	gauge("feedadapter_dispatcher_max_len", "Configured dispatcher queue capacity.",
		func() float64 { return float64(disp.Stats().MaxLen) })
	gauge("feedadapter_dispatcher_drop_rate_ema", "Exponentially-smoothed dispatcher drop rate, in [0, 1].",
		func() float64 { return disp.Health().DropRateEMA })
	gauge("feedadapter_dispatcher_utilization", "Dispatcher queue utilization, in [0, 1].",
		func() float64 { return disp.Health().Utilization })

	gauge("feedadapter_normalizer_messages_parsed", "Total inbound messages successfully normalized into an event.",
		func() float64 { return float64(norm.Stats().MessagesParsed) })
	gauge("feedadapter_normalizer_parse_errors", "Total inbound messages that failed protobuf decode.",
		func() float64 { return float64(norm.Stats().ParseErrors) })
	gauge("feedadapter_normalizer_callback_errors", "Total consumer callback invocations that panicked.",
		func() float64 { return float64(norm.Stats().CallbackErrors) })

	gauge("feedadapter_transport_messages_received", "Total MQTT messages received by the transport controller.",
		func() float64 { return float64(trans.Stats().MessagesReceived) })
	gauge("feedadapter_transport_callback_errors", "Total callback panics caught by the transport controller.",
		func() float64 { return float64(trans.Stats().CallbackErrors) })
	gauge("feedadapter_transport_reconnect_count", "Total successful reconnects since the controller was created.",
		func() float64 { return float64(trans.Stats().ReconnectCount) })
	gauge("feedadapter_transport_state", "Current transport state (0=INIT,1=CONNECTING,2=CONNECTED,3=RECONNECTING,4=SHUTDOWN).",
		func() float64 { return float64(trans.Stats().CurrentState) })

	return r
}

// Handler returns an HTTP handler exposing the registered collectors.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
