package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_frames_total", Help: "Raw frames read from the candle stream"},
		[]string{"stream"},
	)
	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_parse_errors_total", Help: "Frames discarded as malformed"},
		[]string{"stream"},
	)
	EventsDerivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_events_derived_total", Help: "Closed candles turned into signal events"},
		[]string{"stream", "signal"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_reconnects_scheduled_total", Help: "Reconnect attempts scheduled after a transport failure"},
		[]string{"stream"},
	)
	FeedConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_feed_connected", Help: "1 while the active feed connection is open"},
	)

	EventsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_events_delivered_total", Help: "Events queued to subscribers"},
	)
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_events_dropped_total", Help: "Events evicted from full subscriber queues"},
	)
	StaleEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_stale_events_total", Help: "Events discarded because their feed generation was replaced"},
	)
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_subscribers", Help: "Current subscriber count"},
	)
	ReconfiguresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "relay_reconfigures_total", Help: "Successful feed reconfigurations"},
	)

	SinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_sink_errors_total", Help: "Failed deliveries to external sinks"},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		FramesTotal, ParseErrorsTotal, EventsDerivedTotal, ReconnectsTotal, FeedConnected,
		EventsDeliveredTotal, EventsDroppedTotal, StaleEventsTotal, Subscribers, ReconfiguresTotal,
		SinkErrorsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
