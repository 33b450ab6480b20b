package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	streamsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstream_bridge_streams_delivered",
		Help: "Count of streams dispatched to listeners, by schema kind.",
	}, []string{"kind"})

	recordsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgstream_bridge_records_delivered",
		Help: "Count of records contained in dispatched streams.",
	})

	batchesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msgstream_bridge_batches_dropped",
		Help: "Count of incoming batches dropped, by reason.",
	}, []string{"reason"})

	listenerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgstream_bridge_listener_errors",
		Help: "Count of errors returned by listeners.",
	})

	bytesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgstream_bridge_ingested_bytes",
		Help: "Count of bytes consumed from the transport.",
	})

	bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msgstream_bridge_sent_bytes",
		Help: "Count of framed bytes written to the sink.",
	})

	pendingStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msgstream_bridge_pending_streams",
		Help: "Streams waiting for the next commit, summed over all bridges.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Dispatch
		streamsDelivered,
		recordsDelivered,
		listenerErrors,
		pendingStreams,

		// Transport
		batchesDropped,
		bytesIngested,
		bytesSent,
	)
}
