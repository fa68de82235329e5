package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(streamFramesTotal, streamsActive)
}

var (
	streamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_frames_total",
			Help: "SSE frames written, labeled by kind (progress/text/final/error).",
		},
		[]string{"kind"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streams_active",
			Help: "Currently open SSE streams.",
		},
	)
)

func IncStreamFrame(kind string) {
	streamFramesTotal.WithLabelValues(norm(kind)).Inc()
}

func StreamOpened() { streamsActive.Inc() }
func StreamClosed() { streamsActive.Dec() }
