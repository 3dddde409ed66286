package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "ingests_total",
		Help:      "Detection events received, by outcome",
	}, []string{"outcome"}) // recognized, unrecognized, bad_request, error

	DeviceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "device_fetches_total",
		Help:      "Side-channel image fetches from the device, by result",
	}, []string{"result"}) // ok, timeout, status, error

	DeviceFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facehook",
		Name:      "device_fetch_duration_seconds",
		Help:      "Duration of side-channel image fetches",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	StoredArtifacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "artifacts_stored_total",
		Help:      "Image artifacts written to storage, by source",
	}, []string{"source"}) // upload, device

	DiscardedArtifacts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "artifacts_discarded_total",
		Help:      "Uploads deleted because the event was unrecognized",
	})

	SweptArtifacts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "artifacts_swept_total",
		Help:      "Artifacts deleted by the retention sweep",
	})

	LatestRecordTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facehook",
		Name:      "latest_record_timestamp_seconds",
		Help:      "Unix time of the latest stored recognition record",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facehook",
		Name:      "publish_failures_total",
		Help:      "Recognition events that could not be published to NATS",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facehook",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
