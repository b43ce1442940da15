package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// These are the metrics functions exposed by the package. By default they are all
// NOP functions to minimize overhead when metrics are not enabled. The 'addImagefetchMetrics'
// function replaces them with functions having implementations if metrics are
// enabled.

var IncCacheHits withLabel = func(string) {}
var IncCacheMisses withLabel = func(string) {}
var IncDownloads noLabel = func() {}
var IncDownloadJoins noLabel = func() {}
var IncDownloadFailures noLabel = func() {}
var IncDownloadCancels noLabel = func() {}
var IncBlacklistDrops noLabel = func() {}
var DeltaMemoryBytes delta = func(float64) {}
var DeltaDiskBytes delta = func(float64) {}
var IncImageEndpointHits noLabel = func() {}
var IncApiErrorResults noLabel = func() {}

type withLabel func(string)
type noLabel func()
type delta func(float64)

// tier label values
const (
	Memory = "memory"
	Disk   = "disk"
)

const (
	namespace                 = "imagefetch"
	cache_hits_total          = "cache_hits_total"
	cache_misses_total        = "cache_misses_total"
	downloads_total           = "downloads_total"
	download_joins_total      = "download_joins_total"
	download_failures_total   = "download_failures_total"
	download_cancels_total    = "download_cancels_total"
	blacklist_drops_total     = "blacklist_drops_total"
	memory_cache_bytes        = "memory_cache_bytes"
	disk_cache_bytes          = "disk_cache_bytes"
	image_endpoint_hits_total = "image_endpoint_hits_total"
	api_errors_total          = "api_errors_total"
	tier_label                = "tier"
)

// addImagefetchMetrics creates all the imagefetch metrics and registers them with the
// passed registry. It also assigns a function to actually implement each metric.
// Unless this function is called, all the metric functions exposed by the package
// will be NOP functions.
func addImagefetchMetrics(reg prometheus.Registerer) {
	f := promauto.With(reg)

	cacheHits := f.NewCounterVec(
		prometheus.CounterOpts{
			Name:      cache_hits_total,
			Namespace: namespace,
			Help:      "Total requests satisfied by a cache tier",
		},
		[]string{tier_label},
	)
	IncCacheHits = func(tier string) {
		cacheHits.With(prometheus.Labels{tier_label: tier}).Add(1)
	}

	///
	cacheMisses := f.NewCounterVec(
		prometheus.CounterOpts{
			Name:      cache_misses_total,
			Namespace: namespace,
			Help:      "Total requests that fell through a cache tier",
		},
		[]string{tier_label},
	)
	IncCacheMisses = func(tier string) {
		cacheMisses.With(prometheus.Labels{tier_label: tier}).Add(1)
	}

	///
	downloads := f.NewCounter(
		prometheus.CounterOpts{
			Name:      downloads_total,
			Namespace: namespace,
			Help:      "Total network downloads started",
		},
	)
	IncDownloads = func() {
		downloads.Add(1)
	}

	///
	joins := f.NewCounter(
		prometheus.CounterOpts{
			Name:      download_joins_total,
			Namespace: namespace,
			Help:      "Total requests that attached to a download already in flight",
		},
	)
	IncDownloadJoins = func() {
		joins.Add(1)
	}

	///
	failures := f.NewCounter(
		prometheus.CounterOpts{
			Name:      download_failures_total,
			Namespace: namespace,
			Help:      "Total downloads that failed, including downloads that could not be decoded",
		},
	)
	IncDownloadFailures = func() {
		failures.Add(1)
	}

	///
	cancels := f.NewCounter(
		prometheus.CounterOpts{
			Name:      download_cancels_total,
			Namespace: namespace,
			Help:      "Total downloads canceled because every waiter went away",
		},
	)
	IncDownloadCancels = func() {
		cancels.Add(1)
	}

	///
	drops := f.NewCounter(
		prometheus.CounterOpts{
			Name:      blacklist_drops_total,
			Namespace: namespace,
			Help:      "Total requests dropped because the URL previously failed",
		},
	)
	IncBlacklistDrops = func() {
		drops.Add(1)
	}

	///
	memBytes := f.NewGauge(
		prometheus.GaugeOpts{
			Name:      memory_cache_bytes,
			Namespace: namespace,
			Help:      "Decoded image bytes held in the memory cache",
		},
	)
	DeltaMemoryBytes = func(delta float64) {
		memBytes.Add(delta)
	}

	///
	diskBytes := f.NewGauge(
		prometheus.GaugeOpts{
			Name:      disk_cache_bytes,
			Namespace: namespace,
			Help:      "Encoded image bytes held in the disk store (independent of file system overhead)",
		},
	)
	DeltaDiskBytes = func(delta float64) {
		diskBytes.Add(delta)
	}

	///
	endpointHits := f.NewCounter(
		prometheus.CounterOpts{
			Name:      image_endpoint_hits_total,
			Namespace: namespace,
			Help:      "Total calls to the /image endpoint",
		},
	)
	IncImageEndpointHits = func() {
		endpointHits.Add(1)
	}

	///
	apiErrors := f.NewCounter(
		prometheus.CounterOpts{
			Name:      api_errors_total,
			Namespace: namespace,
			Help:      "Total calls to the /image endpoint that resulted in errors (bad request, not found, timeout)",
		},
	)
	IncApiErrorResults = func() {
		apiErrors.Add(1)
	}
}
