// Package metrics collects the counters of one batch run and can push them to
// a Prometheus Pushgateway.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "chainprices"

// Recorder holds the metrics of a single run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	filesParsed     *prometheus.CounterVec
	fileErrors      *prometheus.CounterVec
	recordsParsed   *prometheus.CounterVec
	chainProducts   *prometheus.GaugeVec
	chainDuration   *prometheus.HistogramVec
	chainFailures   *prometheus.CounterVec
	mergedProducts  prometheus.Gauge
	storedProducts  *prometheus.CounterVec
	lastRunSuccess  prometheus.Gauge
	lastRunFinished prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		filesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_files_parsed_total",
			Help:      "Feed files parsed, per chain.",
		}, []string{"chain"}),
		fileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_file_errors_total",
			Help:      "Feed files that could not be parsed, per chain.",
		}, []string{"chain"}),
		recordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_records_total",
			Help:      "Price records accepted from feed files, per chain.",
		}, []string{"chain"}),
		chainProducts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_products",
			Help:      "Products yielded by a chain in the last run.",
		}, []string{"chain"}),
		chainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_fetch_duration_seconds",
			Help:      "Time spent fetching and parsing one chain.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"chain"}),
		chainFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_failures_total",
			Help:      "Chains that produced no products.",
		}, []string{"chain"}),
		mergedProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_products",
			Help:      "Distinct barcodes in the last batch.",
		}),
		storedProducts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_products_total",
			Help:      "Persistence outcomes per product.",
		}, []string{"outcome"}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last batch succeeded.",
		}),
		lastRunFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last batch finished.",
		}),
	}

	r.registry.MustRegister(
		r.filesParsed,
		r.fileErrors,
		r.recordsParsed,
		r.chainProducts,
		r.chainDuration,
		r.chainFailures,
		r.mergedProducts,
		r.storedProducts,
		r.lastRunSuccess,
		r.lastRunFinished,
	)
	return r
}

// Registry exposes the run's registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) FileParsed(chainID string, records int) {
	r.filesParsed.WithLabelValues(chainID).Inc()
	r.recordsParsed.WithLabelValues(chainID).Add(float64(records))
}

func (r *Recorder) FileFailed(chainID string) {
	r.fileErrors.WithLabelValues(chainID).Inc()
}

func (r *Recorder) ChainFetched(chainID string, products int, elapsed time.Duration) {
	r.chainProducts.WithLabelValues(chainID).Set(float64(products))
	r.chainDuration.WithLabelValues(chainID).Observe(elapsed.Seconds())
}

func (r *Recorder) ChainFailed(chainID string) {
	r.chainProducts.WithLabelValues(chainID).Set(0)
	r.chainFailures.WithLabelValues(chainID).Inc()
}

func (r *Recorder) ProductStored(inserted bool) {
	if inserted {
		r.storedProducts.WithLabelValues("inserted").Inc()
		return
	}
	r.storedProducts.WithLabelValues("updated").Inc()
}

func (r *Recorder) ProductFailed() {
	r.storedProducts.WithLabelValues("error").Inc()
}

// RunFinished records the batch outcome.
func (r *Recorder) RunFinished(merged int, success bool, at time.Time) {
	r.mergedProducts.Set(float64(merged))
	if success {
		r.lastRunSuccess.Set(1)
	} else {
		r.lastRunSuccess.Set(0)
	}
	r.lastRunFinished.Set(float64(at.Unix()))
}

// Push sends the run's metrics to the Pushgateway at url under job.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
