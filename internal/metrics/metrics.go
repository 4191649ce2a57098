// Package metrics exports ingestion outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cognicore/studyindex/pkg/studyindex/ingest"
)

const namespace = "studyindex"

// Recorder counts ingestion outcomes. It implements ingest.Observer.
type Recorder struct {
	registry  *prometheus.Registry
	files     *prometheus.CounterVec
	documents *prometheus.CounterVec
	studies   *prometheus.CounterVec
	warnings  *prometheus.CounterVec
	duration  prometheus.Histogram
	lastRun   prometheus.Gauge
}

// New registers the ingestion metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files seen by ingestion, by status.",
		}, []string{"status"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Document rows written, by outcome.",
		}, []string{"outcome"}),
		studies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "studies_total",
			Help:      "Study reconciliations, by outcome.",
		}, []string{"outcome"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_warnings_total",
			Help:      "Extraction warnings, by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time to extract and reconcile one file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_file_timestamp_seconds",
			Help:      "Unix time of the last processed file.",
		}),
	}
	r.registry.MustRegister(r.files, r.documents, r.studies, r.warnings, r.duration, r.lastRun)
	return r
}

// FileDone records one file outcome.
func (r *Recorder) FileDone(o ingest.FileOutcome) {
	r.files.WithLabelValues(string(o.Status)).Inc()
	if o.Status == ingest.StatusSkipped {
		return
	}
	r.duration.Observe(o.Duration.Seconds())
	r.lastRun.SetToCurrentTime()
	if o.Status != ingest.StatusIngested {
		return
	}
	r.documents.WithLabelValues(string(o.Result.Document)).Inc()
	r.studies.WithLabelValues(string(o.Result.Study)).Inc()
	for _, w := range o.Warnings {
		r.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics for the node exporter textfile
// collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
