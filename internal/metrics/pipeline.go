package metrics

import (
	"time"

	"github.com/STRATINT/newsdesk/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineCollector records collection pass telemetry. It satisfies the orchestrator's
// Observer interface.
type PipelineCollector struct {
	runs          *prometheus.CounterVec
	items         *prometheus.CounterVec
	enrichCalls   *prometheus.CounterVec
	passDuration  prometheus.Histogram
	runDuration   *prometheus.HistogramVec
	cleanupTotal  prometheus.Counter
	lastSuccessTS *prometheus.GaugeVec
}

// NewPipelineCollector registers the pipeline metrics with reg.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	c := &PipelineCollector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_runs_total",
			Help:      "Source collection runs by terminal status.",
		}, []string{"source", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Collected items by outcome.",
		}, []string{"source", "outcome"}),
		enrichCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_calls_total",
			Help:      "Enrichment calls by result.",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of complete collection passes.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_run_duration_seconds",
			Help:      "Wall time of one source within a pass.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		cleanupTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_deleted_total",
			Help:      "Articles removed by retention cleanup.",
		}),
		lastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per source.",
		}, []string{"source"}),
	}

	for _, col := range []prometheus.Collector{c.runs, c.items, c.enrichCalls, c.passDuration, c.runDuration, c.cleanupTotal, c.lastSuccessTS} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PipelineCollector) ObserveRun(run models.CollectionRun) {
	c.runs.WithLabelValues(run.SourceName, string(run.Status)).Inc()
	c.runDuration.WithLabelValues(run.SourceName).Observe(run.DurationSeconds)
	if run.Status == models.RunStatusSuccess {
		end := run.StartedAt.Add(time.Duration(run.DurationSeconds * float64(time.Second)))
		c.lastSuccessTS.WithLabelValues(run.SourceName).Set(float64(end.Unix()))
	}
}

func (c *PipelineCollector) ObserveItem(source, outcome string) {
	c.items.WithLabelValues(source, outcome).Inc()
}

func (c *PipelineCollector) ObserveEnrichment(ok bool) {
	c.enrichCalls.WithLabelValues(enrichResult(ok)).Inc()
}

func (c *PipelineCollector) ObservePass(d time.Duration) {
	c.passDuration.Observe(d.Seconds())
}

// ObserveCleanup counts articles deleted by one retention run.
func (c *PipelineCollector) ObserveCleanup(deleted int64) {
	c.cleanupTotal.Add(float64(deleted))
}

func enrichResult(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
