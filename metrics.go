package revdb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// dbMetrics are counted whether or not a Registerer was provided; the
// collector exposes them together with the gauges from Stats.
type dbMetrics struct {
	puts          prometheus.Counter
	conflicts     prometheus.Counter
	deletes       prometheus.Counter
	queries       prometheus.Counter
	indexUpdates  prometheus.Counter
	indexRebuilds prometheus.Counter
	saves         prometheus.Counter
	saveFailures  prometheus.Counter
	saveDuration  prometheus.Histogram
}

func newDBMetrics(path string) *dbMetrics {
	labels := prometheus.Labels{"path": path}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "revdb",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &dbMetrics{
		puts:          counter("puts_total", "Document revisions written, including deletion tombstones."),
		conflicts:     counter("conflicts_total", "Writes rejected with a revision conflict."),
		deletes:       counter("deletes_total", "Documents deleted."),
		queries:       counter("queries_total", "View queries run."),
		indexUpdates:  counter("index_updates_total", "Incremental view index updates."),
		indexRebuilds: counter("index_rebuilds_total", "View indexes populated from scratch."),
		saves:         counter("saves_total", "Successful saves."),
		saveFailures:  counter("save_failures_total", "Failed saves."),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "revdb",
			Name:        "save_duration_seconds",
			Help:        "Time spent persisting the database.",
			ConstLabels: labels,
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *dbMetrics) observeSave(dur time.Duration, err error) {
	m.saveDuration.Observe(dur.Seconds())
	if err != nil {
		m.saveFailures.Inc()
	} else {
		m.saves.Inc()
	}
}

func (m *dbMetrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.puts, m.conflicts, m.deletes, m.queries,
		m.indexUpdates, m.indexRebuilds,
		m.saves, m.saveFailures, m.saveDuration,
	}
}

// dbCollector reports the size of a database at scrape time.
type dbCollector struct {
	db *DB

	sequence  *prometheus.Desc
	docs      *prometheus.Desc
	deleted   *prometheus.Desc
	revisions *prometheus.Desc
	indexes   *prometheus.Desc
	indexRows *prometheus.Desc
	size      *prometheus.Desc
}

func newCollector(db *DB) *dbCollector {
	labels := prometheus.Labels{"path": db.path}
	return &dbCollector{
		db: db,
		sequence: prometheus.NewDesc(
			"revdb_sequence",
			"Current global sequence number",
			nil, labels,
		),
		docs: prometheus.NewDesc(
			"revdb_documents",
			"Number of live documents",
			nil, labels,
		),
		deleted: prometheus.NewDesc(
			"revdb_deleted_documents",
			"Number of documents whose head revision is a tombstone",
			nil, labels,
		),
		revisions: prometheus.NewDesc(
			"revdb_revisions",
			"Number of retained document revisions",
			nil, labels,
		),
		indexes: prometheus.NewDesc(
			"revdb_indexes",
			"Number of cached view indexes",
			nil, labels,
		),
		indexRows: prometheus.NewDesc(
			"revdb_index_rows",
			"Total rows across cached view indexes",
			nil, labels,
		),
		size: prometheus.NewDesc(
			"revdb_size_bytes",
			"Size of the persisted database as of the last load or save",
			nil, labels,
		),
	}
}

func (c *dbCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sequence
	ch <- c.docs
	ch <- c.deleted
	ch <- c.revisions
	ch <- c.indexes
	ch <- c.indexRows
	ch <- c.size
	for _, m := range c.db.metrics.all() {
		m.Describe(ch)
	}
}

func (c *dbCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.db.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.sequence, float64(s.Sequence))
	gauge(c.docs, float64(s.Docs))
	gauge(c.deleted, float64(s.DeletedDocs))
	gauge(c.revisions, float64(s.Revisions))
	gauge(c.indexes, float64(s.Indexes))
	gauge(c.indexRows, float64(s.IndexRows))
	gauge(c.size, float64(s.Size))
	for _, m := range c.db.metrics.all() {
		m.Collect(ch)
	}
}
