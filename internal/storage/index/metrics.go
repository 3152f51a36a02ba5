package index

import (
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

var indexOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "index",
	Name:      "operations_total",
	Help:      "Index table mutations by index and operation.",
}, []string{"index", "op"})

// Register registers the index metrics with reg.
func Register(reg prometheus.Registerer) error {
	if err := reg.Register(indexOperations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
	}
	return nil
}

// NewCollector returns a collector for the backend's storage engine, or nil
// when the backend has nothing to report.
func NewCollector(b Backend) prometheus.Collector {
	if pb, ok := b.(*pebbleBackend); ok {
		return newPebbleCollector(pb.db)
	}
	return nil
}

// pebbleCollector exports pebble engine metrics.
type pebbleCollector struct {
	db *pebble.DB

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	memtableSize            *prometheus.Desc
	memtableCount           *prometheus.Desc
	walFiles                *prometheus.Desc
	walSize                 *prometheus.Desc
	walBytesWritten         *prometheus.Desc
}

func newPebbleCollector(db *pebble.DB) *pebbleCollector {
	return &pebbleCollector{
		db: db,

		compactionCount: prometheus.NewDesc(
			"dirstore_index_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"dirstore_index_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"dirstore_index_pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"dirstore_index_pebble_memtable_count",
			"Current count of memtables",
			nil, nil,
		),
		walFiles: prometheus.NewDesc(
			"dirstore_index_pebble_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"dirstore_index_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"dirstore_index_pebble_wal_bytes_written_total",
			"Total bytes written to the WAL",
			nil, nil,
		),
	}
}

func (pc *pebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesWritten
}

func (pc *pebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.db.Metrics()

	ch <- prometheus.MustNewConstMetric(pc.compactionCount, prometheus.CounterValue, float64(metrics.Compact.Count))
	ch <- prometheus.MustNewConstMetric(pc.compactionEstimatedDebt, prometheus.GaugeValue, float64(metrics.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(pc.memtableSize, prometheus.GaugeValue, float64(metrics.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(pc.memtableCount, prometheus.GaugeValue, float64(metrics.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(pc.walFiles, prometheus.GaugeValue, float64(metrics.WAL.Files))
	ch <- prometheus.MustNewConstMetric(pc.walSize, prometheus.GaugeValue, float64(metrics.WAL.Size))
	ch <- prometheus.MustNewConstMetric(pc.walBytesWritten, prometheus.CounterValue, float64(metrics.WAL.BytesWritten))
}
