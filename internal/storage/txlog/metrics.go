package txlog

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var recordsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "records_appended_total",
	Help:      "Log records appended by record type.",
}, []string{"type"})

var bytesAppended = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "bytes_appended_total",
	Help:      "Framed bytes appended to the log.",
})

var syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "sync_duration_seconds",
	Help:      "Time spent in fsync of the log file.",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
})

var tornTailTruncations = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "torn_tail_truncations_total",
	Help:      "Torn log tails dropped when the log was opened.",
})

var corruptRecords = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "corrupt_records_total",
	Help:      "Damaged records found inside the log when it was opened.",
})

var checkpoints = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "txlog",
	Name:      "checkpoints_total",
	Help:      "Completed checkpoints.",
})

var replayedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "recovery",
	Name:      "replayed_records_total",
	Help:      "Edit records re-applied by log replay, by record type.",
}, []string{"type"})

var healedPairs = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "recovery",
	Name:      "healed_pairs_total",
	Help:      "Torn forward/reverse pairs healed during replay, by index.",
}, []string{"index"})

// Register registers the log and recovery metrics with reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsAppended,
		bytesAppended,
		syncDuration,
		tornTailTruncations,
		corruptRecords,
		checkpoints,
		replayedRecords,
		healedPairs,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
