package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KilimcininKorOglu/dirstore/internal/storage/index"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/master"
	"github.com/KilimcininKorOglu/dirstore/internal/storage/txlog"
)

var (
	storeOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dirstore",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Store operations by operation and result.",
	}, []string{"op", "result"})

	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dirstore",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Store operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"op"})

	storeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dirstore",
		Subsystem: "store",
		Name:      "apply_failures_total",
		Help:      "Logged transactions that could not be applied.",
	})

	recoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dirstore",
		Subsystem: "recovery",
		Name:      "duration_seconds",
		Help:      "Time spent replaying the transaction log at open.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

// observe records the outcome of an operation started at start. It is
// deferred with a pointer to the named error result.
func observe(op string, start time.Time, err *error) {
	result := "ok"
	if *err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RegisterMetrics registers the store metrics, the metrics of every
// component and the index engine collector with reg.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{storeOperations, operationDuration, storeFailures, recoveryDuration}
	if c := index.NewCollector(s.indexes.Backend()); c != nil {
		collectors = append(collectors, c)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	for _, register := range []func(prometheus.Registerer) error{
		index.Register,
		master.Register,
		txlog.Register,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}
