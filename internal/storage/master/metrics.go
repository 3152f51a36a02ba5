package master

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var masterOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "master",
	Name:      "operations_total",
	Help:      "Master table operations that reached BadgerDB.",
}, []string{"op"})

var cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dirstore",
	Subsystem: "master",
	Name:      "cache_lookups_total",
	Help:      "Master table read cache lookups by result.",
}, []string{"result"})

// Register registers the master table metrics with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{masterOperations, cacheLookups} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
