// Package metrics holds the prometheus collectors shared by veracast components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FragmentsTotal counts caption fragments by outcome (accepted, empty, noise, duplicate, handle, display_name, malformed)
	FragmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veracast",
		Subsystem: "caption",
		Name:      "fragments_total",
		Help:      "Caption fragments seen by the reconciler, by outcome.",
	}, []string{"outcome"})

	// UtterancesFinalized counts finalized utterances
	UtterancesFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "veracast",
		Subsystem: "caption",
		Name:      "utterances_finalized_total",
		Help:      "Utterances finalized on speaker change or flush.",
	})

	// Verifications counts verification results by outcome (complete, failed, skipped, dropped)
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veracast",
		Subsystem: "verify",
		Name:      "results_total",
		Help:      "Verification results by outcome.",
	}, []string{"outcome"})

	// GraphCache counts claim graph cache lookups by result (hit, miss, expand, shared)
	GraphCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veracast",
		Subsystem: "graph",
		Name:      "cache_total",
		Help:      "Claim graph cache lookups by result.",
	}, []string{"result"})

	// LinkChecks counts source link vetting results (valid, invalid, disallowed)
	LinkChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veracast",
		Subsystem: "validate",
		Name:      "link_checks_total",
		Help:      "Source link HEAD checks by result.",
	}, []string{"result"})
)

var registerOnce sync.Once

// Register registers all collectors with reg exactly once per process
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(FragmentsTotal, UtterancesFinalized, Verifications, GraphCache, LinkChecks)
	})
}
