package evo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "generations_total",
		Help:      "Generations committed",
	})

	// offspringTotal counts children by hybrid effect (none, vigor, depression).
	offspringTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "offspring_total",
		Help:      "Children produced by reproduction",
	}, []string{"hybrid"})

	incompatiblePairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "incompatible_pairs_total",
		Help:      "Cross-species pairings refused and replaced by a same-species partner",
	})

	skippedMutationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "skipped_mutations_total",
		Help:      "Mutation steps skipped because no valid target existed",
	})

	decodePenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "decode_penalties_total",
		Help:      "Organisms scored zero because their network could not be decoded",
	})

	// speciesGauge tracks live species by kind (trait, neural).
	speciesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "species",
		Help:      "Live species after the last committed generation",
	}, []string{"kind"})

	bestFitnessGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "best_fitness",
		Help:      "Best fitness of the last evaluated generation",
	})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "heredity",
		Subsystem: "evo",
		Name:      "step_duration_seconds",
		Help:      "Time to produce and commit one generation",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
