package evo

import (
	"math"
)

const sizeProportionalEfficiency = 0.05

// FitnessPostprocessor adjusts fitness values after scape evaluation and
// before sharing and selection.
type FitnessPostprocessor interface {
	Name() string
	Process(scored []Scored) []Scored
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(scored []Scored) []Scored {
	return cloneScored(scored)
}

// CapacityPostprocessor folds each organism's hybrid fitness capacity into
// its fitness. The engine always applies it first.
type CapacityPostprocessor struct{}

func (CapacityPostprocessor) Name() string {
	return "capacity"
}

func (CapacityPostprocessor) Process(scored []Scored) []Scored {
	out := cloneScored(scored)
	for i := range out {
		out[i].Fitness *= out[i].Organism.Capacity()
	}
	return out
}

// SizeProportionalPostprocessor penalizes larger brains by complexity.
type SizeProportionalPostprocessor struct{}

func (SizeProportionalPostprocessor) Name() string {
	return "size_proportional"
}

func (SizeProportionalPostprocessor) Process(scored []Scored) []Scored {
	out := cloneScored(scored)
	for i := range out {
		brain := out[i].Organism.Brain
		complexity := float64(len(brain.Nodes) + brain.EnabledCount())
		if complexity < 1 {
			complexity = 1
		}
		out[i].Fitness = out[i].Fitness / math.Pow(complexity, sizeProportionalEfficiency)
	}
	return out
}

func postprocessorByName(name string) (FitnessPostprocessor, bool) {
	switch name {
	case "", "none":
		return NoopFitnessPostprocessor{}, true
	case "size_proportional":
		return SizeProportionalPostprocessor{}, true
	default:
		return nil, false
	}
}

func cloneScored(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	return out
}
