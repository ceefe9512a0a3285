package scape

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TraitTargetScape rewards phenotypes close to fixed trait targets. Fitness
// is one minus the mean absolute gap, floored at zero.
type TraitTargetScape struct {
	Targets map[string]float64
}

func (TraitTargetScape) Name() string {
	return "trait_target"
}

func (s TraitTargetScape) Evaluate(ctx context.Context, subject Subject) (Fitness, Trace, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if len(s.Targets) == 0 {
		return 0, nil, fmt.Errorf("trait_target has no targets")
	}
	names := make([]string, 0, len(s.Targets))
	for name := range s.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	gaps := make(map[string]float64, len(names))
	total := 0.0
	for _, name := range names {
		value, ok := subject.Phenotype[name]
		if !ok {
			return 0, nil, fmt.Errorf("subject %d does not express trait %s", subject.ID, name)
		}
		gap := math.Abs(value - s.Targets[name])
		gaps[name] = gap
		total += gap
	}
	mean := total / float64(len(names))
	return Fitness(math.Max(0, 1-mean)), Trace{"mean_gap": mean, "gaps": gaps}, nil
}
