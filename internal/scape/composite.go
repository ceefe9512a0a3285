package scape

import (
	"context"
	"fmt"
)

type Weighted struct {
	Scape  Scape
	Weight float64
}

// CompositeScape sums weighted component fitness. Component traces are
// nested under their scape names.
type CompositeScape struct {
	Parts []Weighted
}

func (CompositeScape) Name() string {
	return "composite"
}

func (s CompositeScape) Evaluate(ctx context.Context, subject Subject) (Fitness, Trace, error) {
	var total Fitness
	trace := Trace{}
	for _, part := range s.Parts {
		fitness, sub, err := part.Scape.Evaluate(ctx, subject)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", part.Scape.Name(), err)
		}
		total += Fitness(part.Weight) * fitness
		trace[part.Scape.Name()] = sub
	}
	return total, trace, nil
}
