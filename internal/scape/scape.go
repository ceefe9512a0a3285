package scape

import (
	"context"

	"heredity/internal/diploid"
	"heredity/internal/nn"
)

type Fitness float64

type Trace map[string]any

// Subject is one organism as a scape sees it: the expressed phenotype and
// the decoded decision network.
type Subject struct {
	ID        int64
	Phenotype diploid.Phenotype
	Network   *nn.Network
}

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, subject Subject) (Fitness, Trace, error)
}
