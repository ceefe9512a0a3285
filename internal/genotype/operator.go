package genotype

import (
	"fmt"
	"math/rand"

	"heredity/internal/innovation"
)

// Operator is one mutation step. Structural operators touch the innovation
// registry and must run on a single writer.
type Operator interface {
	Name() string
	Structural() bool
	Apply(rng *rand.Rand, reg *innovation.Registry, g Genome) (Genome, error)
}

type AddConnection struct {
	WeightRange float64
}

func (AddConnection) Name() string     { return "add_connection" }
func (AddConnection) Structural() bool { return true }

func (o AddConnection) Apply(rng *rand.Rand, reg *innovation.Registry, g Genome) (Genome, error) {
	return MutateAddConnection(rng, reg, g, o.WeightRange)
}

type AddNode struct {
	Activation string
}

func (AddNode) Name() string     { return "add_node" }
func (AddNode) Structural() bool { return true }

func (o AddNode) Apply(rng *rand.Rand, reg *innovation.Registry, g Genome) (Genome, error) {
	return MutateAddNode(rng, reg, g, o.Activation)
}

type PerturbWeights struct {
	Policy PerturbPolicy
}

func (PerturbWeights) Name() string     { return "mutate_weights" }
func (PerturbWeights) Structural() bool { return false }

func (o PerturbWeights) Apply(rng *rand.Rand, _ *innovation.Registry, g Genome) (Genome, error) {
	mutated, _ := MutateWeights(rng, g, o.Policy)
	return mutated, nil
}

type PerturbBiases struct {
	Policy PerturbPolicy
}

func (PerturbBiases) Name() string     { return "mutate_biases" }
func (PerturbBiases) Structural() bool { return false }

func (o PerturbBiases) Apply(rng *rand.Rand, _ *innovation.Registry, g Genome) (Genome, error) {
	mutated, _ := MutateBiases(rng, g, o.Policy)
	return mutated, nil
}

type EnableConnection struct{}

func (EnableConnection) Name() string     { return "enable_connection" }
func (EnableConnection) Structural() bool { return false }

func (EnableConnection) Apply(rng *rand.Rand, _ *innovation.Registry, g Genome) (Genome, error) {
	return MutateEnable(rng, g)
}

// Step pairs an operator with the probability it fires per offspring.
type Step struct {
	Operator    Operator
	Probability float64
}

// MutationConfig holds the per-offspring neural mutation rates.
type MutationConfig struct {
	Weights          PerturbPolicy
	Biases           PerturbPolicy
	AddNodeRate      float64
	AddConnRate      float64
	EnableRate       float64
	HiddenActivation string
}

func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		Weights:          PerturbPolicy{Perturb: 0.8, Replace: 0.1, Sigma: 0.5, Range: 1, Limit: 8},
		Biases:           PerturbPolicy{Perturb: 0.7, Replace: 0.1, Sigma: 0.5, Range: 1, Limit: 8},
		AddNodeRate:      0.03,
		AddConnRate:      0.05,
		EnableRate:       0.01,
		HiddenActivation: "sigmoid",
	}
}

// Mutator runs an ordered operator pipeline in two phases: parametric steps
// that are safe to run concurrently and structural steps that need the
// registry.
type Mutator struct {
	steps []Step
}

func NewMutator(steps ...Step) *Mutator {
	return &Mutator{steps: append([]Step(nil), steps...)}
}

func NewMutatorFromConfig(cfg MutationConfig) *Mutator {
	return NewMutator(
		Step{Operator: PerturbWeights{Policy: cfg.Weights}, Probability: 1},
		Step{Operator: PerturbBiases{Policy: cfg.Biases}, Probability: 1},
		Step{Operator: EnableConnection{}, Probability: cfg.EnableRate},
		Step{Operator: AddNode{Activation: cfg.HiddenActivation}, Probability: cfg.AddNodeRate},
		Step{Operator: AddConnection{WeightRange: cfg.Weights.Range}, Probability: cfg.AddConnRate},
	)
}

// Parametric runs the non-structural steps. The registry is not touched.
func (m *Mutator) Parametric(rng *rand.Rand, g Genome) (Genome, []string, error) {
	return m.run(rng, nil, g, false)
}

// Structural runs the registry-backed steps. Skippable failures such as a
// rejected cycle are recorded as skip(name) and do not fail the call.
func (m *Mutator) Structural(rng *rand.Rand, reg *innovation.Registry, g Genome) (Genome, []string, error) {
	return m.run(rng, reg, g, true)
}

// Mutate runs both phases back to back.
func (m *Mutator) Mutate(rng *rand.Rand, reg *innovation.Registry, g Genome) (Genome, []string, error) {
	g, ops, err := m.Parametric(rng, g)
	if err != nil {
		return Genome{}, nil, err
	}
	g, structural, err := m.Structural(rng, reg, g)
	if err != nil {
		return Genome{}, nil, err
	}
	return g, append(ops, structural...), nil
}

func (m *Mutator) run(rng *rand.Rand, reg *innovation.Registry, g Genome, structural bool) (Genome, []string, error) {
	var ops []string
	for _, step := range m.steps {
		if step.Operator.Structural() != structural {
			continue
		}
		if step.Probability <= 0 || (step.Probability < 1 && rng.Float64() >= step.Probability) {
			continue
		}
		mutated, err := step.Operator.Apply(rng, reg, g)
		if err != nil {
			if IsSkippable(err) {
				ops = append(ops, "skip("+step.Operator.Name()+")")
				continue
			}
			return Genome{}, nil, fmt.Errorf("%s: %w", step.Operator.Name(), err)
		}
		g = mutated
		ops = append(ops, step.Operator.Name())
	}
	return g, ops, nil
}
