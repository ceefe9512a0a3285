package genotype

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"heredity/internal/innovation"
)

var (
	ErrCyclicConnectionRejected = errors.New("connection would close a cycle")
	ErrNoConnectionCandidate    = errors.New("no unconnected node pair available")
	ErrNoEnabledConnection      = errors.New("genome has no enabled connection to split")
	ErrNoDisabledConnection     = errors.New("genome has no disabled connection")
	ErrConnectionNotFound       = errors.New("connection not found")
)

// connectionAttempts bounds how many candidate pairs MutateAddConnection
// inspects before giving up on cycles.
const connectionAttempts = 20

// MutateAddConnection links a previously unconnected pair. Sources are input
// or hidden nodes and targets hidden or output nodes unless the genome is
// recurrent-capable. Candidates that would close a cycle are skipped; when
// every inspected candidate closes one the result is
// ErrCyclicConnectionRejected.
func MutateAddConnection(rng *rand.Rand, reg *innovation.Registry, g Genome, weightRange float64) (Genome, error) {
	type pair struct{ source, target int64 }

	candidates := make([]pair, 0, len(g.Nodes)*len(g.Nodes))
	for _, src := range g.Nodes {
		if src.Kind == KindOutput && !g.Recurrent {
			continue
		}
		for _, dst := range g.Nodes {
			if dst.Kind == KindInput {
				continue
			}
			if g.HasConnection(src.ID, dst.ID) {
				continue
			}
			candidates = append(candidates, pair{source: src.ID, target: dst.ID})
		}
	}
	if len(candidates) == 0 {
		return g, ErrNoConnectionCandidate
	}
	if weightRange <= 0 {
		weightRange = 1
	}

	dg := g.DependencyGraph(false)
	attempts := connectionAttempts
	if attempts > len(candidates) {
		attempts = len(candidates)
	}
	// partial Fisher-Yates so each attempt inspects a distinct candidate
	for i := 0; i < attempts; i++ {
		j := i + rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
		selected := candidates[i]
		if !g.Recurrent && wouldCycle(dg, selected.source, selected.target) {
			continue
		}

		mutated := g.Clone()
		mutated.Connections = append(mutated.Connections, ConnectionGene{
			Innovation: reg.ConnectionInnovation(selected.source, selected.target),
			Source:     selected.source,
			Target:     selected.target,
			Weight:     uniform(rng, weightRange),
			Enabled:    true,
		})
		mutated.sortGenes()
		return mutated, nil
	}
	return g, ErrCyclicConnectionRejected
}

// MutateAddNode splits a random enabled connection. The old gene is
// disabled, never removed; source->new carries weight 1 and new->target
// carries the old weight.
func MutateAddNode(rng *rand.Rand, reg *innovation.Registry, g Genome, activation string) (Genome, error) {
	enabled := make([]int, 0, len(g.Connections))
	for i, c := range g.Connections {
		if c.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return g, ErrNoEnabledConnection
	}
	if activation == "" {
		activation = "sigmoid"
	}

	mutated := g.Clone()
	idx := enabled[rng.Intn(len(enabled))]
	old := mutated.Connections[idx]
	mutated.Connections[idx].Enabled = false

	nodeID := reg.SplitNode(old.Innovation)
	if _, exists := mutated.Node(nodeID); exists {
		nodeID = reg.NewNodeID()
	}
	mutated.Nodes = append(mutated.Nodes, NodeGene{ID: nodeID, Kind: KindHidden, Activation: activation})
	mutated.Connections = append(mutated.Connections,
		ConnectionGene{
			Innovation: reg.ConnectionInnovation(old.Source, nodeID),
			Source:     old.Source,
			Target:     nodeID,
			Weight:     1.0,
			Enabled:    true,
		},
		ConnectionGene{
			Innovation: reg.ConnectionInnovation(nodeID, old.Target),
			Source:     nodeID,
			Target:     old.Target,
			Weight:     old.Weight,
			Enabled:    true,
		},
	)
	mutated.sortGenes()
	return mutated, nil
}

// PerturbPolicy drives weight and bias mutation: with probability Perturb a
// value moves by gaussian noise of scale Sigma, otherwise with probability
// Replace it is redrawn uniformly from [-Range, Range]. Limit clamps results.
type PerturbPolicy struct {
	Perturb float64
	Replace float64
	Sigma   float64
	Range   float64
	Limit   float64
}

func (p PerturbPolicy) apply(rng *rand.Rand, v float64) (float64, bool) {
	u := rng.Float64()
	switch {
	case u < p.Perturb:
		v += rng.NormFloat64() * p.Sigma
	case u < p.Perturb+p.Replace:
		v = uniform(rng, p.Range)
	default:
		return v, false
	}
	if p.Limit > 0 {
		v = math.Max(-p.Limit, math.Min(p.Limit, v))
	}
	return v, true
}

// MutateWeights applies the policy to every connection gene and reports how
// many weights changed.
func MutateWeights(rng *rand.Rand, g Genome, policy PerturbPolicy) (Genome, int) {
	mutated := g.Clone()
	changed := 0
	for i := range mutated.Connections {
		if w, ok := policy.apply(rng, mutated.Connections[i].Weight); ok {
			mutated.Connections[i].Weight = w
			changed++
		}
	}
	return mutated, changed
}

// MutateBiases applies the policy to hidden and output node biases.
func MutateBiases(rng *rand.Rand, g Genome, policy PerturbPolicy) (Genome, int) {
	mutated := g.Clone()
	changed := 0
	for i := range mutated.Nodes {
		if mutated.Nodes[i].Kind == KindInput {
			continue
		}
		if b, ok := policy.apply(rng, mutated.Nodes[i].Bias); ok {
			mutated.Nodes[i].Bias = b
			changed++
		}
	}
	return mutated, changed
}

// MutateEnable re-enables one random disabled gene. Cycle checks already
// count disabled genes, so re-enabling can never close a cycle.
func MutateEnable(rng *rand.Rand, g Genome) (Genome, error) {
	disabled := make([]int, 0, len(g.Connections))
	for i, c := range g.Connections {
		if !c.Enabled {
			disabled = append(disabled, i)
		}
	}
	if len(disabled) == 0 {
		return g, ErrNoDisabledConnection
	}
	mutated := g.Clone()
	mutated.Connections[disabled[rng.Intn(len(disabled))]].Enabled = true
	return mutated, nil
}

// SetWeight is a deterministic edit used by loaders and tests.
func SetWeight(g Genome, id int64, weight float64) (Genome, error) {
	mutated := g.Clone()
	for i := range mutated.Connections {
		if mutated.Connections[i].Innovation == id {
			mutated.Connections[i].Weight = weight
			return mutated, nil
		}
	}
	return g, fmt.Errorf("%w: innovation %d", ErrConnectionNotFound, id)
}

// IsSkippable reports whether err is a structural mutation that found no
// valid target and should be skipped rather than failing the batch.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrCyclicConnectionRejected) ||
		errors.Is(err, ErrNoConnectionCandidate) ||
		errors.Is(err, ErrNoEnabledConnection) ||
		errors.Is(err, ErrNoDisabledConnection)
}
