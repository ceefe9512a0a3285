package genotype

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"heredity/internal/innovation"
)

var (
	ErrInvalidGenome  = errors.New("invalid neural genome")
	ErrInvalidShape   = errors.New("genome needs at least one input and one output")
	ErrDuplicateGene  = errors.New("duplicate gene id")
	ErrDanglingTarget = errors.New("connection references unknown node")
)

type NodeKind string

const (
	KindInput  NodeKind = "input"
	KindHidden NodeKind = "hidden"
	KindOutput NodeKind = "output"
)

type NodeGene struct {
	ID         int64
	Kind       NodeKind
	Bias       float64
	Activation string
}

type ConnectionGene struct {
	Innovation int64
	Source     int64
	Target     int64
	Weight     float64
	Enabled    bool
}

// Genome is a NEAT genome. Nodes are kept sorted by id and connections by
// innovation id; operations clone before changing anything.
type Genome struct {
	Nodes       []NodeGene
	Connections []ConnectionGene
	Fitness     float64
	SpeciesID   int64
	Recurrent   bool
}

type MinimalOptions struct {
	Activation  string
	WeightRange float64
	Recurrent   bool
}

// NewMinimal wires every input directly to every output. Inputs take node
// ids 1..inputs and outputs follow, so the registry must have reserved at
// least inputs+outputs node ids.
func NewMinimal(rng *rand.Rand, reg *innovation.Registry, inputs, outputs int, opts MinimalOptions) (Genome, error) {
	if inputs < 1 || outputs < 1 {
		return Genome{}, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInvalidShape, inputs, outputs)
	}
	if opts.Activation == "" {
		opts.Activation = "sigmoid"
	}
	if opts.WeightRange <= 0 {
		opts.WeightRange = 1
	}

	g := Genome{
		Nodes:       make([]NodeGene, 0, inputs+outputs),
		Connections: make([]ConnectionGene, 0, inputs*outputs),
		Recurrent:   opts.Recurrent,
	}
	for i := 1; i <= inputs; i++ {
		g.Nodes = append(g.Nodes, NodeGene{ID: int64(i), Kind: KindInput, Activation: "identity"})
	}
	for o := 1; o <= outputs; o++ {
		g.Nodes = append(g.Nodes, NodeGene{ID: int64(inputs + o), Kind: KindOutput, Activation: opts.Activation})
	}
	for i := 1; i <= inputs; i++ {
		for o := 1; o <= outputs; o++ {
			source, target := int64(i), int64(inputs+o)
			g.Connections = append(g.Connections, ConnectionGene{
				Innovation: reg.ConnectionInnovation(source, target),
				Source:     source,
				Target:     target,
				Weight:     uniform(rng, opts.WeightRange),
				Enabled:    true,
			})
		}
	}
	g.sortGenes()
	return g, nil
}

func uniform(rng *rand.Rand, r float64) float64 {
	return (rng.Float64()*2 - 1) * r
}

// Clone returns a deep copy.
func (g Genome) Clone() Genome {
	out := g
	out.Nodes = append([]NodeGene(nil), g.Nodes...)
	out.Connections = append([]ConnectionGene(nil), g.Connections...)
	return out
}

func (g *Genome) sortGenes() {
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Connections, func(i, j int) bool { return g.Connections[i].Innovation < g.Connections[j].Innovation })
}

func (g Genome) Node(id int64) (NodeGene, bool) {
	i := sort.Search(len(g.Nodes), func(i int) bool { return g.Nodes[i].ID >= id })
	if i < len(g.Nodes) && g.Nodes[i].ID == id {
		return g.Nodes[i], true
	}
	return NodeGene{}, false
}

func (g Genome) NodesOfKind(kind NodeKind) []NodeGene {
	out := make([]NodeGene, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (g Genome) HiddenCount() int {
	return len(g.NodesOfKind(KindHidden))
}

func (g Genome) EnabledCount() int {
	n := 0
	for _, c := range g.Connections {
		if c.Enabled {
			n++
		}
	}
	return n
}

// HasConnection reports whether any gene, enabled or not, links source to
// target.
func (g Genome) HasConnection(source, target int64) bool {
	for _, c := range g.Connections {
		if c.Source == source && c.Target == target {
			return true
		}
	}
	return false
}

func (g Genome) MaxNodeID() int64 {
	if len(g.Nodes) == 0 {
		return 0
	}
	return g.Nodes[len(g.Nodes)-1].ID
}

func (g Genome) MaxInnovation() int64 {
	if len(g.Connections) == 0 {
		return 0
	}
	return g.Connections[len(g.Connections)-1].Innovation
}

// DependencyGraph builds the node graph. Self-loops are left out because the
// graph type cannot hold them; HasSelfLoop reports them separately.
func (g Genome) DependencyGraph(enabledOnly bool) *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for _, n := range g.Nodes {
		dg.AddNode(simple.Node(n.ID))
	}
	for _, c := range g.Connections {
		if enabledOnly && !c.Enabled {
			continue
		}
		if c.Source == c.Target {
			continue
		}
		if dg.Node(c.Source) == nil || dg.Node(c.Target) == nil {
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(c.Source), simple.Node(c.Target)))
	}
	return dg
}

func (g Genome) HasSelfLoop(enabledOnly bool) bool {
	for _, c := range g.Connections {
		if enabledOnly && !c.Enabled {
			continue
		}
		if c.Source == c.Target {
			return true
		}
	}
	return false
}

// HasCycle reports whether the genes, enabled or not, contain a cycle.
func (g Genome) HasCycle() bool {
	if g.HasSelfLoop(false) {
		return true
	}
	_, err := topo.Sort(g.DependencyGraph(false))
	return err != nil
}

// wouldCycle reports whether adding source->target closes a cycle.
func wouldCycle(dg *simple.DirectedGraph, source, target int64) bool {
	if source == target {
		return true
	}
	from, to := dg.Node(target), dg.Node(source)
	if from == nil || to == nil {
		return false
	}
	return topo.PathExistsIn(dg, from, to)
}

// Validate checks id uniqueness and gene references. Cycles are left to the
// decoder so a stored cyclic genome can still be loaded and penalized.
func (g Genome) Validate() error {
	seen := make(map[int64]NodeKind, len(g.Nodes))
	inputs, outputs := 0, 0
	for _, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: node %d", ErrDuplicateGene, n.ID)
		}
		seen[n.ID] = n.Kind
		switch n.Kind {
		case KindInput:
			inputs++
		case KindOutput:
			outputs++
		case KindHidden:
		default:
			return fmt.Errorf("%w: node %d has kind %q", ErrInvalidGenome, n.ID, n.Kind)
		}
	}
	if inputs == 0 || outputs == 0 {
		return ErrInvalidShape
	}
	innovations := make(map[int64]struct{}, len(g.Connections))
	for _, c := range g.Connections {
		if _, dup := innovations[c.Innovation]; dup {
			return fmt.Errorf("%w: innovation %d", ErrDuplicateGene, c.Innovation)
		}
		innovations[c.Innovation] = struct{}{}
		if _, ok := seen[c.Source]; !ok {
			return fmt.Errorf("%w: source %d", ErrDanglingTarget, c.Source)
		}
		kind, ok := seen[c.Target]
		if !ok {
			return fmt.Errorf("%w: target %d", ErrDanglingTarget, c.Target)
		}
		if kind == KindInput {
			return fmt.Errorf("%w: connection %d targets input %d", ErrInvalidGenome, c.Innovation, c.Target)
		}
	}
	return nil
}
