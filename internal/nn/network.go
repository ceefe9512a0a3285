package nn

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/topo"

	"heredity/internal/genotype"
)

var (
	ErrDecodeCycleDetected = errors.New("cycle detected in non-recurrent genome")
	ErrInputSize           = errors.New("input vector length mismatch")
)

type edge struct {
	from   int
	weight float64
}

type evalNode struct {
	slot int
	bias float64
	act  ActivationFunc
	in   []edge
}

// Network is the executable form of a neural genome. Feed-forward networks
// are stateless and safe for concurrent use. Recurrent networks carry node
// values between Forward calls.
type Network struct {
	inputs    []int
	outputs   []int
	order     []evalNode
	slots     int
	recurrent bool

	mu    sync.Mutex
	state []float64
}

// Decode resolves node adjacency by id over enabled genes. A non-recurrent
// genome must be acyclic and is evaluated in topological order. A recurrent
// genome is evaluated inputs, hidden nodes by id, then outputs, reading the
// previous tick's value for any edge that points backwards.
func Decode(g genotype.Genome) (*Network, error) {
	g = g.Clone()
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	slotOf := make(map[int64]int, len(g.Nodes))
	for i, n := range g.Nodes {
		slotOf[n.ID] = i
	}

	var order []genotype.NodeGene
	if g.Recurrent {
		order = recurrentOrder(g)
	} else {
		sorted, err := feedForwardOrder(g)
		if err != nil {
			return nil, err
		}
		order = sorted
	}

	incoming := make(map[int64][]edge, len(g.Nodes))
	for _, c := range g.Connections {
		if !c.Enabled {
			continue
		}
		from, ok := slotOf[c.Source]
		if !ok {
			return nil, fmt.Errorf("connection %d: %w", c.Innovation, genotype.ErrDanglingTarget)
		}
		if _, ok := slotOf[c.Target]; !ok {
			return nil, fmt.Errorf("connection %d: %w", c.Innovation, genotype.ErrDanglingTarget)
		}
		incoming[c.Target] = append(incoming[c.Target], edge{from: from, weight: c.Weight})
	}

	net := &Network{slots: len(g.Nodes), recurrent: g.Recurrent}
	for _, n := range order {
		switch n.Kind {
		case genotype.KindInput:
			net.inputs = append(net.inputs, slotOf[n.ID])
			continue
		case genotype.KindOutput:
			net.outputs = append(net.outputs, slotOf[n.ID])
		}
		act, err := GetActivation(n.Activation)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.ID, err)
		}
		net.order = append(net.order, evalNode{
			slot: slotOf[n.ID],
			bias: n.Bias,
			act:  act,
			in:   incoming[n.ID],
		})
	}
	// inputs and outputs are addressed in id order regardless of evaluation order
	sortSlotsByID(net.inputs, g)
	sortSlotsByID(net.outputs, g)
	if net.recurrent {
		net.state = make([]float64, net.slots)
	}
	return net, nil
}

func sortSlotsByID(slots []int, g genotype.Genome) {
	sort.Slice(slots, func(i, j int) bool { return g.Nodes[slots[i]].ID < g.Nodes[slots[j]].ID })
}

func feedForwardOrder(g genotype.Genome) ([]genotype.NodeGene, error) {
	if g.HasSelfLoop(true) {
		return nil, fmt.Errorf("%w: self-loop", ErrDecodeCycleDetected)
	}
	sorted, err := topo.SortStabilized(g.DependencyGraph(true), func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeCycleDetected, err)
	}
	order := make([]genotype.NodeGene, 0, len(sorted))
	for _, n := range sorted {
		gene, _ := g.Node(n.ID())
		order = append(order, gene)
	}
	return order, nil
}

func recurrentOrder(g genotype.Genome) []genotype.NodeGene {
	order := make([]genotype.NodeGene, 0, len(g.Nodes))
	for _, kind := range []genotype.NodeKind{genotype.KindInput, genotype.KindHidden, genotype.KindOutput} {
		order = append(order, g.NodesOfKind(kind)...)
	}
	return order
}

func (n *Network) InputSize() int  { return len(n.inputs) }
func (n *Network) OutputSize() int { return len(n.outputs) }
func (n *Network) Recurrent() bool { return n.recurrent }

// Forward feeds inputs, in input-node id order, through the network and
// returns outputs in output-node id order. Input nodes pass values through
// unchanged; every other node computes act(bias + sum(weight*value)).
func (n *Network) Forward(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInputSize, len(inputs), len(n.inputs))
	}

	var values []float64
	if n.recurrent {
		n.mu.Lock()
		defer n.mu.Unlock()
		values = n.state
	} else {
		values = make([]float64, n.slots)
	}

	for i, slot := range n.inputs {
		values[slot] = inputs[i]
	}
	for _, node := range n.order {
		total := node.bias
		for _, e := range node.in {
			total += values[e.from] * e.weight
		}
		values[node.slot] = node.act(total)
	}

	out := make([]float64, len(n.outputs))
	for i, slot := range n.outputs {
		out[i] = values[slot]
	}
	return out, nil
}

// Reset clears recurrent state.
func (n *Network) Reset() {
	if !n.recurrent {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.state {
		n.state[i] = 0
	}
}
