package genotype

import (
	"math"
	"math/rand"
)

// DisabledInheritance is the chance that a gene disabled in either parent
// stays disabled in the child.
const DisabledInheritance = 0.75

// Crossover aligns connection genes by innovation id. Matching genes come
// from either parent with equal probability; disjoint and excess genes come
// only from the fitter parent, with equal fitness resolved by a coin flip.
// The child's topology is therefore a subset of the fitter parent's and
// keeps its acyclicity.
func Crossover(rng *rand.Rand, a, b Genome) Genome {
	fitter, other := a, b
	switch {
	case b.Fitness > a.Fitness:
		fitter, other = b, a
	case a.Fitness == b.Fitness && rng.Intn(2) == 1:
		fitter, other = b, a
	}

	otherConns := make(map[int64]ConnectionGene, len(other.Connections))
	for _, c := range other.Connections {
		otherConns[c.Innovation] = c
	}
	child := Genome{
		Nodes:       make([]NodeGene, 0, len(fitter.Nodes)),
		Connections: make([]ConnectionGene, 0, len(fitter.Connections)),
		Recurrent:   fitter.Recurrent,
	}
	for _, c := range fitter.Connections {
		gene := c
		disabled := !c.Enabled
		if match, ok := otherConns[c.Innovation]; ok {
			if rng.Intn(2) == 1 {
				gene = match
			}
			disabled = disabled || !match.Enabled
		}
		gene.Enabled = true
		if disabled && rng.Float64() < DisabledInheritance {
			gene.Enabled = false
		}
		child.Connections = append(child.Connections, gene)
	}

	otherNodes := make(map[int64]NodeGene, len(other.Nodes))
	for _, n := range other.Nodes {
		otherNodes[n.ID] = n
	}
	for _, n := range fitter.Nodes {
		gene := n
		if match, ok := otherNodes[n.ID]; ok && match.Kind == n.Kind && rng.Intn(2) == 1 {
			gene = match
		}
		child.Nodes = append(child.Nodes, gene)
	}
	child.sortGenes()
	return child
}

// Coefficients weight the terms of CompatibilityDistance. Genomes whose
// larger connection count is below SmallGenomeThreshold are not normalized.
type Coefficients struct {
	Excess               float64
	Disjoint             float64
	Weight               float64
	SmallGenomeThreshold int
}

func DefaultCoefficients() Coefficients {
	return Coefficients{Excess: 1.0, Disjoint: 1.0, Weight: 0.4, SmallGenomeThreshold: 20}
}

// CompatibilityDistance is c1*E/N + c2*D/N + c3*W, where E and D count
// excess and disjoint connection genes, W is the mean absolute weight
// difference of matching genes and N the larger connection count.
func CompatibilityDistance(a, b Genome, c Coefficients) float64 {
	excess, disjoint, weightDiff, matching := alignCounts(a.Connections, b.Connections)

	n := len(a.Connections)
	if len(b.Connections) > n {
		n = len(b.Connections)
	}
	if n < c.SmallGenomeThreshold || n == 0 {
		n = 1
	}
	avgWeight := 0.0
	if matching > 0 {
		avgWeight = weightDiff / float64(matching)
	}
	return c.Excess*float64(excess)/float64(n) +
		c.Disjoint*float64(disjoint)/float64(n) +
		c.Weight*avgWeight
}

// alignCounts walks two innovation-sorted gene lists.
func alignCounts(a, b []ConnectionGene) (excess, disjoint int, weightDiff float64, matching int) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Innovation == b[j].Innovation:
			weightDiff += math.Abs(a[i].Weight - b[j].Weight)
			matching++
			i++
			j++
		case a[i].Innovation < b[j].Innovation:
			disjoint++
			i++
		default:
			disjoint++
			j++
		}
	}
	excess = (len(a) - i) + (len(b) - j)
	return excess, disjoint, weightDiff, matching
}
