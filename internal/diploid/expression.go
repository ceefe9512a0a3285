package diploid

import (
	"math"
	"sort"
)

const dominanceEpsilon = 1e-9

// Phenotype maps trait name to expressed value.
type Phenotype map[string]float64

func (p Phenotype) Traits() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Express returns the expressed trait values. The result is computed once
// per genome; callers receive a copy.
func (g *Genome) Express() Phenotype {
	g.once.Do(func() {
		g.phenotype = g.express()
	})
	out := make(Phenotype, len(g.phenotype))
	for k, v := range g.phenotype {
		out[k] = v
	}
	return out
}

func (g *Genome) express() Phenotype {
	multipliers := make(map[string]float64, len(g.marks))
	for _, mark := range g.marks {
		if mark.RemainingGenerations <= 0 {
			continue
		}
		if current, ok := multipliers[mark.Trait]; ok {
			multipliers[mark.Trait] = current * mark.Multiplier
		} else {
			multipliers[mark.Trait] = mark.Multiplier
		}
	}

	phenotype := make(Phenotype, g.Len())
	for i, trait := range g.schema.traits {
		value := blend(g.maternal[i], g.paternal[i])
		if m, ok := multipliers[trait.Name]; ok {
			value *= m
		}
		// alleles live in [0,1]; the trait range is where they land
		phenotype[trait.Name] = trait.clamp(trait.Min + value*(trait.Max-trait.Min))
	}
	return phenotype
}

func blend(m, p Allele) float64 {
	weight := m.Dominance + p.Dominance
	if weight < dominanceEpsilon {
		return (m.Value + p.Value) / 2
	}
	return (m.Value*m.Dominance + p.Value*p.Dominance) / weight
}

// TraitDistance is the mean range-normalized absolute difference between two
// expressed phenotypes.
func TraitDistance(a, b *Genome) (float64, error) {
	if !a.schema.Equal(b.schema) {
		return 0, ErrSchemaMismatch
	}
	pa, pb := a.Express(), b.Express()
	total := 0.0
	for _, trait := range a.schema.traits {
		total += math.Abs(pa[trait.Name]-pb[trait.Name]) / (trait.Max - trait.Min)
	}
	return total / float64(a.schema.Len()), nil
}
