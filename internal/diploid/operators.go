package diploid

import (
	"math"
	"math/rand"
	"sort"
)

// Crossover recombines two parents by independent assortment. For each locus
// the child's maternal slot takes the maternal allele of a uniformly chosen
// parent and the paternal slot independently takes the paternal allele of a
// uniformly chosen parent. Inherited alleles start unmutated.
func Crossover(rng *rand.Rand, a, b *Genome) (*Genome, error) {
	if !a.schema.Equal(b.schema) {
		return nil, ErrSchemaMismatch
	}
	n := a.Len()
	maternal := make(Chromosome, n)
	paternal := make(Chromosome, n)
	for i := 0; i < n; i++ {
		m := a.maternal[i]
		if rng.Intn(2) == 1 {
			m = b.maternal[i]
		}
		p := a.paternal[i]
		if rng.Intn(2) == 1 {
			p = b.paternal[i]
		}
		m.Mutated = false
		p.Mutated = false
		maternal[i] = m
		paternal[i] = p
	}

	return &Genome{
		schema:     a.schema,
		maternal:   maternal,
		paternal:   paternal,
		marks:      mergeMarks(a.marks, b.marks, false),
		preference: crossPreference(rng, a.preference, b.preference),
	}, nil
}

func crossPreference(rng *rand.Rand, a, b MatePreference) MatePreference {
	traits := make(map[string]struct{}, len(a.Targets)+len(b.Targets))
	for t := range a.Targets {
		traits[t] = struct{}{}
	}
	for t := range b.Targets {
		traits[t] = struct{}{}
	}
	out := MatePreference{Tolerance: (a.Tolerance + b.Tolerance) / 2}
	if len(traits) == 0 {
		return out
	}
	names := make([]string, 0, len(traits))
	for t := range traits {
		names = append(names, t)
	}
	sort.Strings(names)

	out.Targets = make(map[string]float64, len(names))
	for _, t := range names {
		va, okA := a.Targets[t]
		vb, okB := b.Targets[t]
		switch {
		case okA && okB:
			if rng.Intn(2) == 0 {
				out.Targets[t] = va
			} else {
				out.Targets[t] = vb
			}
		case okA:
			out.Targets[t] = va
		default:
			out.Targets[t] = vb
		}
	}
	return out
}

// MutationParams controls Mutate. Dominance drift fires with probability
// Rate*DominanceScale so a zero Rate leaves every allele untouched.
type MutationParams struct {
	Rate           float64
	Sigma          float64
	DominanceScale float64
	DominanceSigma float64
}

func DefaultMutationParams(rate float64) MutationParams {
	return MutationParams{Rate: rate, Sigma: 0.1, DominanceScale: 0.25, DominanceSigma: 0.05}
}

// Mutate returns a new genome. Each allele is perturbed with probability
// Rate by gaussian noise bounded to three sigma and clipped to [0,1]; a
// mutated allele always ends with a different value. Epigenetic marks lose
// one generation per call and are dropped at zero.
func (g *Genome) Mutate(rng *rand.Rand, params MutationParams) *Genome {
	if params.Sigma <= 0 {
		params.Sigma = 0.1
	}
	if params.DominanceSigma <= 0 {
		params.DominanceSigma = params.Sigma / 2
	}

	next := g.derive()
	next.maternal = mutateChromosome(rng, g.maternal, params)
	next.paternal = mutateChromosome(rng, g.paternal, params)
	next.marks = decayMarks(g.marks)
	return next
}

func mutateChromosome(rng *rand.Rand, in Chromosome, params MutationParams) Chromosome {
	out := append(Chromosome(nil), in...)
	if params.Rate <= 0 {
		return out
	}
	dominanceRate := params.Rate * params.DominanceScale
	for i := range out {
		if rng.Float64() < params.Rate {
			out[i].Value = perturb(rng, out[i].Value, params.Sigma)
			out[i].Mutated = true
		}
		if dominanceRate > 0 && rng.Float64() < dominanceRate {
			out[i].Dominance = clamp01(out[i].Dominance + boundedGaussian(rng, params.DominanceSigma))
		}
	}
	return out
}

func perturb(rng *rand.Rand, value, sigma float64) float64 {
	delta := boundedGaussian(rng, sigma)
	if math.Abs(delta) < 1e-6 {
		delta = math.Copysign(sigma/10, delta)
	}
	next := clamp01(value + delta)
	if next == value {
		next = clamp01(value - delta)
	}
	return next
}

func boundedGaussian(rng *rand.Rand, sigma float64) float64 {
	d := rng.NormFloat64() * sigma
	limit := 3 * sigma
	if d > limit {
		return limit
	}
	if d < -limit {
		return -limit
	}
	return d
}

func decayMarks(marks []EpigeneticMark) []EpigeneticMark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]EpigeneticMark, 0, len(marks))
	for _, m := range marks {
		m.RemainingGenerations--
		if m.RemainingGenerations > 0 {
			out = append(out, m)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
