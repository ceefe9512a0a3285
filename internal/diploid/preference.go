package diploid

import "math"

// MatePreference describes the phenotype an organism seeks in a partner.
// A non-positive tolerance or empty target set accepts any partner.
type MatePreference struct {
	Targets   map[string]float64
	Tolerance float64
}

func (p MatePreference) clone() MatePreference {
	if p.Targets == nil {
		return MatePreference{Tolerance: p.Tolerance}
	}
	targets := make(map[string]float64, len(p.Targets))
	for k, v := range p.Targets {
		targets[k] = v
	}
	return MatePreference{Targets: targets, Tolerance: p.Tolerance}
}

// Score is the mean absolute gap between the targets and the candidate
// phenotype over the traits the candidate expresses.
func (p MatePreference) Score(candidate Phenotype) float64 {
	total, n := 0.0, 0
	for trait, target := range p.Targets {
		value, ok := candidate[trait]
		if !ok {
			continue
		}
		total += math.Abs(value - target)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (p MatePreference) Accepts(candidate Phenotype) bool {
	if p.Tolerance <= 0 || len(p.Targets) == 0 {
		return true
	}
	return p.Score(candidate) <= p.Tolerance
}
