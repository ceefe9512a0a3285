package diploid

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

var ErrInvalidLocusCount = errors.New("invalid locus count")

// Allele is one parental copy of a locus.
type Allele struct {
	Value     float64
	Dominance float64
	Mutated   bool
}

// Chromosome holds one allele per schema trait, in schema order.
type Chromosome []Allele

// Locus is a read view of one trait slot across both chromosomes.
type Locus struct {
	Trait    string
	Maternal Allele
	Paternal Allele
}

// EpigeneticMark scales the expressed value of one trait until it decays.
type EpigeneticMark struct {
	Trait                string
	Multiplier           float64
	RemainingGenerations int
}

// Genome is an immutable diploid trait genome. Every operation that changes
// heritable state returns a new Genome.
type Genome struct {
	schema     *Schema
	maternal   Chromosome
	paternal   Chromosome
	marks      []EpigeneticMark
	speciesID  int64
	preference MatePreference

	once      sync.Once
	phenotype Phenotype
}

// New validates both chromosomes against schema and copies them.
func New(schema *Schema, maternal, paternal Chromosome) (*Genome, error) {
	if schema == nil {
		return nil, ErrEmptySchema
	}
	if len(maternal) != schema.Len() || len(paternal) != schema.Len() {
		return nil, fmt.Errorf("%w: schema=%d maternal=%d paternal=%d",
			ErrInvalidLocusCount, schema.Len(), len(maternal), len(paternal))
	}
	for i := range maternal {
		if err := validateAllele(maternal[i]); err != nil {
			return nil, fmt.Errorf("maternal %s: %w", schema.traits[i].Name, err)
		}
		if err := validateAllele(paternal[i]); err != nil {
			return nil, fmt.Errorf("paternal %s: %w", schema.traits[i].Name, err)
		}
	}
	return &Genome{
		schema:   schema,
		maternal: append(Chromosome(nil), maternal...),
		paternal: append(Chromosome(nil), paternal...),
	}, nil
}

func validateAllele(a Allele) error {
	if a.Value < 0 || a.Value > 1 || a.Dominance < 0 || a.Dominance > 1 {
		return fmt.Errorf("%w: value=%g dominance=%g", ErrAlleleOutOfRange, a.Value, a.Dominance)
	}
	return nil
}

// Random draws uniform allele values and dominance weights for seeding.
func Random(rng *rand.Rand, schema *Schema) *Genome {
	maternal := make(Chromosome, schema.Len())
	paternal := make(Chromosome, schema.Len())
	for i := range maternal {
		maternal[i] = Allele{Value: rng.Float64(), Dominance: rng.Float64()}
		paternal[i] = Allele{Value: rng.Float64(), Dominance: rng.Float64()}
	}
	return &Genome{schema: schema, maternal: maternal, paternal: paternal}
}

func (g *Genome) Schema() *Schema {
	return g.schema
}

func (g *Genome) Len() int {
	return len(g.maternal)
}

func (g *Genome) Maternal() Chromosome {
	return append(Chromosome(nil), g.maternal...)
}

func (g *Genome) Paternal() Chromosome {
	return append(Chromosome(nil), g.paternal...)
}

func (g *Genome) Locus(i int) Locus {
	return Locus{Trait: g.schema.traits[i].Name, Maternal: g.maternal[i], Paternal: g.paternal[i]}
}

func (g *Genome) Loci() []Locus {
	loci := make([]Locus, g.Len())
	for i := range loci {
		loci[i] = g.Locus(i)
	}
	return loci
}

func (g *Genome) Marks() []EpigeneticMark {
	return append([]EpigeneticMark(nil), g.marks...)
}

func (g *Genome) SpeciesID() int64 {
	return g.speciesID
}

func (g *Genome) Preference() MatePreference {
	return g.preference.clone()
}

// derive copies the heritable state into a fresh genome with an empty
// phenotype cache. Slices are shared because no method writes to them.
func (g *Genome) derive() *Genome {
	return &Genome{
		schema:     g.schema,
		maternal:   g.maternal,
		paternal:   g.paternal,
		marks:      g.marks,
		speciesID:  g.speciesID,
		preference: g.preference,
	}
}

func (g *Genome) WithSpeciesID(id int64) *Genome {
	next := g.derive()
	next.speciesID = id
	return next
}

func (g *Genome) WithPreference(p MatePreference) *Genome {
	next := g.derive()
	next.preference = p.clone()
	return next
}

// WithMark attaches an epigenetic mark, replacing any mark on the same trait.
func (g *Genome) WithMark(mark EpigeneticMark) (*Genome, error) {
	if _, ok := g.schema.Index(mark.Trait); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrait, mark.Trait)
	}
	if mark.RemainingGenerations <= 0 {
		return g, nil
	}
	next := g.derive()
	next.marks = mergeMarks(g.marks, []EpigeneticMark{mark}, true)
	return next, nil
}

// mergeMarks keeps one mark per trait. With replace set, marks from b win;
// otherwise the mark with more remaining generations wins.
func mergeMarks(a, b []EpigeneticMark, replace bool) []EpigeneticMark {
	byTrait := make(map[string]EpigeneticMark, len(a)+len(b))
	for _, m := range a {
		byTrait[m.Trait] = m
	}
	for _, m := range b {
		existing, ok := byTrait[m.Trait]
		if !ok || replace || m.RemainingGenerations > existing.RemainingGenerations {
			byTrait[m.Trait] = m
		}
	}
	out := make([]EpigeneticMark, 0, len(byTrait))
	for _, m := range byTrait {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trait < out[j].Trait })
	return out
}
