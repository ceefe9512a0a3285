package reproduction

import (
	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/model"
)

// HybridEffect records which post-hoc modifier a cross-species child got.
type HybridEffect string

const (
	HybridNone       HybridEffect = ""
	HybridVigor      HybridEffect = "vigor"
	HybridDepression HybridEffect = "depression"
)

// Organism pairs one heritable trait genome with one decision-network
// genome. Organisms are values; reproduction always yields a new one.
type Organism struct {
	ID              int64
	Generation      int
	Parents         []int64
	Traits          *diploid.Genome
	Brain           genotype.Genome
	FitnessCapacity float64
	Hybrid          HybridEffect
	// Operations lists the mutation steps applied to the brain at birth.
	Operations []string
}

// SpeciesID returns the species the organism belongs to under basis.
func (o Organism) SpeciesID(basis Basis) int64 {
	if basis == BasisNeural {
		return o.Brain.SpeciesID
	}
	if o.Traits == nil {
		return 0
	}
	return o.Traits.SpeciesID()
}

// Capacity is the fitness multiplier, treating an unset capacity as 1.
func (o Organism) Capacity() float64 {
	if o.FitnessCapacity == 0 {
		return 1
	}
	return o.FitnessCapacity
}

func (o Organism) ToRecord() model.OrganismRecord {
	rec := model.OrganismRecord{
		ID:              o.ID,
		Generation:      o.Generation,
		ParentIDs:       append([]int64(nil), o.Parents...),
		Brain:           o.Brain.ToRecord(),
		FitnessCapacity: o.FitnessCapacity,
		Hybrid:          string(o.Hybrid),
	}
	if o.Traits != nil {
		rec.Traits = o.Traits.ToRecord()
	}
	return rec
}

// FromRecord rebuilds an organism against the trait schema in use.
func FromRecord(rec model.OrganismRecord, schema *diploid.Schema) (Organism, error) {
	traits, err := diploid.FromRecord(rec.Traits, schema)
	if err != nil {
		return Organism{}, err
	}
	brain, err := genotype.FromRecord(rec.Brain)
	if err != nil {
		return Organism{}, err
	}
	return Organism{
		ID:              rec.ID,
		Generation:      rec.Generation,
		Parents:         append([]int64(nil), rec.ParentIDs...),
		Traits:          traits,
		Brain:           brain,
		FitnessCapacity: rec.FitnessCapacity,
		Hybrid:          HybridEffect(rec.Hybrid),
	}, nil
}
