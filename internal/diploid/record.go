package diploid

import (
	"fmt"

	"heredity/internal/model"
)

func (g *Genome) ToRecord() model.DiploidGenomeRecord {
	rec := model.DiploidGenomeRecord{
		Traits:    make([]model.TraitRecord, 0, g.schema.Len()),
		Maternal:  make([]model.AlleleRecord, 0, g.Len()),
		Paternal:  make([]model.AlleleRecord, 0, g.Len()),
		Marks:     make([]model.EpigeneticMarkRecord, 0, len(g.marks)),
		SpeciesID: g.speciesID,
		Preference: model.MatePreferenceRecord{
			Tolerance: g.preference.Tolerance,
		},
	}
	for _, t := range g.schema.traits {
		rec.Traits = append(rec.Traits, model.TraitRecord{Name: t.Name, Min: t.Min, Max: t.Max})
	}
	for i := range g.maternal {
		rec.Maternal = append(rec.Maternal, alleleRecord(g.maternal[i]))
		rec.Paternal = append(rec.Paternal, alleleRecord(g.paternal[i]))
	}
	for _, m := range g.marks {
		rec.Marks = append(rec.Marks, model.EpigeneticMarkRecord{
			Trait:                m.Trait,
			Multiplier:           m.Multiplier,
			RemainingGenerations: m.RemainingGenerations,
		})
	}
	if len(g.preference.Targets) > 0 {
		rec.Preference.Targets = make(map[string]float64, len(g.preference.Targets))
		for k, v := range g.preference.Targets {
			rec.Preference.Targets[k] = v
		}
	}
	return rec
}

func alleleRecord(a Allele) model.AlleleRecord {
	return model.AlleleRecord{Value: a.Value, Dominance: a.Dominance, Mutated: a.Mutated}
}

// FromRecord rebuilds a genome. When schema is nil the record's own trait
// list is used; otherwise the record must match it.
func FromRecord(rec model.DiploidGenomeRecord, schema *Schema) (*Genome, error) {
	own := make([]TraitSpec, 0, len(rec.Traits))
	for _, t := range rec.Traits {
		own = append(own, TraitSpec{Name: t.Name, Min: t.Min, Max: t.Max})
	}
	recordSchema, err := NewSchema(own...)
	if err != nil {
		return nil, fmt.Errorf("record schema: %w", err)
	}
	if schema == nil {
		schema = recordSchema
	} else if !schema.Equal(recordSchema) {
		return nil, ErrSchemaMismatch
	}

	maternal := make(Chromosome, 0, len(rec.Maternal))
	for _, a := range rec.Maternal {
		maternal = append(maternal, Allele{Value: a.Value, Dominance: a.Dominance, Mutated: a.Mutated})
	}
	paternal := make(Chromosome, 0, len(rec.Paternal))
	for _, a := range rec.Paternal {
		paternal = append(paternal, Allele{Value: a.Value, Dominance: a.Dominance, Mutated: a.Mutated})
	}
	g, err := New(schema, maternal, paternal)
	if err != nil {
		return nil, err
	}

	for _, m := range rec.Marks {
		if _, ok := schema.Index(m.Trait); !ok {
			return nil, fmt.Errorf("%w: mark on %s", ErrUnknownTrait, m.Trait)
		}
		g.marks = append(g.marks, EpigeneticMark{
			Trait:                m.Trait,
			Multiplier:           m.Multiplier,
			RemainingGenerations: m.RemainingGenerations,
		})
	}
	g.speciesID = rec.SpeciesID
	g.preference = MatePreference{Targets: rec.Preference.Targets, Tolerance: rec.Preference.Tolerance}.clone()
	return g, nil
}
