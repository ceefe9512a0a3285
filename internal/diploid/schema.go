package diploid

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySchema      = errors.New("trait schema is empty")
	ErrDuplicateTrait   = errors.New("duplicate trait in schema")
	ErrInvalidRange     = errors.New("invalid trait range")
	ErrSchemaMismatch   = errors.New("genome schemas differ")
	ErrUnknownTrait     = errors.New("unknown trait")
	ErrAlleleOutOfRange = errors.New("allele outside [0,1]")
)

// TraitSpec names one locus and the range its expressed value is clamped to.
// A zero range means [0,1].
type TraitSpec struct {
	Name string
	Min  float64
	Max  float64
}

// Schema is the ordered trait list shared by every genome of a population.
type Schema struct {
	traits []TraitSpec
	index  map[string]int
}

func NewSchema(traits ...TraitSpec) (*Schema, error) {
	if len(traits) == 0 {
		return nil, ErrEmptySchema
	}
	s := &Schema{
		traits: make([]TraitSpec, 0, len(traits)),
		index:  make(map[string]int, len(traits)),
	}
	for _, trait := range traits {
		if trait.Name == "" {
			return nil, fmt.Errorf("%w: empty trait name", ErrInvalidRange)
		}
		if _, exists := s.index[trait.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTrait, trait.Name)
		}
		if trait.Min == 0 && trait.Max == 0 {
			trait.Max = 1
		}
		if trait.Max <= trait.Min {
			return nil, fmt.Errorf("%w: %s [%g,%g]", ErrInvalidRange, trait.Name, trait.Min, trait.Max)
		}
		s.index[trait.Name] = len(s.traits)
		s.traits = append(s.traits, trait)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level fixtures.
func MustSchema(traits ...TraitSpec) *Schema {
	s, err := NewSchema(traits...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int {
	return len(s.traits)
}

func (s *Schema) Traits() []TraitSpec {
	return append([]TraitSpec(nil), s.traits...)
}

func (s *Schema) Trait(i int) TraitSpec {
	return s.traits[i]
}

func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || len(s.traits) != len(other.traits) {
		return false
	}
	for i := range s.traits {
		if s.traits[i] != other.traits[i] {
			return false
		}
	}
	return true
}

func (t TraitSpec) clamp(v float64) float64 {
	if v < t.Min {
		return t.Min
	}
	if v > t.Max {
		return t.Max
	}
	return v
}
