package speciation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/model"
)

var ErrMixedSchemas = errors.New("trait genomes do not share one schema")

type Kind string

const (
	KindTrait  Kind = model.SpeciesKindTrait
	KindNeural Kind = model.SpeciesKindNeural
)

type Config struct {
	TraitThreshold  float64
	NeuralThreshold float64
	Coefficients    genotype.Coefficients
	// ExtinctAfter is how many consecutive empty generations a species
	// survives before it is marked extinct.
	ExtinctAfter  int
	MaxStagnation int
	// ProtectedSpecies keeps the best species eligible for offspring even
	// when stale.
	ProtectedSpecies int
}

func DefaultConfig() Config {
	return Config{
		TraitThreshold:   0.15,
		NeuralThreshold:  3.0,
		Coefficients:     genotype.DefaultCoefficients(),
		ExtinctAfter:     2,
		MaxStagnation:    15,
		ProtectedSpecies: 2,
	}
}

// TraitSpecies clusters organisms by expressed phenotype.
type TraitSpecies struct {
	Bookkeeping
	Representative *diploid.Genome
}

// NeuralSpecies clusters organisms by NEAT compatibility distance.
type NeuralSpecies struct {
	Bookkeeping
	Representative genotype.Genome
}

type TraitMember struct {
	ID              int64
	ParentSpeciesID int64
	Genome          *diploid.Genome
}

type NeuralMember struct {
	ID              int64
	ParentSpeciesID int64
	Genome          genotype.Genome
}

// Assignment is the outcome of one speciation pass.
type Assignment struct {
	SpeciesOf map[int64]int64
	Founded   []int64
	Extinct   []int64
}

// Service owns trait and neural species. Both share one id counter so a
// species id is unique across kinds. Calls are serialized; speciation is
// never run concurrently with itself.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	nextID int64
	traits pool[*diploid.Genome]
	neural pool[genotype.Genome]
}

func NewService(cfg Config) *Service {
	s := &Service{cfg: cfg}
	s.traits = pool[*diploid.Genome]{
		kind: model.SpeciesKindTrait,
		distance: func(a, b *diploid.Genome) float64 {
			d, err := diploid.TraitDistance(a, b)
			if err != nil {
				return 1
			}
			return d
		},
	}
	s.neural = pool[genotype.Genome]{
		kind: model.SpeciesKindNeural,
		distance: func(a, b genotype.Genome) float64 {
			return genotype.CompatibilityDistance(a, b, cfg.Coefficients)
		},
	}
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

// Clone returns an independent copy. The generation step speciates against
// a clone and swaps it in only once the whole step has succeeded.
func (s *Service) Clone() *Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := NewService(s.cfg)
	c.nextID = s.nextID
	c.traits.species = s.traits.clone(func(g *diploid.Genome) *diploid.Genome { return g })
	c.neural.species = s.neural.clone(genotype.Genome.Clone)
	return c
}

func (s *Service) allocateID() int64 {
	s.nextID++
	return s.nextID
}

// SpeciateTraits partitions trait genomes. Members are visited in id order
// whatever the input order.
func (s *Service) SpeciateTraits(generation int, members []TraitMember) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]member[*diploid.Genome], 0, len(members))
	var schema *diploid.Schema
	for _, m := range members {
		if m.Genome == nil {
			return Assignment{}, fmt.Errorf("trait member %d has no genome", m.ID)
		}
		if schema == nil {
			schema = m.Genome.Schema()
		} else if !schema.Equal(m.Genome.Schema()) {
			return Assignment{}, fmt.Errorf("%w: member %d", ErrMixedSchemas, m.ID)
		}
		ordered = append(ordered, member[*diploid.Genome]{id: m.ID, parentSpecies: m.ParentSpeciesID, genome: m.Genome})
	}
	for _, sp := range s.traits.species {
		if schema != nil && !sp.Extinct && !schema.Equal(sp.rep.Schema()) {
			return Assignment{}, fmt.Errorf("%w: species %d", ErrMixedSchemas, sp.ID)
		}
	}
	if err := sortMembers(ordered); err != nil {
		return Assignment{}, err
	}
	return s.traits.assign(generation, ordered, s.cfg.TraitThreshold, s.cfg.ExtinctAfter, s.allocateID), nil
}

// SpeciateNeural partitions neural genomes by compatibility distance.
func (s *Service) SpeciateNeural(generation int, members []NeuralMember) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]member[genotype.Genome], 0, len(members))
	for _, m := range members {
		ordered = append(ordered, member[genotype.Genome]{id: m.ID, parentSpecies: m.ParentSpeciesID, genome: m.Genome})
	}
	if err := sortMembers(ordered); err != nil {
		return Assignment{}, err
	}
	return s.neural.assign(generation, ordered, s.cfg.NeuralThreshold, s.cfg.ExtinctAfter, s.allocateID), nil
}

func sortMembers[G any](members []member[G]) error {
	sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })
	for i := 1; i < len(members); i++ {
		if members[i].id == members[i-1].id {
			return fmt.Errorf("duplicate member id %d", members[i].id)
		}
	}
	return nil
}

// AdjustFitness computes shared fitness, raw divided by species size, for
// every member of the given kind and refreshes staleness. It is meant to run
// once per generation after speciation.
func (s *Service) AdjustFitness(kind Kind, raw map[int64]float64) map[int64]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == KindNeural {
		return s.neural.adjust(raw)
	}
	return s.traits.adjust(raw)
}

// AllocateOffspring splits total offspring across populated species of kind.
func (s *Service) AllocateOffspring(kind Kind, total int) []Quota {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == KindNeural {
		return s.neural.allocate(total, s.cfg.MaxStagnation, s.cfg.ProtectedSpecies)
	}
	return s.traits.allocate(total, s.cfg.MaxStagnation, s.cfg.ProtectedSpecies)
}

// Retire marks pruned species extinct so they stop attracting members.
func (s *Service) Retire(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.traits.retire(set)
	s.neural.retire(set)
}

// ParentSpecies returns the species a species was founded from.
func (s *Service) ParentSpecies(id int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sp, ok := s.traits.find(id); ok {
		return sp.ParentSpeciesID, true
	}
	if sp, ok := s.neural.find(id); ok {
		return sp.ParentSpeciesID, true
	}
	return 0, false
}

func (s *Service) TraitSpecies() []TraitSpecies {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TraitSpecies, 0, len(s.traits.species))
	for _, sp := range s.traits.species {
		out = append(out, TraitSpecies{Bookkeeping: sp.Bookkeeping.clone(), Representative: sp.rep})
	}
	return out
}

func (s *Service) NeuralSpecies() []NeuralSpecies {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NeuralSpecies, 0, len(s.neural.species))
	for _, sp := range s.neural.species {
		out = append(out, NeuralSpecies{Bookkeeping: sp.Bookkeeping.clone(), Representative: sp.rep.Clone()})
	}
	return out
}

// Snapshots returns read-only views of every species of kind, extinct ones
// included.
func (s *Service) Snapshots(kind Kind) []model.SpeciesSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == KindNeural {
		return s.neural.snapshots()
	}
	return s.traits.snapshots()
}
