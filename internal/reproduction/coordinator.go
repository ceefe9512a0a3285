package reproduction

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/innovation"
)

var ErrIncompatibleParents = errors.New("incompatible parents")

// Basis selects which species assignment gates mating.
type Basis string

const (
	BasisTrait  Basis = "trait"
	BasisNeural Basis = "neural"
)

// Relation is how two species relate in the species tree.
type Relation int

const (
	Unrelated Relation = iota
	Sibling
	ParentChild
	SameSpecies
)

func (r Relation) String() string {
	switch r {
	case SameSpecies:
		return "same"
	case ParentChild:
		return "parent_child"
	case Sibling:
		return "sibling"
	default:
		return "unrelated"
	}
}

// SpeciesRelations answers which species a species was founded from.
type SpeciesRelations interface {
	ParentSpecies(id int64) (int64, bool)
}

type Config struct {
	Basis           Basis
	ParentChildRate float64
	SiblingRate     float64
	// VigorMultiplier and DepressionMultiplier scale the fitness capacity of
	// cross-species offspring.
	VigorMultiplier      float64
	DepressionMultiplier float64
	TraitMutation        diploid.MutationParams
	NeuralMutation       genotype.MutationConfig
	Workers              int
}

func DefaultConfig() Config {
	return Config{
		Basis:                BasisTrait,
		ParentChildRate:      0.3,
		SiblingRate:          0.1,
		VigorMultiplier:      1.15,
		DepressionMultiplier: 0.8,
		TraitMutation:        diploid.DefaultMutationParams(0.05),
		NeuralMutation:       genotype.DefaultMutationConfig(),
		Workers:              4,
	}
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Coordinator decides who may mate and produces offspring. Structural
// mutations go through the shared innovation registry.
type Coordinator struct {
	cfg       Config
	relations SpeciesRelations
	registry  *innovation.Registry
	mutator   *genotype.Mutator
	salt      uint64
	logger    *slog.Logger
}

func NewCoordinator(cfg Config, relations SpeciesRelations, registry *innovation.Registry, opts ...Option) *Coordinator {
	if cfg.Basis == "" {
		cfg.Basis = BasisTrait
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	c := &Coordinator{
		cfg:       cfg,
		relations: relations,
		registry:  registry,
		mutator:   genotype.NewMutatorFromConfig(cfg.NeuralMutation),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

// SetSalt changes the seed of the compatibility draw, typically once per
// generation, so a refused pair may succeed later.
func (c *Coordinator) SetSalt(salt uint64) {
	c.salt = salt
}

// Relation classifies the species of a and b under the configured basis.
func (c *Coordinator) Relation(a, b Organism) Relation {
	sa, sb := a.SpeciesID(c.cfg.Basis), b.SpeciesID(c.cfg.Basis)
	if sa == sb {
		return SameSpecies
	}
	if c.relations == nil {
		return Unrelated
	}
	pa, okA := c.relations.ParentSpecies(sa)
	pb, okB := c.relations.ParentSpecies(sb)
	if (okA && pa == sb) || (okB && pb == sa) {
		return ParentChild
	}
	// founders hang off a shared root (parent 0), so they are siblings too
	if okA && okB && pa == pb {
		return Sibling
	}
	return Unrelated
}

// MatingProbability is the tiered chance that a and b can mate.
func (c *Coordinator) MatingProbability(a, b Organism) float64 {
	switch c.Relation(a, b) {
	case SameSpecies:
		return 1
	case ParentChild:
		return c.cfg.ParentChildRate
	case Sibling:
		return c.cfg.SiblingRate
	default:
		return 0
	}
}

// CanMate is symmetric: the draw hashes the unordered pair of organism ids
// with the current salt instead of consuming a random stream.
func (c *Coordinator) CanMate(a, b Organism) bool {
	p := c.MatingProbability(a, b)
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return c.pairDraw(a.ID, b.ID) < p
}

func (c *Coordinator) pairDraw(a, b int64) float64 {
	if a > b {
		a, b = b, a
	}
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:], uint64(b))
	binary.LittleEndian.PutUint64(buf[16:], c.salt)
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	x := h.Sum64()
	// fmix64 finalizer; raw FNV leaves the high bits weakly mixed for
	// sequential ids.
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return float64(x>>11) / float64(uint64(1)<<53)
}

// Reproduce produces one child from a and b. It fails with
// ErrIncompatibleParents and a nil child when CanMate is false.
func (c *Coordinator) Reproduce(rng *rand.Rand, a, b Organism, childID int64) (*Organism, error) {
	child, err := c.breed(rng, a, b, childID)
	if err != nil {
		return nil, err
	}
	if err := c.structural(rng, child); err != nil {
		return nil, err
	}
	return child, nil
}

// breed runs everything that does not touch the innovation registry.
func (c *Coordinator) breed(rng *rand.Rand, a, b Organism, childID int64) (*Organism, error) {
	if !c.CanMate(a, b) {
		return nil, fmt.Errorf("%w: %d x %d (%s)", ErrIncompatibleParents, a.ID, b.ID, c.Relation(a, b))
	}

	traits, err := diploid.Crossover(rng, a.Traits, b.Traits)
	if err != nil {
		return nil, fmt.Errorf("trait crossover %d x %d: %w", a.ID, b.ID, err)
	}
	traits = traits.Mutate(rng, c.cfg.TraitMutation)

	brain := genotype.Crossover(rng, a.Brain, b.Brain)
	brain, ops, err := c.mutator.Parametric(rng, brain)
	if err != nil {
		return nil, fmt.Errorf("neural mutation %d x %d: %w", a.ID, b.ID, err)
	}

	generation := a.Generation
	if b.Generation > generation {
		generation = b.Generation
	}
	child := &Organism{
		ID:              childID,
		Generation:      generation + 1,
		Parents:         []int64{a.ID, b.ID},
		Traits:          traits,
		Brain:           brain,
		FitnessCapacity: 1,
		Operations:      append([]string{"crossover"}, ops...),
	}
	if a.SpeciesID(c.cfg.Basis) != b.SpeciesID(c.cfg.Basis) {
		c.applyHybrid(rng, child)
	}
	return child, nil
}

func (c *Coordinator) applyHybrid(rng *rand.Rand, child *Organism) {
	if rng.Intn(2) == 0 {
		child.Hybrid = HybridVigor
		child.FitnessCapacity = c.cfg.VigorMultiplier
	} else {
		child.Hybrid = HybridDepression
		child.FitnessCapacity = c.cfg.DepressionMultiplier
	}
}

func (c *Coordinator) structural(rng *rand.Rand, child *Organism) error {
	brain, ops, err := c.mutator.Structural(rng, c.registry, child.Brain)
	if err != nil {
		return fmt.Errorf("structural mutation of %d: %w", child.ID, err)
	}
	child.Brain = brain
	child.Operations = append(child.Operations, ops...)
	return nil
}

// Job is one requested mating.
type Job struct {
	A, B    Organism
	ChildID int64
	Seed    int64
}

// Result keeps the order of the submitted jobs. Child is nil whenever Err is
// set.
type Result struct {
	Child *Organism
	Err   error
}

// ReproduceBatch runs jobs in two phases. Compatibility, trait work and
// parametric neural mutation run on a bounded worker pool, each job on its
// own seeded source. Structural mutations then run sequentially in job order
// so innovation numbering does not depend on scheduling.
func (c *Coordinator) ReproduceBatch(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	rngs := make([]*rand.Rand, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job := jobs[i]
			rng := rand.New(rand.NewSource(job.Seed))
			rngs[i] = rng
			child, err := c.breed(rng, job.A, job.B, job.ChildID)
			results[i] = Result{Child: child, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Err != nil {
			if errors.Is(results[i].Err, ErrIncompatibleParents) {
				c.logger.Debug("mating refused", "a", jobs[i].A.ID, "b", jobs[i].B.ID, "relation", c.Relation(jobs[i].A, jobs[i].B).String())
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.structural(rngs[i], results[i].Child); err != nil {
			results[i] = Result{Err: err}
		}
	}
	return results, nil
}
