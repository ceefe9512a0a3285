package reproduction

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/innovation"
)

var schema = diploid.MustSchema(diploid.TraitSpec{Name: "size"}, diploid.TraitSpec{Name: "speed"})

// tree: founders 1 and 4 sit under the root; 1 founded 2 and 3.
type fakeTree map[int64]int64

func (f fakeTree) ParentSpecies(id int64) (int64, bool) {
	p, ok := f[id]
	return p, ok
}

var tree = fakeTree{1: 0, 2: 1, 3: 1, 4: 0}

func organism(t *testing.T, rng *rand.Rand, reg *innovation.Registry, id, species int64) Organism {
	t.Helper()
	brain, err := genotype.NewMinimal(rng, reg, 2, 1, genotype.MinimalOptions{})
	require.NoError(t, err)
	brain.SpeciesID = species
	return Organism{
		ID:     id,
		Traits: diploid.Random(rng, schema).WithSpeciesID(species),
		Brain:  brain,
	}
}

func setup(t *testing.T) (*Coordinator, *rand.Rand, *innovation.Registry) {
	t.Helper()
	reg := innovation.NewRegistry(3)
	return NewCoordinator(DefaultConfig(), tree, reg), rand.New(rand.NewSource(7)), reg
}

func TestRelationTiers(t *testing.T) {
	c, rng, reg := setup(t)
	a := organism(t, rng, reg, 1, 1)
	cases := []struct {
		species int64
		want    Relation
		prob    float64
	}{
		{species: 1, want: SameSpecies, prob: 1},
		{species: 2, want: ParentChild, prob: 0.3},
		{species: 4, want: Sibling, prob: 0.1},
		{species: 9, want: Unrelated, prob: 0},
	}
	for _, tc := range cases {
		b := organism(t, rng, reg, 2, tc.species)
		assert.Equal(t, tc.want, c.Relation(a, b), "species %d", tc.species)
		assert.Equal(t, tc.prob, c.MatingProbability(a, b))
	}

	s2 := organism(t, rng, reg, 3, 2)
	s3 := organism(t, rng, reg, 4, 3)
	assert.Equal(t, Sibling, c.Relation(s2, s3))
	assert.Equal(t, 0.1, c.MatingProbability(s2, s3))

	// a founder and a daughter of another founder are two steps apart
	r4 := organism(t, rng, reg, 6, 4)
	assert.Equal(t, Unrelated, c.Relation(s2, r4))
	assert.Zero(t, c.MatingProbability(r4, s3))
}

func TestFoundersHybridizeAtSiblingRate(t *testing.T) {
	c, rng, reg := setup(t)
	a := organism(t, rng, reg, 0, 1)
	b := organism(t, rng, reg, 0, 4)
	require.Equal(t, Sibling, c.Relation(a, b))

	const trials = 4000
	mated := 0
	for i := 0; i < trials; i++ {
		a.ID = int64(2*i + 1)
		b.ID = int64(2*i + 2)
		if c.CanMate(a, b) {
			mated++
		}
	}
	assert.InDelta(t, 0.1, float64(mated)/trials, 0.03)

	cfg := DefaultConfig()
	cfg.SiblingRate = 1
	c = NewCoordinator(cfg, tree, reg)
	child, err := c.Reproduce(rng, a, b, 99)
	require.NoError(t, err)
	assert.NotEqual(t, HybridNone, child.Hybrid)
}

func TestCanMateIsSymmetric(t *testing.T) {
	c, rng, reg := setup(t)
	var pop []Organism
	for i := int64(1); i <= 24; i++ {
		pop = append(pop, organism(t, rng, reg, i, 1+i%4))
	}
	for salt := uint64(0); salt < 3; salt++ {
		c.SetSalt(salt)
		for _, a := range pop {
			for _, b := range pop {
				require.Equal(t, c.CanMate(a, b), c.CanMate(b, a), "%d x %d", a.ID, b.ID)
			}
		}
	}
}

func TestCanMateTierRatesApproximate(t *testing.T) {
	c, rng, reg := setup(t)
	parent := organism(t, rng, reg, 0, 1)
	child := organism(t, rng, reg, 0, 2)
	sibling := organism(t, rng, reg, 0, 3)

	const trials = 4000
	var parentChild, siblings int
	for i := 0; i < trials; i++ {
		parent.ID = int64(2*i + 1)
		child.ID = int64(2*i + 2)
		sibling.ID = int64(100000 + i)
		if c.CanMate(parent, child) {
			parentChild++
		}
		if c.CanMate(child, sibling) {
			siblings++
		}
	}
	assert.InDelta(t, 0.3, float64(parentChild)/trials, 0.04)
	assert.InDelta(t, 0.1, float64(siblings)/trials, 0.03)
}

func TestReproduceIncompatibleYieldsNoChild(t *testing.T) {
	c, rng, reg := setup(t)
	a := organism(t, rng, reg, 1, 2)
	b := organism(t, rng, reg, 2, 4)

	child, err := c.Reproduce(rng, a, b, 3)
	require.ErrorIs(t, err, ErrIncompatibleParents)
	assert.Nil(t, child)
}

func TestReproduceSameSpecies(t *testing.T) {
	c, rng, reg := setup(t)
	a := organism(t, rng, reg, 1, 1)
	b := organism(t, rng, reg, 2, 1)
	a.Generation, b.Generation = 3, 5

	child, err := c.Reproduce(rng, a, b, 10)
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, int64(10), child.ID)
	assert.Equal(t, 6, child.Generation)
	assert.Equal(t, []int64{1, 2}, child.Parents)
	assert.Equal(t, HybridNone, child.Hybrid)
	assert.Equal(t, 1.0, child.FitnessCapacity)
	assert.Equal(t, "crossover", child.Operations[0])
	require.NoError(t, child.Brain.Validate())
	assert.Equal(t, schema.Len(), child.Traits.Len())

	// parents are untouched
	assert.Equal(t, int64(1), a.Traits.SpeciesID())
}

func TestReproduceInheritsFitterBrainStructure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NeuralMutation.AddNodeRate = 0
	cfg.NeuralMutation.AddConnRate = 0
	reg := innovation.NewRegistry(3)
	c := NewCoordinator(cfg, tree, reg)
	rng := rand.New(rand.NewSource(13))

	grown := organism(t, rng, reg, 1, 1)
	var err error
	grown.Brain, err = genotype.MutateAddNode(rng, reg, grown.Brain, "sigmoid")
	require.NoError(t, err)
	plain := organism(t, rng, reg, 2, 1)

	tests := []struct {
		name           string
		grownFitness   float64
		plainFitness   float64
		wantHidden     int
		wantConnection int
	}{
		{"grown parent fitter", 5, 1, 1, len(grown.Brain.Connections)},
		{"plain parent fitter", 1, 5, 0, len(plain.Brain.Connections)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := grown, plain
			a.Brain.Fitness, b.Brain.Fitness = tt.grownFitness, tt.plainFitness
			for i := int64(0); i < 20; i++ {
				child, err := c.Reproduce(rng, a, b, 100+i)
				require.NoError(t, err)
				assert.Equal(t, tt.wantHidden, child.Brain.HiddenCount())
				assert.Len(t, child.Brain.Connections, tt.wantConnection)
			}
		})
	}
}

func TestReproduceCrossSpeciesAppliesHybridModifier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParentChildRate = 1
	c := NewCoordinator(cfg, tree, innovation.NewRegistry(3))
	rng := rand.New(rand.NewSource(3))
	reg := innovation.NewRegistry(3)

	seen := map[HybridEffect]bool{}
	for i := int64(0); i < 40; i++ {
		a := organism(t, rng, reg, 2*i+1, 1)
		b := organism(t, rng, reg, 2*i+2, 2)
		child, err := c.Reproduce(rng, a, b, 1000+i)
		require.NoError(t, err)
		switch child.Hybrid {
		case HybridVigor:
			assert.Equal(t, cfg.VigorMultiplier, child.FitnessCapacity)
		case HybridDepression:
			assert.Equal(t, cfg.DepressionMultiplier, child.FitnessCapacity)
		default:
			t.Fatalf("cross-species child %d has no hybrid effect", child.ID)
		}
		seen[child.Hybrid] = true
	}
	assert.True(t, seen[HybridVigor])
	assert.True(t, seen[HybridDepression])
}

func TestNeuralBasisUsesBrainSpecies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Basis = BasisNeural
	reg := innovation.NewRegistry(3)
	c := NewCoordinator(cfg, tree, reg)
	rng := rand.New(rand.NewSource(5))

	a := organism(t, rng, reg, 1, 1)
	b := organism(t, rng, reg, 2, 1)
	a.Brain.SpeciesID = 2
	b.Brain.SpeciesID = 4
	assert.Equal(t, Unrelated, c.Relation(a, b))
	assert.False(t, c.CanMate(a, b))
}

func TestReproduceBatchIsDeterministic(t *testing.T) {
	run := func() []Result {
		cfg := DefaultConfig()
		cfg.NeuralMutation.AddNodeRate = 0.5
		cfg.NeuralMutation.AddConnRate = 0.5
		cfg.Workers = 8
		reg := innovation.NewRegistry(3)
		c := NewCoordinator(cfg, tree, reg)
		rng := rand.New(rand.NewSource(11))

		var jobs []Job
		for i := int64(0); i < 30; i++ {
			species := int64(1)
			if i%3 == 0 {
				species = 4
			}
			jobs = append(jobs, Job{
				A:       organism(t, rng, reg, 2*i+1, 1),
				B:       organism(t, rng, reg, 2*i+2, species),
				ChildID: 100 + i,
				Seed:    i,
			})
		}
		results, err := c.ReproduceBatch(context.Background(), jobs)
		require.NoError(t, err)
		return results
	}

	first, second := run(), run()
	require.Len(t, first, 30)
	for i := range first {
		if i%3 == 0 {
			require.ErrorIs(t, first[i].Err, ErrIncompatibleParents)
			assert.Nil(t, first[i].Child)
			continue
		}
		require.NoError(t, first[i].Err)
		assert.Equal(t, int64(100+i), first[i].Child.ID)
		assert.Equal(t, first[i].Child.Brain, second[i].Child.Brain, "job %d", i)
		assert.Equal(t, first[i].Child.Traits.Express(), second[i].Child.Traits.Express())
	}
}

func TestReproduceBatchHonoursCancellation(t *testing.T) {
	c, rng, reg := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ReproduceBatch(ctx, []Job{{A: organism(t, rng, reg, 1, 1), B: organism(t, rng, reg, 2, 1), ChildID: 3}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOrganismRecordRoundTrip(t *testing.T) {
	_, rng, reg := setup(t)
	o := organism(t, rng, reg, 9, 2)
	o.Parents = []int64{1, 2}
	o.FitnessCapacity = 0.8
	o.Hybrid = HybridDepression

	back, err := FromRecord(o.ToRecord(), schema)
	require.NoError(t, err)
	assert.Equal(t, o.ID, back.ID)
	assert.Equal(t, o.Parents, back.Parents)
	assert.Equal(t, o.Brain, back.Brain)
	assert.Equal(t, o.Traits.Express(), back.Traits.Express())
	assert.Equal(t, o.Hybrid, back.Hybrid)
	assert.Equal(t, int64(2), back.SpeciesID(BasisTrait))
}
