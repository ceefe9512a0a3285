package speciation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/innovation"
)

var schema = diploid.MustSchema(diploid.TraitSpec{Name: "size"}, diploid.TraitSpec{Name: "hue"})

func uniformGenome(t *testing.T, v float64) *diploid.Genome {
	t.Helper()
	c := diploid.Chromosome{{Value: v, Dominance: 0.5}, {Value: v, Dominance: 0.5}}
	g, err := diploid.New(schema, c, c)
	require.NoError(t, err)
	return g
}

func neuralPopulation(t *testing.T, seed int64, n int) []NeuralMember {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	reg := innovation.NewRegistry(3)
	m := genotype.NewMutatorFromConfig(genotype.MutationConfig{
		Weights:     genotype.PerturbPolicy{Perturb: 0.9, Sigma: 1, Range: 2},
		AddNodeRate: 0.3,
		AddConnRate: 0.3,
	})
	out := make([]NeuralMember, 0, n)
	for i := 0; i < n; i++ {
		g, err := genotype.NewMinimal(rng, reg, 2, 1, genotype.MinimalOptions{})
		require.NoError(t, err)
		for j := 0; j < i%5; j++ {
			g, _, err = m.Mutate(rng, reg, g)
			require.NoError(t, err)
		}
		out = append(out, NeuralMember{ID: int64(i + 1), Genome: g})
	}
	return out
}

func TestSpeciateNeuralPartitionsPopulation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NeuralThreshold = 1.0
	svc := NewService(cfg)
	members := neuralPopulation(t, 1, 40)

	for gen := 0; gen < 3; gen++ {
		// reversed input order must not matter
		reversed := make([]NeuralMember, len(members))
		for i := range members {
			reversed[len(members)-1-i] = members[i]
		}
		out, err := svc.SpeciateNeural(gen, reversed)
		require.NoError(t, err)
		require.Len(t, out.SpeciesOf, len(members))

		seen := map[int64]int{}
		for _, sp := range svc.NeuralSpecies() {
			for _, id := range sp.MemberIDs {
				seen[id]++
				assert.Equal(t, sp.ID, out.SpeciesOf[id])
			}
		}
		require.Len(t, seen, len(members))
		for id, count := range seen {
			assert.Equal(t, 1, count, "member %d", id)
		}
	}
}

func TestSpeciationIsDeterministic(t *testing.T) {
	run := func() map[int64]int64 {
		svc := NewService(DefaultConfig())
		out, err := svc.SpeciateNeural(0, neuralPopulation(t, 9, 30))
		require.NoError(t, err)
		return out.SpeciesOf
	}
	assert.Equal(t, run(), run())
}

func TestSpeciateTraitsFoundsAndJoins(t *testing.T) {
	svc := NewService(DefaultConfig())
	out, err := svc.SpeciateTraits(0, []TraitMember{
		{ID: 3, Genome: uniformGenome(t, 0.9)},
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: uniformGenome(t, 0.15)},
	})
	require.NoError(t, err)
	require.Len(t, out.Founded, 2)
	assert.Equal(t, out.SpeciesOf[1], out.SpeciesOf[2])
	assert.NotEqual(t, out.SpeciesOf[1], out.SpeciesOf[3])

	species := svc.TraitSpecies()
	require.Len(t, species, 2)
	assert.Equal(t, []int64{1, 2}, species[0].MemberIDs)
	assert.Equal(t, 0.1, species[0].Representative.Express()["size"], "representative is the first assigned member")
}

func TestRepresentativeRefreshesEachGeneration(t *testing.T) {
	svc := NewService(DefaultConfig())
	_, err := svc.SpeciateTraits(0, []TraitMember{{ID: 1, Genome: uniformGenome(t, 0.10)}})
	require.NoError(t, err)
	_, err = svc.SpeciateTraits(1, []TraitMember{{ID: 2, Genome: uniformGenome(t, 0.20)}})
	require.NoError(t, err)
	// drifted one step from the refreshed representative, two from the founder
	out, err := svc.SpeciateTraits(2, []TraitMember{{ID: 3, Genome: uniformGenome(t, 0.30)}})
	require.NoError(t, err)
	assert.Empty(t, out.Founded)
	assert.Len(t, svc.TraitSpecies(), 1)
}

func TestEmptySpeciesGoExtinct(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExtinctAfter = 1
	svc := NewService(cfg)

	first, err := svc.SpeciateTraits(0, []TraitMember{
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: uniformGenome(t, 0.9)},
	})
	require.NoError(t, err)
	highSpecies := first.SpeciesOf[2]

	only := []TraitMember{{ID: 3, Genome: uniformGenome(t, 0.1)}}
	out, err := svc.SpeciateTraits(1, only)
	require.NoError(t, err)
	assert.Empty(t, out.Extinct, "one empty generation is tolerated")

	out, err = svc.SpeciateTraits(2, only)
	require.NoError(t, err)
	assert.Equal(t, []int64{highSpecies}, out.Extinct)

	// an extinct species no longer attracts members
	out, err = svc.SpeciateTraits(3, []TraitMember{{ID: 4, Genome: uniformGenome(t, 0.9)}, {ID: 5, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)
	assert.NotEqual(t, highSpecies, out.SpeciesOf[4])
	assert.Len(t, out.Founded, 1)
}

func TestFoundedSpeciesRecordsParentSpecies(t *testing.T) {
	svc := NewService(DefaultConfig())
	first, err := svc.SpeciateTraits(0, []TraitMember{{ID: 1, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)
	parent := first.SpeciesOf[1]

	out, err := svc.SpeciateTraits(1, []TraitMember{
		{ID: 2, ParentSpeciesID: parent, Genome: uniformGenome(t, 0.1)},
		{ID: 3, ParentSpeciesID: parent, Genome: uniformGenome(t, 0.8)},
	})
	require.NoError(t, err)
	require.Len(t, out.Founded, 1)
	got, ok := svc.ParentSpecies(out.Founded[0])
	require.True(t, ok)
	assert.Equal(t, parent, got)

	_, ok = svc.ParentSpecies(999)
	assert.False(t, ok)
}

func TestAdjustFitnessSharesBySpeciesSize(t *testing.T) {
	svc := NewService(DefaultConfig())
	_, err := svc.SpeciateTraits(0, []TraitMember{
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: uniformGenome(t, 0.1)},
		{ID: 3, Genome: uniformGenome(t, 0.9)},
	})
	require.NoError(t, err)

	shared := svc.AdjustFitness(KindTrait, map[int64]float64{1: 4, 2: 2, 3: 3})
	assert.Equal(t, 2.0, shared[1])
	assert.Equal(t, 1.0, shared[2])
	assert.Equal(t, 3.0, shared[3])

	snaps := svc.Snapshots(KindTrait)
	require.Len(t, snaps, 2)
	assert.Equal(t, 3.0, snaps[0].SharedFitnessSum)
	assert.Equal(t, 4.0, snaps[0].BestFitness)
	assert.Equal(t, "trait", snaps[0].Kind)

	negative := svc.AdjustFitness(KindTrait, map[int64]float64{1: -1, 2: -1, 3: 0})
	assert.Zero(t, negative[1])
}

func TestAllocateOffspringLargestRemainder(t *testing.T) {
	svc := NewService(DefaultConfig())
	_, err := svc.SpeciateTraits(0, []TraitMember{
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: uniformGenome(t, 0.5)},
		{ID: 3, Genome: uniformGenome(t, 0.9)},
	})
	require.NoError(t, err)
	svc.AdjustFitness(KindTrait, map[int64]float64{1: 1, 2: 1, 3: 2})

	quotas := svc.AllocateOffspring(KindTrait, 10)
	total := 0
	for _, q := range quotas {
		total += q.Count
	}
	assert.Equal(t, 10, total)
	require.Len(t, quotas, 3)
	assert.Equal(t, 5, quotas[2].Count)

	assert.Nil(t, svc.AllocateOffspring(KindTrait, 0))
}

func TestAllocateOffspringSkipsStaleSpecies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStagnation = 2
	cfg.ProtectedSpecies = 1
	svc := NewService(cfg)
	members := []TraitMember{
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: uniformGenome(t, 0.9)},
	}
	for gen := 0; gen < 4; gen++ {
		out, err := svc.SpeciateTraits(gen, members)
		require.NoError(t, err)
		require.Len(t, out.SpeciesOf, 2)
		svc.AdjustFitness(KindTrait, map[int64]float64{1: 5, 2: 1})
	}
	quotas := svc.AllocateOffspring(KindTrait, 6)
	require.Len(t, quotas, 1, "stale species without the best fitness get nothing")
	assert.Equal(t, 6, quotas[0].Count)
}

func TestRetireStopsAttractingMembers(t *testing.T) {
	svc := NewService(DefaultConfig())
	first, err := svc.SpeciateTraits(0, []TraitMember{{ID: 1, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)
	svc.Retire([]int64{first.SpeciesOf[1]})

	out, err := svc.SpeciateTraits(1, []TraitMember{{ID: 2, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)
	assert.NotEqual(t, first.SpeciesOf[1], out.SpeciesOf[2])
}

func TestSpeciateTraitsRejectsMixedSchemas(t *testing.T) {
	svc := NewService(DefaultConfig())
	other := diploid.MustSchema(diploid.TraitSpec{Name: "mass"})
	rng := rand.New(rand.NewSource(1))
	_, err := svc.SpeciateTraits(0, []TraitMember{
		{ID: 1, Genome: uniformGenome(t, 0.1)},
		{ID: 2, Genome: diploid.Random(rng, other)},
	})
	require.ErrorIs(t, err, ErrMixedSchemas)
}

func TestSpeciesIDsUniqueAcrossKinds(t *testing.T) {
	svc := NewService(DefaultConfig())
	traits, err := svc.SpeciateTraits(0, []TraitMember{{ID: 1, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)
	neural, err := svc.SpeciateNeural(0, neuralPopulation(t, 2, 1))
	require.NoError(t, err)
	assert.NotEqual(t, traits.SpeciesOf[1], neural.SpeciesOf[1])
}

func TestCloneIsIndependent(t *testing.T) {
	svc := NewService(DefaultConfig())
	_, err := svc.SpeciateTraits(0, []TraitMember{{ID: 1, Genome: uniformGenome(t, 0.1)}})
	require.NoError(t, err)

	clone := svc.Clone()
	out, err := clone.SpeciateTraits(1, []TraitMember{
		{ID: 2, Genome: uniformGenome(t, 0.1)},
		{ID: 3, Genome: uniformGenome(t, 0.9)},
	})
	require.NoError(t, err)
	require.Len(t, out.Founded, 1)

	assert.Len(t, svc.TraitSpecies(), 1, "original keeps its species")
	assert.Equal(t, []int64{1}, svc.TraitSpecies()[0].MemberIDs)
	assert.Len(t, clone.TraitSpecies(), 2)

	// the id counter was copied, so the original reissues the clone's id
	again, err := svc.SpeciateTraits(1, []TraitMember{{ID: 3, Genome: uniformGenome(t, 0.9)}})
	require.NoError(t, err)
	assert.Equal(t, out.Founded, again.Founded)
}
