package genotype

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heredity/internal/innovation"
)

func TestCompatibilityDistanceToSelfIsZero(t *testing.T) {
	g, reg, rng := minimal(t, 21, 3, 2)
	m := NewMutatorFromConfig(DefaultMutationConfig())
	for i := 0; i < 30; i++ {
		assert.Zero(t, CompatibilityDistance(g, g, DefaultCoefficients()))
		var err error
		g, _, err = m.Mutate(rng, reg, g)
		require.NoError(t, err)
	}
	assert.Zero(t, CompatibilityDistance(Genome{}, Genome{}, DefaultCoefficients()))
}

func TestCompatibilityDistanceTerms(t *testing.T) {
	a := Genome{Connections: []ConnectionGene{
		{Innovation: 1, Weight: 0.5},
		{Innovation: 2, Weight: 1.0},
		{Innovation: 4, Weight: 0.0},
	}}
	b := Genome{Connections: []ConnectionGene{
		{Innovation: 1, Weight: 0.0},
		{Innovation: 3, Weight: 0.0},
		{Innovation: 5, Weight: 0.0},
		{Innovation: 6, Weight: 0.0},
	}}
	c := Coefficients{Excess: 2, Disjoint: 3, Weight: 4, SmallGenomeThreshold: 0}

	// matching: 1; disjoint: 2, 3, 4; excess: 5, 6; N = 4
	want := 2*2.0/4 + 3*3.0/4 + 4*0.5
	assert.InDelta(t, want, CompatibilityDistance(a, b, c), 1e-12)
	assert.InDelta(t, want, CompatibilityDistance(b, a, c), 1e-12)

	c.SmallGenomeThreshold = 20
	assert.InDelta(t, 2*2.0+3*3.0+4*0.5, CompatibilityDistance(a, b, c), 1e-12)
}

func TestCrossoverTakesDisjointGenesFromFitterParent(t *testing.T) {
	base, reg, rng := minimal(t, 22, 2, 1)
	fitter, err := MutateAddNode(rng, reg, base, "")
	require.NoError(t, err)
	fitter.Fitness = 10
	weaker := base.Clone()
	weaker.Fitness = 1

	for i := 0; i < 20; i++ {
		child := Crossover(rng, weaker, fitter)
		require.Len(t, child.Connections, len(fitter.Connections))
		require.Equal(t, fitter.HiddenCount(), child.HiddenCount())
		require.NoError(t, child.Validate())
		require.False(t, child.HasCycle())
		assert.Zero(t, child.Fitness)
	}

	fitter.Fitness, weaker.Fitness = 1, 10
	child := Crossover(rng, weaker, fitter)
	assert.Zero(t, child.HiddenCount(), "extra genes of the weaker parent are dropped")
}

func TestCrossoverTieUsesEitherParentStructure(t *testing.T) {
	base, reg, rng := minimal(t, 23, 2, 1)
	grown, err := MutateAddNode(rng, reg, base, "")
	require.NoError(t, err)

	sawSmall, sawLarge := false, false
	for i := 0; i < 64; i++ {
		child := Crossover(rng, base, grown)
		if child.HiddenCount() == 0 {
			sawSmall = true
		} else {
			sawLarge = true
		}
	}
	assert.True(t, sawSmall)
	assert.True(t, sawLarge)
}

func TestCrossoverDisabledInheritanceRate(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	reg := innovation.NewRegistry(2)
	a, err := NewMinimal(rng, reg, 1, 1, MinimalOptions{})
	require.NoError(t, err)
	b := a.Clone()
	a.Fitness = 1
	b.Connections[0].Enabled = false

	disabled := 0
	const trials = 4000
	for i := 0; i < trials; i++ {
		if !Crossover(rng, a, b).Connections[0].Enabled {
			disabled++
		}
	}
	assert.InDelta(t, DisabledInheritance, float64(disabled)/trials, 0.03)
}

func TestCrossoverMatchingGenesMixWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(25))
	reg := innovation.NewRegistry(4)
	a, err := NewMinimal(rng, reg, 2, 2, MinimalOptions{})
	require.NoError(t, err)
	b := a.Clone()
	for i := range a.Connections {
		a.Connections[i].Weight = 1
		b.Connections[i].Weight = -1
	}

	fromA, fromB := 0, 0
	for i := 0; i < 50; i++ {
		for _, c := range Crossover(rng, a, b).Connections {
			if c.Weight == 1 {
				fromA++
			} else {
				fromB++
			}
		}
	}
	assert.Positive(t, fromA)
	assert.Positive(t, fromB)
}

func TestSignatureIgnoresWeights(t *testing.T) {
	g, _, _ := minimal(t, 26, 2, 1)
	reweighted, err := SetWeight(g, g.Connections[0].Innovation, 3)
	require.NoError(t, err)
	assert.Equal(t, ComputeSignature(g).Fingerprint, ComputeSignature(reweighted).Fingerprint)

	reg := innovation.NewRegistry(10)
	grown, err := MutateAddNode(rand.New(rand.NewSource(1)), reg, g, "")
	require.NoError(t, err)
	sig := ComputeSignature(grown)
	assert.NotEqual(t, ComputeSignature(g).Fingerprint, sig.Fingerprint)
	assert.Equal(t, 1, sig.Summary.HiddenNodes)
}

func TestRecordRoundTripKeepsDisabledGenes(t *testing.T) {
	g, reg, rng := minimal(t, 27, 2, 1)
	g, err := MutateAddNode(rng, reg, g, "tanh")
	require.NoError(t, err)
	g.Fitness = 1.5
	g.SpeciesID = 3

	back, err := FromRecord(g.ToRecord())
	require.NoError(t, err)
	assert.Equal(t, g, back)
	assert.Equal(t, len(g.Connections)-1, back.EnabledCount())

	rec := g.ToRecord()
	rec.Connections[0].Target = 99
	_, err = FromRecord(rec)
	require.ErrorIs(t, err, ErrDanglingTarget)
}
