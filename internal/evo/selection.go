package evo

import (
	"fmt"
	"math/rand"
	"sort"
)

// Selector chooses a parent from the survivors of one species. ranked is
// ordered best first and poolSize is how many of its head survived
// truncation.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Scored, poolSize int) (Scored, error)
}

// TruncationSelector picks uniformly among the survivors.
type TruncationSelector struct{}

func (TruncationSelector) Name() string {
	return "truncation"
}

func (TruncationSelector) PickParent(rng *rand.Rand, ranked []Scored, poolSize int) (Scored, error) {
	if err := checkPool(rng, ranked, poolSize); err != nil {
		return Scored{}, err
	}
	return ranked[rng.Intn(poolSize)], nil
}

// TournamentSelector samples survivors and keeps the fittest.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []Scored, poolSize int) (Scored, error) {
	if err := checkPool(rng, ranked, poolSize); err != nil {
		return Scored{}, err
	}
	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	if tournamentSize > poolSize {
		tournamentSize = poolSize
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

func checkPool(rng *rand.Rand, ranked []Scored, poolSize int) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if poolSize <= 0 || poolSize > len(ranked) {
		return fmt.Errorf("invalid pool size: %d of %d", poolSize, len(ranked))
	}
	return nil
}

// rankScored orders best fitness first, lowest id first on ties.
func rankScored(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Fitness == scored[j].Fitness {
			return scored[i].Organism.ID < scored[j].Organism.ID
		}
		return scored[i].Fitness > scored[j].Fitness
	})
}

// survivorCount is how many of n ranked members may breed.
func survivorCount(n int, threshold float64) int {
	if n == 0 {
		return 0
	}
	k := int(float64(n)*threshold + 0.999999)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}
