package evo

import (
	"math/rand"
	"testing"

	"heredity/internal/reproduction"
)

func rankedFixture(fitness ...float64) []Scored {
	out := make([]Scored, 0, len(fitness))
	for i, f := range fitness {
		out = append(out, Scored{Organism: reproduction.Organism{ID: int64(i + 1)}, Fitness: f})
	}
	return out
}

func TestTruncationSelectorStaysInsidePool(t *testing.T) {
	ranked := rankedFixture(0.9, 0.8, 0.7, 0.2, 0.1)
	rng := rand.New(rand.NewSource(42))
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		parent, err := TruncationSelector{}.PickParent(rng, ranked, 3)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if parent.Organism.ID > 3 {
			t.Fatalf("picked organism %d outside the survivor pool", parent.Organism.ID)
		}
		seen[parent.Organism.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected every survivor to be picked, got %d", len(seen))
	}
}

func TestTournamentSelectorBiasesTowardFitter(t *testing.T) {
	ranked := rankedFixture(0.9, 0.5, 0.4, 0.3, 0.2, 0.1)
	rng := rand.New(rand.NewSource(7))
	counts := map[int64]int{}
	for i := 0; i < 600; i++ {
		parent, err := TournamentSelector{TournamentSize: 3}.PickParent(rng, ranked, len(ranked))
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[parent.Organism.ID]++
	}
	if counts[1] <= counts[6] {
		t.Fatalf("expected the fittest to win more tournaments: best=%d worst=%d", counts[1], counts[6])
	}
}

func TestSelectorsRejectInvalidPools(t *testing.T) {
	ranked := rankedFixture(1, 0.5)
	rng := rand.New(rand.NewSource(1))
	for _, s := range []Selector{TruncationSelector{}, TournamentSelector{}} {
		if _, err := s.PickParent(rng, ranked, 0); err == nil {
			t.Fatalf("%s: expected error for empty pool", s.Name())
		}
		if _, err := s.PickParent(rng, ranked, 3); err == nil {
			t.Fatalf("%s: expected error for oversized pool", s.Name())
		}
		if _, err := s.PickParent(nil, ranked, 1); err == nil {
			t.Fatalf("%s: expected error for missing random source", s.Name())
		}
	}
}

func TestRankScoredBreaksTiesByID(t *testing.T) {
	scored := []Scored{
		{Organism: reproduction.Organism{ID: 3}, Fitness: 1},
		{Organism: reproduction.Organism{ID: 1}, Fitness: 1},
		{Organism: reproduction.Organism{ID: 2}, Fitness: 2},
	}
	rankScored(scored)
	want := []int64{2, 1, 3}
	for i, s := range scored {
		if s.Organism.ID != want[i] {
			t.Fatalf("rank %d: got organism %d want %d", i, s.Organism.ID, want[i])
		}
	}
}

func TestSurvivorCount(t *testing.T) {
	cases := []struct {
		n         int
		threshold float64
		want      int
	}{
		{n: 0, threshold: 0.5, want: 0},
		{n: 1, threshold: 0.1, want: 1},
		{n: 10, threshold: 0.5, want: 5},
		{n: 5, threshold: 0.5, want: 3},
		{n: 4, threshold: 1, want: 4},
	}
	for _, tc := range cases {
		if got := survivorCount(tc.n, tc.threshold); got != tc.want {
			t.Fatalf("survivorCount(%d, %g) = %d want %d", tc.n, tc.threshold, got, tc.want)
		}
	}
}
