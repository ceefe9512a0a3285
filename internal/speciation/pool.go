package speciation

import (
	"math"
	"sort"

	"heredity/internal/model"
)

// Bookkeeping is the per-species state shared by trait and neural species.
type Bookkeeping struct {
	ID                int64
	MemberIDs         []int64
	StaleGenerations  int
	EmptyGenerations  int
	SharedFitnessSum  float64
	BestFitness       float64
	FoundedGeneration int
	ParentSpeciesID   int64
	Extinct           bool

	scored bool
}

func (b Bookkeeping) clone() Bookkeeping {
	b.MemberIDs = append([]int64(nil), b.MemberIDs...)
	return b
}

func (b Bookkeeping) snapshot(kind string) model.SpeciesSnapshot {
	return model.SpeciesSnapshot{
		ID:                b.ID,
		Kind:              kind,
		MemberCount:       len(b.MemberIDs),
		FoundedGeneration: b.FoundedGeneration,
		ParentSpeciesID:   b.ParentSpeciesID,
		Staleness:         b.StaleGenerations,
		BestFitness:       b.BestFitness,
		SharedFitnessSum:  b.SharedFitnessSum,
		Extinct:           b.Extinct,
	}
}

type member[G any] struct {
	id            int64
	parentSpecies int64
	genome        G
}

type entry[G any] struct {
	Bookkeeping
	rep G
}

// pool runs the clustering algorithm for one genome representation.
type pool[G any] struct {
	kind     string
	species  []*entry[G]
	distance func(a, b G) float64
}

// assign partitions members, already sorted by id, into species. Each member
// joins the first live species, in id order, whose representative is within
// threshold; otherwise it founds a new species. Representatives are then
// refreshed to the first member assigned this generation.
func (p *pool[G]) assign(generation int, members []member[G], threshold float64, extinctAfter int, nextID func() int64) Assignment {
	out := Assignment{SpeciesOf: make(map[int64]int64, len(members))}

	live := make([]*entry[G], 0, len(p.species))
	for _, sp := range p.species {
		if sp.Extinct {
			continue
		}
		sp.MemberIDs = nil
		live = append(live, sp)
	}
	firstOf := make(map[int64]G, len(live))

	for _, m := range members {
		var home *entry[G]
		for _, sp := range live {
			if p.distance(m.genome, sp.rep) <= threshold {
				home = sp
				break
			}
		}
		if home == nil {
			home = &entry[G]{
				Bookkeeping: Bookkeeping{
					ID:                nextID(),
					FoundedGeneration: generation,
					ParentSpeciesID:   m.parentSpecies,
				},
				rep: m.genome,
			}
			live = append(live, home)
			p.species = append(p.species, home)
			out.Founded = append(out.Founded, home.ID)
		}
		if len(home.MemberIDs) == 0 {
			firstOf[home.ID] = m.genome
		}
		home.MemberIDs = append(home.MemberIDs, m.id)
		out.SpeciesOf[m.id] = home.ID
	}

	for _, sp := range live {
		if len(sp.MemberIDs) > 0 {
			sp.rep = firstOf[sp.ID]
			sp.EmptyGenerations = 0
			continue
		}
		sp.EmptyGenerations++
		sp.SharedFitnessSum = 0
		if sp.EmptyGenerations > extinctAfter {
			sp.Extinct = true
			out.Extinct = append(out.Extinct, sp.ID)
		}
	}
	return out
}

// adjust applies explicit fitness sharing and updates staleness from raw
// fitness. Negative raw fitness shares as zero.
func (p *pool[G]) adjust(raw map[int64]float64) map[int64]float64 {
	shared := make(map[int64]float64, len(raw))
	for _, sp := range p.species {
		if sp.Extinct || len(sp.MemberIDs) == 0 {
			continue
		}
		n := float64(len(sp.MemberIDs))
		sum := 0.0
		best := math.Inf(-1)
		for _, id := range sp.MemberIDs {
			f := raw[id]
			if f > best {
				best = f
			}
			s := math.Max(f, 0) / n
			shared[id] = s
			sum += s
		}
		sp.SharedFitnessSum = sum
		if !sp.scored || best > sp.BestFitness {
			sp.BestFitness = best
			sp.StaleGenerations = 0
			sp.scored = true
		} else {
			sp.StaleGenerations++
		}
	}
	return shared
}

// Quota is the number of offspring a species may produce.
type Quota struct {
	SpeciesID int64
	Count     int
}

// allocate splits total offspring across populated species in proportion to
// their shared fitness sums using the largest-remainder method. Species
// stale for maxStagnation generations get nothing unless they rank in the
// top protect species by best fitness.
func (p *pool[G]) allocate(total, maxStagnation, protect int) []Quota {
	if total <= 0 {
		return nil
	}
	populated := make([]*entry[G], 0, len(p.species))
	for _, sp := range p.species {
		if !sp.Extinct && len(sp.MemberIDs) > 0 {
			populated = append(populated, sp)
		}
	}
	if len(populated) == 0 {
		return nil
	}

	byBest := append([]*entry[G](nil), populated...)
	sort.SliceStable(byBest, func(i, j int) bool {
		if byBest[i].BestFitness == byBest[j].BestFitness {
			return byBest[i].ID < byBest[j].ID
		}
		return byBest[i].BestFitness > byBest[j].BestFitness
	})
	protected := make(map[int64]bool, protect)
	for i := 0; i < protect && i < len(byBest); i++ {
		protected[byBest[i].ID] = true
	}

	eligible := make([]*entry[G], 0, len(populated))
	for _, sp := range populated {
		if maxStagnation > 0 && sp.StaleGenerations >= maxStagnation && !protected[sp.ID] {
			continue
		}
		eligible = append(eligible, sp)
	}
	if len(eligible) == 0 {
		eligible = populated
	}

	scores := make([]float64, len(eligible))
	totalScore := 0.0
	for i, sp := range eligible {
		scores[i] = sp.SharedFitnessSum
		totalScore += scores[i]
	}
	if totalScore <= 0 {
		for i := range scores {
			scores[i] = 1
		}
		totalScore = float64(len(scores))
	}

	type alloc struct {
		id        int64
		count     int
		remainder float64
	}
	allocs := make([]alloc, 0, len(eligible))
	assigned := 0
	for i, sp := range eligible {
		share := scores[i] / totalScore * float64(total)
		base := int(math.Floor(share))
		allocs = append(allocs, alloc{id: sp.ID, count: base, remainder: share - float64(base)})
		assigned += base
	}
	left := total - assigned
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].remainder == allocs[j].remainder {
			return allocs[i].id < allocs[j].id
		}
		return allocs[i].remainder > allocs[j].remainder
	})
	for i := 0; left > 0; i = (i + 1) % len(allocs) {
		allocs[i].count++
		left--
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].id < allocs[j].id })

	out := make([]Quota, 0, len(allocs))
	for _, a := range allocs {
		if a.count > 0 {
			out = append(out, Quota{SpeciesID: a.id, Count: a.count})
		}
	}
	return out
}

func (p *pool[G]) retire(ids map[int64]bool) {
	for _, sp := range p.species {
		if ids[sp.ID] {
			sp.Extinct = true
		}
	}
}

// clone copies every entry. Representatives go through cloneRep.
func (p *pool[G]) clone(cloneRep func(G) G) []*entry[G] {
	out := make([]*entry[G], 0, len(p.species))
	for _, sp := range p.species {
		out = append(out, &entry[G]{Bookkeeping: sp.Bookkeeping.clone(), rep: cloneRep(sp.rep)})
	}
	return out
}

func (p *pool[G]) find(id int64) (*entry[G], bool) {
	for _, sp := range p.species {
		if sp.ID == id {
			return sp, true
		}
	}
	return nil, false
}

func (p *pool[G]) snapshots() []model.SpeciesSnapshot {
	out := make([]model.SpeciesSnapshot, 0, len(p.species))
	for _, sp := range p.species {
		out = append(out, sp.snapshot(p.kind))
	}
	return out
}
