package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"heredity/internal/model"
)

var (
	ErrUnknownOrganism = errors.New("unknown organism")
	ErrDuplicateBirth  = errors.New("organism already recorded")
	ErrGenerationOrder = errors.New("generation is older than the ledger")
	ErrAlreadyRetired  = errors.New("organism already retired")
)

type Config struct {
	// MaxStagnation prunes species whose staleness exceeds it. Zero disables
	// pruning.
	MaxStagnation int
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Ledger is the population's record keeper: the species table, generation
// counter, fitness history and lineage. Records outlive the genomes they
// describe.
type Ledger struct {
	mu         sync.RWMutex
	cfg        Config
	logger     *slog.Logger
	generation int

	active   map[int64]model.SpeciesSnapshot
	archived map[int64]model.SpeciesSnapshot
	parents  map[int64]int64

	speciesHistory []model.SpeciesGeneration
	fitness        []model.GenerationStats

	lineage map[int64]*model.LineageRecord
	births  []int64
}

func New(cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:      cfg,
		logger:   slog.Default(),
		active:   make(map[int64]model.SpeciesSnapshot),
		archived: make(map[int64]model.SpeciesSnapshot),
		parents:  make(map[int64]int64),
		lineage:  make(map[int64]*model.LineageRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Generation() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation
}

// RecordBirth appends a lineage record.
func (l *Ledger) RecordBirth(rec model.LineageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.lineage[rec.OrganismID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateBirth, rec.OrganismID)
	}
	rec.ParentIDs = append([]int64(nil), rec.ParentIDs...)
	l.lineage[rec.OrganismID] = &rec
	l.births = append(l.births, rec.OrganismID)
	return nil
}

// UpdateOrganism refreshes the species and fitness fields of a lineage
// record after evaluation and speciation.
func (l *Ledger) UpdateOrganism(id, traitSpecies, neuralSpecies int64, fitness float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.lineage[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrganism, id)
	}
	rec.TraitSpeciesID = traitSpecies
	rec.NeuralSpeciesID = neuralSpecies
	rec.Fitness = fitness
	return nil
}

// Retire archives the death of an organism. Its lineage record stays.
func (l *Ledger) Retire(id int64, generation int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.lineage[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOrganism, id)
	}
	if rec.Retired {
		return fmt.Errorf("%w: %d", ErrAlreadyRetired, id)
	}
	rec.Retired = true
	rec.RetiredGeneration = generation
	return nil
}

func (l *Ledger) Lineage(id int64) (model.LineageRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.lineage[id]
	if !ok {
		return model.LineageRecord{}, false
	}
	return copyLineage(*rec), true
}

// LineageRecords returns every record in birth order.
func (l *Ledger) LineageRecords() []model.LineageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.LineageRecord, 0, len(l.births))
	for _, id := range l.births {
		out = append(out, copyLineage(*l.lineage[id]))
	}
	return out
}

// Ancestors walks parent pointers breadth first up to depth generations and
// returns the ids found, nearest first. Unknown ancestors end their branch.
func (l *Ledger) Ancestors(id int64, depth int) []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := map[int64]bool{id: true}
	frontier := []int64{id}
	var out []int64
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []int64
		for _, cur := range frontier {
			rec, ok := l.lineage[cur]
			if !ok {
				continue
			}
			for _, p := range rec.ParentIDs {
				if seen[p] {
					continue
				}
				seen[p] = true
				out = append(out, p)
				next = append(next, p)
			}
		}
		frontier = next
	}
	return out
}

func copyLineage(rec model.LineageRecord) model.LineageRecord {
	rec.ParentIDs = append([]int64(nil), rec.ParentIDs...)
	return rec
}

// RecordSpecies commits the species table for a generation. Species seen
// for the first time are reported as new; species reported extinct, and
// species pruned for stagnation, are moved to the archive. The best species
// of each kind is never pruned. The returned record lists the pruned ids in
// ExtinctSpecies alongside the naturally extinct ones.
func (l *Ledger) RecordSpecies(generation int, snapshots []model.SpeciesSnapshot) (model.SpeciesGeneration, []int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if generation < l.generation {
		return model.SpeciesGeneration{}, nil, fmt.Errorf("%w: %d < %d", ErrGenerationOrder, generation, l.generation)
	}
	return l.recordSpeciesLocked(generation, snapshots)
}

// RecordGeneration commits a generation's species table and births
// together. Nothing is written unless the generation is in order and every
// birth is new.
func (l *Ledger) RecordGeneration(generation int, snapshots []model.SpeciesSnapshot, births []model.LineageRecord) (model.SpeciesGeneration, []int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if generation < l.generation {
		return model.SpeciesGeneration{}, nil, fmt.Errorf("%w: %d < %d", ErrGenerationOrder, generation, l.generation)
	}
	seen := make(map[int64]bool, len(births))
	for _, rec := range births {
		if _, ok := l.lineage[rec.OrganismID]; ok || seen[rec.OrganismID] {
			return model.SpeciesGeneration{}, nil, fmt.Errorf("%w: %d", ErrDuplicateBirth, rec.OrganismID)
		}
		seen[rec.OrganismID] = true
	}

	out, pruned, err := l.recordSpeciesLocked(generation, snapshots)
	if err != nil {
		return model.SpeciesGeneration{}, nil, err
	}
	for _, rec := range births {
		rec.ParentIDs = append([]int64(nil), rec.ParentIDs...)
		l.lineage[rec.OrganismID] = &rec
		l.births = append(l.births, rec.OrganismID)
	}
	return out, pruned, nil
}

func (l *Ledger) recordSpeciesLocked(generation int, snapshots []model.SpeciesSnapshot) (model.SpeciesGeneration, []int64, error) {
	ordered := append([]model.SpeciesSnapshot(nil), snapshots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	out := model.SpeciesGeneration{Generation: generation}
	for _, sp := range ordered {
		_, wasActive := l.active[sp.ID]
		_, wasArchived := l.archived[sp.ID]
		if !wasActive && !wasArchived {
			out.NewSpecies = append(out.NewSpecies, sp.ID)
			l.parents[sp.ID] = sp.ParentSpeciesID
		}
		if wasArchived {
			continue
		}
		if sp.Extinct {
			if wasActive {
				delete(l.active, sp.ID)
				l.archived[sp.ID] = sp
				out.ExtinctSpecies = append(out.ExtinctSpecies, sp.ID)
			} else {
				l.archived[sp.ID] = sp
			}
			continue
		}
		l.active[sp.ID] = sp
	}

	pruned := l.prune()
	for _, id := range pruned {
		sp := l.active[id]
		sp.Extinct = true
		delete(l.active, id)
		l.archived[id] = sp
		out.ExtinctSpecies = append(out.ExtinctSpecies, id)
		l.logger.Debug("species pruned", "species", id, "kind", sp.Kind, "staleness", sp.Staleness)
	}
	sort.Slice(out.ExtinctSpecies, func(i, j int) bool { return out.ExtinctSpecies[i] < out.ExtinctSpecies[j] })

	out.Species = l.activeLocked()
	l.speciesHistory = append(l.speciesHistory, out)
	l.generation = generation
	return copyGeneration(out), pruned, nil
}

func (l *Ledger) prune() []int64 {
	if l.cfg.MaxStagnation <= 0 {
		return nil
	}
	best := map[string]model.SpeciesSnapshot{}
	for _, sp := range l.active {
		cur, ok := best[sp.Kind]
		if !ok || sp.BestFitness > cur.BestFitness || (sp.BestFitness == cur.BestFitness && sp.ID < cur.ID) {
			best[sp.Kind] = sp
		}
	}
	var pruned []int64
	for id, sp := range l.active {
		if sp.Staleness > l.cfg.MaxStagnation && best[sp.Kind].ID != id {
			pruned = append(pruned, id)
		}
	}
	sort.Slice(pruned, func(i, j int) bool { return pruned[i] < pruned[j] })
	return pruned
}

func (l *Ledger) activeLocked() []model.SpeciesSnapshot {
	out := make([]model.SpeciesSnapshot, 0, len(l.active))
	for _, sp := range l.active {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshots returns the active species ordered by id.
func (l *Ledger) Snapshots() []model.SpeciesSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeLocked()
}

// Archived returns extinct and pruned species ordered by id.
func (l *Ledger) Archived() []model.SpeciesSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.SpeciesSnapshot, 0, len(l.archived))
	for _, sp := range l.archived {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParentSpecies returns the species a species was founded from. Archived
// species still answer.
func (l *Ledger) ParentSpecies(id int64) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.parents[id]
	return p, ok
}

func (l *Ledger) SpeciesHistory() []model.SpeciesGeneration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.SpeciesGeneration, 0, len(l.speciesHistory))
	for _, g := range l.speciesHistory {
		out = append(out, copyGeneration(g))
	}
	return out
}

func copyGeneration(g model.SpeciesGeneration) model.SpeciesGeneration {
	g.Species = append([]model.SpeciesSnapshot(nil), g.Species...)
	g.NewSpecies = append([]int64(nil), g.NewSpecies...)
	g.ExtinctSpecies = append([]int64(nil), g.ExtinctSpecies...)
	return g
}

// RecordFitness appends one generation of statistics.
func (l *Ledger) RecordFitness(stats model.GenerationStats) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fitness = append(l.fitness, stats)
	if stats.Generation > l.generation {
		l.generation = stats.Generation
	}
}

func (l *Ledger) FitnessHistory() []model.GenerationStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.GenerationStats(nil), l.fitness...)
}
