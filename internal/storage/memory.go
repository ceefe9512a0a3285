package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"heredity/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type organismKey struct {
	runID string
	id    int64
}

// MemoryStore keeps records in maps. Saved and returned values are deep
// copies so callers never share slices with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	organisms   map[organismKey]model.OrganismRecord
	lineage     map[string][]model.LineageRecord
	speciesHist map[string][]model.SpeciesGeneration
	fitness     map[string][]model.GenerationStats
	registry    map[string]model.RegistryState
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.organisms = make(map[organismKey]model.OrganismRecord)
	s.lineage = make(map[string][]model.LineageRecord)
	s.speciesHist = make(map[string][]model.SpeciesGeneration)
	s.fitness = make(map[string][]model.GenerationStats)
	s.registry = make(map[string]model.RegistryState)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveOrganism(_ context.Context, runID string, organism model.OrganismRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	organism.VersionedRecord = currentVersion()
	s.organisms[organismKey{runID: runID, id: organism.ID}] = copyOrganism(organism)
	return nil
}

func (s *MemoryStore) GetOrganism(_ context.Context, runID string, id int64) (model.OrganismRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	organism, ok := s.organisms[organismKey{runID: runID, id: id}]
	if !ok {
		return model.OrganismRecord{}, false, nil
	}
	return copyOrganism(organism), true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.lineage[runID] = copyLineage(lineage)
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	return copyLineage(lineage), true, nil
}

func (s *MemoryStore) SaveSpeciesHistory(_ context.Context, runID string, history []model.SpeciesGeneration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.speciesHist[runID] = copySpeciesHistory(history)
	return nil
}

func (s *MemoryStore) GetSpeciesHistory(_ context.Context, runID string) ([]model.SpeciesGeneration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.speciesHist[runID]
	if !ok {
		return nil, false, nil
	}
	return copySpeciesHistory(history), true, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []model.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.fitness[runID] = append([]model.GenerationStats(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]model.GenerationStats, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.fitness[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationStats(nil), history...), true, nil
}

func (s *MemoryStore) SaveRegistryState(_ context.Context, runID string, state model.RegistryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	state.VersionedRecord = currentVersion()
	s.registry[runID] = state
	return nil
}

func (s *MemoryStore) GetRegistryState(_ context.Context, runID string) (model.RegistryState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.registry[runID]
	return state, ok, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.VersionedRecord = currentVersion()
	run.OrganismIDs = append([]int64(nil), run.OrganismIDs...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.OrganismIDs = append([]int64(nil), run.OrganismIDs...)
	return run, true, nil
}

// ListRuns returns every run ordered by id.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.OrganismIDs = append([]int64(nil), run.OrganismIDs...)
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyOrganism(o model.OrganismRecord) model.OrganismRecord {
	o.ParentIDs = append([]int64(nil), o.ParentIDs...)
	o.Traits.Traits = append([]model.TraitRecord(nil), o.Traits.Traits...)
	o.Traits.Maternal = append([]model.AlleleRecord(nil), o.Traits.Maternal...)
	o.Traits.Paternal = append([]model.AlleleRecord(nil), o.Traits.Paternal...)
	o.Traits.Marks = append([]model.EpigeneticMarkRecord(nil), o.Traits.Marks...)
	if o.Traits.Preference.Targets != nil {
		targets := make(map[string]float64, len(o.Traits.Preference.Targets))
		for k, v := range o.Traits.Preference.Targets {
			targets[k] = v
		}
		o.Traits.Preference.Targets = targets
	}
	o.Brain.Nodes = append([]model.NodeGeneRecord(nil), o.Brain.Nodes...)
	o.Brain.Connections = append([]model.ConnectionGeneRecord(nil), o.Brain.Connections...)
	return o
}

func copyLineage(lineage []model.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, len(lineage))
	for i, rec := range lineage {
		rec.ParentIDs = append([]int64(nil), rec.ParentIDs...)
		out[i] = rec
	}
	return out
}

func copySpeciesHistory(history []model.SpeciesGeneration) []model.SpeciesGeneration {
	out := make([]model.SpeciesGeneration, 0, len(history))
	for _, generation := range history {
		out = append(out, model.SpeciesGeneration{
			Generation:     generation.Generation,
			Species:        append([]model.SpeciesSnapshot(nil), generation.Species...),
			NewSpecies:     append([]int64(nil), generation.NewSpecies...),
			ExtinctSpecies: append([]int64(nil), generation.ExtinctSpecies...),
		})
	}
	return out
}
