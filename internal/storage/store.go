package storage

import (
	"context"

	"heredity/internal/model"
)

// Store persists organisms and the per-run records produced by the ledger.
// Getters report a missing record with ok=false rather than an error.
type Store interface {
	Init(ctx context.Context) error
	SaveOrganism(ctx context.Context, runID string, organism model.OrganismRecord) error
	GetOrganism(ctx context.Context, runID string, id int64) (model.OrganismRecord, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
	SaveSpeciesHistory(ctx context.Context, runID string, history []model.SpeciesGeneration) error
	GetSpeciesHistory(ctx context.Context, runID string) ([]model.SpeciesGeneration, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []model.GenerationStats) error
	GetFitnessHistory(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
	SaveRegistryState(ctx context.Context, runID string, state model.RegistryState) error
	GetRegistryState(ctx context.Context, runID string) (model.RegistryState, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
