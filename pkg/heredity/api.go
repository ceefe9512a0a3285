package heredity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"heredity/internal/config"
	"heredity/internal/diploid"
	"heredity/internal/evo"
	"heredity/internal/genotype"
	"heredity/internal/ledger"
	"heredity/internal/model"
	"heredity/internal/nn"
	"heredity/internal/reproduction"
	"heredity/internal/scape"
	"heredity/internal/storage"
)

const (
	defaultDBPath = "heredity.db"
	// createdLayout keeps a fixed width so run timestamps sort as strings.
	createdLayout = "2006-01-02T15:04:05.000000000Z"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrOrganismNotFound = errors.New("organism not found")
	ErrRunSelector      = errors.New("use either run id or latest")
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger
}

// RunRequest describes one evolution run. Config is read from ConfigPath
// when set, otherwise the defaults are used; the remaining non-zero fields
// override it.
type RunRequest struct {
	ConfigPath  string
	Scape       string
	Population  int
	Generations int
	Seed        int64
	Workers     int
}

type RunSummary struct {
	RunID         string
	Scape         string
	BestOrganism  int64
	BestFitness   float64
	History       []model.GenerationStats
	TraitSpecies  int
	NeuralSpecies int
}

type RunsRequest struct {
	Limit int
}

type LineageRequest struct {
	RunID  string
	Latest bool
	Limit  int
	// OrganismID narrows the result to one organism and its ancestors up
	// to Depth generations back.
	OrganismID int64
	Depth      int
}

type SpeciesRequest struct {
	RunID  string
	Latest bool
	// Generation selects one generation; a negative value selects the last.
	Generation int
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type OrganismRequest struct {
	RunID  string
	Latest bool
	ID     int64
}

// OrganismView is a stored organism with its expressed phenotype and brain
// shape.
type OrganismView struct {
	Record      model.OrganismRecord
	Phenotype   diploid.Phenotype
	HiddenNodes int
	Connections int
	Fingerprint string
	// DecodeError is set when the brain cannot be decoded.
	DecodeError string
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Run seeds a population, evolves it and persists the final population,
// lineage, species and fitness history and registry counters under a new
// run id.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := config.Default()
	if req.ConfigPath != "" {
		loaded, err := config.Load(req.ConfigPath)
		if err != nil {
			return RunSummary{}, err
		}
		cfg = loaded
	}
	if req.Population > 0 {
		cfg.Population.Size = req.Population
	}
	if req.Generations > 0 {
		cfg.Population.Generations = req.Generations
	}
	if req.Seed != 0 {
		cfg.Population.Seed = req.Seed
	}
	if req.Workers > 0 {
		cfg.Population.Workers = req.Workers
	}
	if req.Scape == "" {
		req.Scape = "composite"
	}

	ecfg, err := evo.FromConfig(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	sc, err := scape.New(req.Scape, cfg.Traits.Names)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.store.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	logger := c.logger.With("run", runID)
	engine, err := evo.New(ecfg, evo.WithLogger(logger))
	if err != nil {
		return RunSummary{}, err
	}
	pop, err := engine.Seed(cfg.Population.Size)
	if err != nil {
		return RunSummary{}, err
	}
	started := time.Now().UTC()
	result, err := engine.Run(ctx, pop, sc, cfg.Population.Generations)
	if err != nil {
		return RunSummary{}, err
	}

	if err := c.persist(ctx, runID, engine, result); err != nil {
		return RunSummary{}, err
	}
	ids := make([]int64, 0, len(result.Population))
	for _, s := range result.Population {
		ids = append(ids, s.Organism.ID)
	}
	if err := c.store.SaveRun(ctx, model.RunRecord{
		ID:           runID,
		CreatedAtUTC: started.Format(createdLayout),
		Scape:        sc.Name(),
		Seed:         cfg.Population.Seed,
		Population:   cfg.Population.Size,
		Generation:   engine.Generation(),
		OrganismIDs:  ids,
		BestFitness:  result.Best.Fitness,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	summary := RunSummary{
		RunID:        runID,
		Scape:        sc.Name(),
		BestOrganism: result.Best.Organism.ID,
		BestFitness:  result.Best.Fitness,
		History:      result.History,
	}
	for _, sp := range engine.Ledger().Snapshots() {
		switch sp.Kind {
		case model.SpeciesKindTrait:
			summary.TraitSpecies++
		case model.SpeciesKindNeural:
			summary.NeuralSpecies++
		}
	}
	logger.Info("run complete", "generations", engine.Generation(), "best_fitness", summary.BestFitness, "best_organism", summary.BestOrganism)
	return summary, nil
}

func (c *Client) persist(ctx context.Context, runID string, engine *evo.Engine, result evo.RunResult) error {
	for _, s := range result.Population {
		if err := c.store.SaveOrganism(ctx, runID, s.Organism.ToRecord()); err != nil {
			return fmt.Errorf("save organism %d: %w", s.Organism.ID, err)
		}
	}
	l := engine.Ledger()
	if err := c.store.SaveLineage(ctx, runID, l.LineageRecords()); err != nil {
		return fmt.Errorf("save lineage: %w", err)
	}
	if err := c.store.SaveSpeciesHistory(ctx, runID, l.SpeciesHistory()); err != nil {
		return fmt.Errorf("save species history: %w", err)
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, l.FitnessHistory()); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := c.store.SaveRegistryState(ctx, runID, engine.Registry().State()); err != nil {
		return fmt.Errorf("save registry state: %w", err)
	}
	return nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]model.LineageRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	records, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lineage for %s", ErrRunNotFound, runID)
	}

	if req.OrganismID != 0 {
		records, err = ancestry(records, req.OrganismID, req.Depth)
		if err != nil {
			return nil, err
		}
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	return records, nil
}

// ancestry returns the organism's record followed by its ancestors, nearest
// first.
func ancestry(records []model.LineageRecord, id int64, depth int) ([]model.LineageRecord, error) {
	if depth <= 0 {
		depth = 1
	}
	l := ledger.New(ledger.Config{})
	for _, rec := range records {
		if err := l.RecordBirth(rec); err != nil {
			return nil, err
		}
	}
	self, ok := l.Lineage(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrganismNotFound, id)
	}
	out := []model.LineageRecord{self}
	for _, ancestor := range l.Ancestors(id, depth) {
		if rec, ok := l.Lineage(ancestor); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) Species(ctx context.Context, req SpeciesRequest) (model.SpeciesGeneration, error) {
	runID, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return model.SpeciesGeneration{}, err
	}
	history, ok, err := c.store.GetSpeciesHistory(ctx, runID)
	if err != nil {
		return model.SpeciesGeneration{}, err
	}
	if !ok || len(history) == 0 {
		return model.SpeciesGeneration{}, fmt.Errorf("%w: species history for %s", ErrRunNotFound, runID)
	}
	if req.Generation < 0 {
		return history[len(history)-1], nil
	}
	for _, g := range history {
		if g.Generation == req.Generation {
			return g, nil
		}
	}
	return model.SpeciesGeneration{}, fmt.Errorf("generation %d not recorded for run %s", req.Generation, runID)
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]model.GenerationStats, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fitness history for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

// Organism loads a stored organism and expresses it.
func (c *Client) Organism(ctx context.Context, req OrganismRequest) (OrganismView, error) {
	runID, err := c.resolveRun(ctx, req.RunID, req.Latest)
	if err != nil {
		return OrganismView{}, err
	}
	rec, ok, err := c.store.GetOrganism(ctx, runID, req.ID)
	if err != nil {
		return OrganismView{}, err
	}
	if !ok {
		return OrganismView{}, fmt.Errorf("%w: %d in run %s", ErrOrganismNotFound, req.ID, runID)
	}

	specs := make([]diploid.TraitSpec, 0, len(rec.Traits.Traits))
	for _, t := range rec.Traits.Traits {
		specs = append(specs, diploid.TraitSpec{Name: t.Name, Min: t.Min, Max: t.Max})
	}
	schema, err := diploid.NewSchema(specs...)
	if err != nil {
		return OrganismView{}, fmt.Errorf("organism %d: %w", req.ID, err)
	}
	o, err := reproduction.FromRecord(rec, schema)
	if err != nil {
		return OrganismView{}, fmt.Errorf("organism %d: %w", req.ID, err)
	}

	view := OrganismView{
		Record:      rec,
		Phenotype:   o.Traits.Express(),
		HiddenNodes: o.Brain.HiddenCount(),
		Connections: o.Brain.EnabledCount(),
		Fingerprint: genotype.ComputeSignature(o.Brain).Fingerprint,
	}
	if _, err := nn.Decode(o.Brain); err != nil {
		view.DecodeError = err.Error()
	}
	return view, nil
}

func (c *Client) resolveRun(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", ErrRunSelector
	}
	if err := c.store.Init(ctx); err != nil {
		return "", err
	}
	if latest {
		runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", fmt.Errorf("%w: no runs available", ErrRunNotFound)
		}
		return runs[0].ID, nil
	}
	if runID == "" {
		return "", errors.New("run id or latest is required")
	}
	if _, ok, err := c.store.GetRun(ctx, runID); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return runID, nil
}
