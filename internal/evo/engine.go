package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/innovation"
	"heredity/internal/ledger"
	"heredity/internal/model"
	"heredity/internal/nn"
	"heredity/internal/reproduction"
	"heredity/internal/scape"
	"heredity/internal/speciation"
)

var (
	ErrEmptyPopulation = errors.New("population is empty")
	ErrNotSeeded       = errors.New("engine has not been seeded")
	ErrAlreadySeeded   = errors.New("engine is already seeded")
)

// matePreferenceAttempts bounds how often a partner is redrawn to satisfy
// the chooser's mate preference before the last draw is accepted.
const matePreferenceAttempts = 5

// Scored is one organism with its evaluated fitness.
type Scored struct {
	Organism reproduction.Organism
	Fitness  float64
	Trace    scape.Trace
}

type RunResult struct {
	// Population is the final evaluated population, best first.
	Population []Scored
	Best       Scored
	History    []model.GenerationStats
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine drives generations. It owns the innovation registry, the
// speciation service, the reproduction coordinator and the ledger; a step
// works on copies of the first three and swaps them in only when every
// offspring has been produced.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	rng    *rand.Rand

	registry    *innovation.Registry
	species     *speciation.Service
	coordinator *reproduction.Coordinator
	ledger      *ledger.Ledger

	nextID     int64
	generation int
	seeded     bool
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("trait schema is required")
	}
	if cfg.Inputs < 1 || cfg.Outputs < 1 {
		return nil, fmt.Errorf("%w: inputs=%d outputs=%d", genotype.ErrInvalidShape, cfg.Inputs, cfg.Outputs)
	}
	if cfg.Selector == nil {
		cfg.Selector = TruncationSelector{}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SurvivalThreshold <= 0 || cfg.SurvivalThreshold > 1 {
		cfg.SurvivalThreshold = 1
	}
	if cfg.Reproduction.Basis == "" {
		cfg.Reproduction.Basis = reproduction.BasisTrait
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = innovation.NewRegistry(int64(cfg.Inputs + cfg.Outputs))
	e.species = speciation.NewService(cfg.Speciation)
	e.coordinator = reproduction.NewCoordinator(cfg.Reproduction, e.species, e.registry, reproduction.WithLogger(e.logger))
	e.ledger = ledger.New(cfg.Ledger, ledger.WithLogger(e.logger))
	return e, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *Engine) Registry() *innovation.Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry
}

func (e *Engine) Species() *speciation.Service {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.species
}

// Coordinator answers compatibility questions against the committed
// species table.
func (e *Engine) Coordinator() *reproduction.Coordinator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinator
}

// Seed creates n organisms with random trait genomes and minimal brains,
// speciates them and records them as generation zero.
func (e *Engine) Seed(n int) ([]reproduction.Organism, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seeded {
		return nil, ErrAlreadySeeded
	}
	if n < 1 {
		return nil, ErrEmptyPopulation
	}

	pop := make([]reproduction.Organism, 0, n)
	for i := 0; i < n; i++ {
		traits := diploid.Random(e.rng, e.cfg.Schema)
		if e.cfg.PreferenceTolerance > 0 {
			traits = traits.WithPreference(diploid.MatePreference{
				Targets:   traits.Express(),
				Tolerance: e.cfg.PreferenceTolerance,
			})
		}
		brain, err := genotype.NewMinimal(e.rng, e.registry, e.cfg.Inputs, e.cfg.Outputs, e.cfg.Minimal)
		if err != nil {
			return nil, fmt.Errorf("seed brain: %w", err)
		}
		e.nextID++
		pop = append(pop, reproduction.Organism{
			ID:              e.nextID,
			Traits:          traits,
			Brain:           brain,
			FitnessCapacity: 1,
			Operations:      []string{"seed"},
		})
	}

	pop, err := speciate(e.species, 0, pop, nil)
	if err != nil {
		return nil, err
	}
	births := make([]model.LineageRecord, 0, len(pop))
	for _, o := range pop {
		births = append(births, lineageRecord(o, 0))
	}
	if _, _, err := e.ledger.RecordGeneration(0, allSnapshots(e.species), births); err != nil {
		return nil, err
	}
	e.registry.ResetGeneration()
	e.seeded = true
	e.observeSpecies()

	e.logger.Info("population seeded", "organisms", n, "trait_species", len(liveSpecies(e.species, speciation.KindTrait)),
		"neural_species", len(liveSpecies(e.species, speciation.KindNeural)))
	return pop, nil
}

// Evaluate decodes and scores every organism on a bounded worker pool. An
// organism whose brain cannot be decoded because of a cycle scores zero and
// is logged; any other failure aborts the evaluation.
func (e *Engine) Evaluate(ctx context.Context, pop []reproduction.Organism, sc scape.Scape) ([]Scored, error) {
	if len(pop) == 0 {
		return nil, ErrEmptyPopulation
	}
	out := make([]Scored, len(pop))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range pop {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := pop[i]
			net, err := nn.Decode(o.Brain)
			if err != nil {
				if errors.Is(err, nn.ErrDecodeCycleDetected) {
					e.logger.Warn("brain decode failed, fitness forced to zero", "organism", o.ID, "error", err)
					decodePenaltiesTotal.Inc()
					out[i] = Scored{Organism: o, Trace: scape.Trace{"penalty": "decode_cycle"}}
					return nil
				}
				return fmt.Errorf("decode organism %d: %w", o.ID, err)
			}
			subject := scape.Subject{ID: o.ID, Network: net}
			if o.Traits != nil {
				subject.Phenotype = o.Traits.Express()
			}
			fitness, trace, err := sc.Evaluate(gctx, subject)
			if err != nil {
				return fmt.Errorf("evaluate organism %d on %s: %w", o.ID, sc.Name(), err)
			}
			out[i] = Scored{Organism: o, Fitness: float64(fitness), Trace: trace}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Step produces the next generation from an evaluated population.
// Hybrid capacity is folded into fitness, fitness is shared within species,
// offspring quotas are allocated, elites are carried over and the rest of
// each quota is bred from truncated survivors. The new population is then
// speciated and committed to the ledger. On error nothing is committed.
func (e *Engine) Step(ctx context.Context, scored []Scored) ([]reproduction.Organism, model.GenerationStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if !e.seeded {
		return nil, model.GenerationStats{}, ErrNotSeeded
	}
	if err := ctx.Err(); err != nil {
		return nil, model.GenerationStats{}, err
	}
	if len(scored) == 0 {
		return nil, model.GenerationStats{}, ErrEmptyPopulation
	}
	gen := e.generation + 1
	basis := e.cfg.Reproduction.Basis
	kind := speciation.KindTrait
	if basis == reproduction.BasisNeural {
		kind = speciation.KindNeural
	}

	adjusted := e.postprocess(scored)
	raw := make(map[int64]float64, len(adjusted))
	for _, s := range adjusted {
		raw[s.Organism.ID] = s.Fitness
	}

	svc := e.species.Clone()
	reg, err := innovation.Restore(e.registry.State())
	if err != nil {
		return nil, model.GenerationStats{}, err
	}
	coord := reproduction.NewCoordinator(e.cfg.Reproduction, svc, reg, reproduction.WithLogger(e.logger))
	coord.SetSalt(uint64(gen))
	rng := rand.New(rand.NewSource(stepSeed(e.cfg.Seed, gen)))

	svc.AdjustFitness(speciation.KindTrait, raw)
	svc.AdjustFitness(speciation.KindNeural, raw)
	total := e.cfg.PopulationSize
	if total <= 0 {
		total = len(scored)
	}
	quotas := svc.AllocateOffspring(kind, total)

	bySpecies := make(map[int64][]Scored)
	for _, s := range adjusted {
		// crossover takes disjoint and excess genes from the fitter brain
		s.Organism.Brain.Fitness = s.Fitness
		sid := s.Organism.SpeciesID(basis)
		bySpecies[sid] = append(bySpecies[sid], s)
	}
	speciesIDs := make([]int64, 0, len(bySpecies))
	for sid, members := range bySpecies {
		rankScored(members)
		speciesIDs = append(speciesIDs, sid)
	}
	sort.Slice(speciesIDs, func(i, j int) bool { return speciesIDs[i] < speciesIDs[j] })

	var (
		next         []reproduction.Organism
		jobs         []reproduction.Job
		incompatible int
		nextID       = e.nextID
	)
	for _, q := range quotas {
		members := bySpecies[q.SpeciesID]
		if len(members) == 0 {
			continue
		}
		elites := max(0, min(e.cfg.EliteCount, q.Count, len(members)))
		for i := 0; i < elites; i++ {
			next = append(next, members[i].Organism)
		}
		pool := survivorCount(len(members), e.cfg.SurvivalThreshold)
		for k := elites; k < q.Count; k++ {
			a, err := e.cfg.Selector.PickParent(rng, members, pool)
			if err != nil {
				return nil, model.GenerationStats{}, fmt.Errorf("species %d: %w", q.SpeciesID, err)
			}
			b, refused, err := e.pickPartner(rng, coord, a, q.SpeciesID, bySpecies, speciesIDs)
			if err != nil {
				return nil, model.GenerationStats{}, fmt.Errorf("species %d: %w", q.SpeciesID, err)
			}
			if refused {
				incompatible++
			}
			nextID++
			jobs = append(jobs, reproduction.Job{A: a.Organism, B: b.Organism, ChildID: nextID, Seed: rng.Int63()})
		}
	}

	results, err := coord.ReproduceBatch(ctx, jobs)
	if err != nil {
		return nil, model.GenerationStats{}, err
	}
	parentOf := make(map[int64]reproduction.Organism, len(results))
	children := make([]reproduction.Organism, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, model.GenerationStats{}, fmt.Errorf("offspring %d: %w", jobs[i].ChildID, r.Err)
		}
		parentOf[r.Child.ID] = jobs[i].A
		children = append(children, *r.Child)
	}
	next = append(next, children...)
	if len(next) == 0 {
		return nil, model.GenerationStats{}, ErrEmptyPopulation
	}

	next, err = speciate(svc, gen, next, parentOf)
	if err != nil {
		return nil, model.GenerationStats{}, err
	}

	stats := summarize(e.generation, adjusted)
	stats.Offspring = len(children)
	stats.IncompatiblePairs = incompatible
	skipped := 0
	for _, c := range children {
		if c.Hybrid != reproduction.HybridNone {
			stats.HybridOffspring++
		}
		for _, op := range c.Operations {
			if strings.HasPrefix(op, "skip(") {
				skipped++
			}
		}
	}

	// commit
	births := make([]model.LineageRecord, 0, len(children))
	for _, c := range next {
		if _, born := parentOf[c.ID]; born {
			births = append(births, lineageRecord(c, gen))
		}
	}
	_, pruned, err := e.ledger.RecordGeneration(gen, allSnapshots(svc), births)
	if err != nil {
		return nil, model.GenerationStats{}, err
	}
	svc.Retire(pruned)
	e.updateLedger(adjusted)
	alive := make(map[int64]bool, len(next))
	for _, o := range next {
		alive[o.ID] = true
	}
	for _, s := range scored {
		if alive[s.Organism.ID] {
			continue
		}
		if err := e.ledger.Retire(s.Organism.ID, gen); err != nil {
			e.logger.Debug("retire skipped", "organism", s.Organism.ID, "error", err)
		}
	}
	e.ledger.RecordFitness(stats)
	reg.ResetGeneration()

	e.species = svc
	e.registry = reg
	e.coordinator = coord
	e.nextID = nextID
	e.generation = gen

	generationsTotal.Inc()
	for _, c := range children {
		effect := string(c.Hybrid)
		if effect == "" {
			effect = "none"
		}
		offspringTotal.WithLabelValues(effect).Inc()
	}
	incompatiblePairsTotal.Add(float64(incompatible))
	skippedMutationsTotal.Add(float64(skipped))
	bestFitnessGauge.Set(stats.BestFitness)
	e.observeSpecies()
	stepDuration.Observe(time.Since(start).Seconds())

	e.logger.Info("generation committed",
		"generation", gen,
		"best", stats.BestFitness,
		"mean", stats.MeanFitness,
		"trait_species", stats.TraitSpeciesCount,
		"neural_species", stats.NeuralSpeciesCount,
		"offspring", stats.Offspring,
		"hybrids", stats.HybridOffspring,
		"incompatible", stats.IncompatiblePairs,
		"pruned", len(pruned),
	)
	return next, stats, nil
}

// Run evolves pop for the given number of generations and evaluates the
// final population.
func (e *Engine) Run(ctx context.Context, pop []reproduction.Organism, sc scape.Scape, generations int) (RunResult, error) {
	history := make([]model.GenerationStats, 0, generations)
	for g := 0; g < generations; g++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		scored, err := e.Evaluate(ctx, pop, sc)
		if err != nil {
			return RunResult{}, err
		}
		next, stats, err := e.Step(ctx, scored)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", e.Generation()+1, err)
		}
		history = append(history, stats)
		pop = next
	}

	final, err := e.Evaluate(ctx, pop, sc)
	if err != nil {
		return RunResult{}, err
	}
	final = e.postprocess(final)
	rankScored(final)
	e.updateLedger(final)
	bestFitnessGauge.Set(final[0].Fitness)
	return RunResult{Population: final, Best: final[0], History: history}, nil
}

// pickPartner chooses b for a. With HybridAttemptRate the partner is drawn
// from another species; when that pair cannot mate, a same-species partner
// is used instead and refused is reported.
func (e *Engine) pickPartner(rng *rand.Rand, coord *reproduction.Coordinator, a Scored, own int64, bySpecies map[int64][]Scored, speciesIDs []int64) (Scored, bool, error) {
	refused := false
	if e.cfg.HybridAttemptRate > 0 && len(speciesIDs) > 1 && rng.Float64() < e.cfg.HybridAttemptRate {
		i := rng.Intn(len(speciesIDs))
		if speciesIDs[i] == own {
			i = (i + 1) % len(speciesIDs)
		}
		candidates := bySpecies[speciesIDs[i]]
		b, err := e.cfg.Selector.PickParent(rng, candidates, survivorCount(len(candidates), e.cfg.SurvivalThreshold))
		if err != nil {
			return Scored{}, false, err
		}
		if coord.CanMate(a.Organism, b.Organism) {
			return b, false, nil
		}
		refused = true
	}

	members := bySpecies[own]
	pool := survivorCount(len(members), e.cfg.SurvivalThreshold)
	var preference diploid.MatePreference
	if a.Organism.Traits != nil {
		preference = a.Organism.Traits.Preference()
	}
	var b Scored
	for attempt := 0; attempt < matePreferenceAttempts; attempt++ {
		var err error
		b, err = e.cfg.Selector.PickParent(rng, members, pool)
		if err != nil {
			return Scored{}, false, err
		}
		if pool > 1 && b.Organism.ID == a.Organism.ID {
			continue
		}
		if b.Organism.Traits == nil || preference.Accepts(b.Organism.Traits.Express()) {
			break
		}
	}
	if pool > 1 && b.Organism.ID == a.Organism.ID {
		for _, m := range members[:pool] {
			if m.Organism.ID != a.Organism.ID {
				b = m
				break
			}
		}
	}
	return b, refused, nil
}

func (e *Engine) postprocess(scored []Scored) []Scored {
	return e.cfg.Postprocessor.Process(CapacityPostprocessor{}.Process(scored))
}

func (e *Engine) updateLedger(scored []Scored) {
	for _, s := range scored {
		o := s.Organism
		err := e.ledger.UpdateOrganism(o.ID, o.SpeciesID(reproduction.BasisTrait), o.SpeciesID(reproduction.BasisNeural), s.Fitness)
		if err != nil {
			e.logger.Debug("ledger update skipped", "organism", o.ID, "error", err)
		}
	}
}

func (e *Engine) observeSpecies() {
	speciesGauge.WithLabelValues(string(speciation.KindTrait)).Set(float64(len(liveSpecies(e.species, speciation.KindTrait))))
	speciesGauge.WithLabelValues(string(speciation.KindNeural)).Set(float64(len(liveSpecies(e.species, speciation.KindNeural))))
}

// speciate assigns trait and neural species to every organism. A child that
// founds a species records its first parent's species as the parent
// species; everyone else records their own.
func speciate(svc *speciation.Service, generation int, pop []reproduction.Organism, parentOf map[int64]reproduction.Organism) ([]reproduction.Organism, error) {
	traitMembers := make([]speciation.TraitMember, 0, len(pop))
	neuralMembers := make([]speciation.NeuralMember, 0, len(pop))
	for _, o := range pop {
		origin := o
		if p, ok := parentOf[o.ID]; ok {
			origin = p
		}
		traitMembers = append(traitMembers, speciation.TraitMember{
			ID:              o.ID,
			ParentSpeciesID: origin.SpeciesID(reproduction.BasisTrait),
			Genome:          o.Traits,
		})
		neuralMembers = append(neuralMembers, speciation.NeuralMember{
			ID:              o.ID,
			ParentSpeciesID: origin.SpeciesID(reproduction.BasisNeural),
			Genome:          o.Brain,
		})
	}
	traits, err := svc.SpeciateTraits(generation, traitMembers)
	if err != nil {
		return nil, fmt.Errorf("trait speciation: %w", err)
	}
	neural, err := svc.SpeciateNeural(generation, neuralMembers)
	if err != nil {
		return nil, fmt.Errorf("neural speciation: %w", err)
	}

	out := make([]reproduction.Organism, len(pop))
	for i, o := range pop {
		o.Traits = o.Traits.WithSpeciesID(traits.SpeciesOf[o.ID])
		o.Brain.SpeciesID = neural.SpeciesOf[o.ID]
		out[i] = o
	}
	return out, nil
}

func allSnapshots(svc *speciation.Service) []model.SpeciesSnapshot {
	return append(svc.Snapshots(speciation.KindTrait), svc.Snapshots(speciation.KindNeural)...)
}

func liveSpecies(svc *speciation.Service, kind speciation.Kind) []model.SpeciesSnapshot {
	var out []model.SpeciesSnapshot
	for _, sp := range svc.Snapshots(kind) {
		if !sp.Extinct && sp.MemberCount > 0 {
			out = append(out, sp)
		}
	}
	return out
}

func lineageRecord(o reproduction.Organism, generation int) model.LineageRecord {
	return model.LineageRecord{
		OrganismID:      o.ID,
		ParentIDs:       append([]int64(nil), o.Parents...),
		Generation:      generation,
		TraitSpeciesID:  o.SpeciesID(reproduction.BasisTrait),
		NeuralSpeciesID: o.SpeciesID(reproduction.BasisNeural),
		Operation:       strings.Join(o.Operations, ","),
		Hybrid:          string(o.Hybrid),
		Fingerprint:     genotype.ComputeSignature(o.Brain).Fingerprint,
	}
}

func summarize(generation int, scored []Scored) model.GenerationStats {
	stats := model.GenerationStats{
		Generation:  generation,
		BestFitness: math.Inf(-1),
		MinFitness:  math.Inf(1),
	}
	traitSpecies := map[int64]bool{}
	neuralSpecies := map[int64]bool{}
	hidden := 0
	for _, s := range scored {
		stats.BestFitness = math.Max(stats.BestFitness, s.Fitness)
		stats.MinFitness = math.Min(stats.MinFitness, s.Fitness)
		stats.MeanFitness += s.Fitness
		traitSpecies[s.Organism.SpeciesID(reproduction.BasisTrait)] = true
		neuralSpecies[s.Organism.SpeciesID(reproduction.BasisNeural)] = true
		h := s.Organism.Brain.HiddenCount()
		hidden += h
		stats.MaxHiddenNodes = max(stats.MaxHiddenNodes, h)
	}
	n := float64(len(scored))
	stats.MeanFitness /= n
	stats.MeanHiddenNodes = float64(hidden) / n
	stats.TraitSpeciesCount = len(traitSpecies)
	stats.NeuralSpeciesCount = len(neuralSpecies)
	return stats
}

// stepSeed derives the source for one generation so a retried step draws
// the same numbers.
func stepSeed(seed int64, generation int) int64 {
	x := uint64(seed) ^ (uint64(generation) * 0x9e3779b97f4a7c15)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return int64(x >> 1)
}
