package evo

import (
	"fmt"

	"heredity/internal/config"
	"heredity/internal/diploid"
	"heredity/internal/genotype"
	"heredity/internal/ledger"
	"heredity/internal/nn"
	"heredity/internal/reproduction"
	"heredity/internal/speciation"
)

// Config is the engine's view of a run configuration with every section
// already turned into the component configs it feeds.
type Config struct {
	PopulationSize    int
	EliteCount        int
	SurvivalThreshold float64
	HybridAttemptRate float64
	Workers           int
	Seed              int64

	Schema *diploid.Schema
	// PreferenceTolerance above zero gives seeded organisms a mate
	// preference centred on their own phenotype.
	PreferenceTolerance float64

	Inputs  int
	Outputs int
	Minimal genotype.MinimalOptions

	Speciation   speciation.Config
	Reproduction reproduction.Config
	Ledger       ledger.Config

	Selector      Selector
	Postprocessor FitnessPostprocessor
}

// FromConfig validates cfg and derives the engine configuration.
func FromConfig(cfg config.Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	specs := make([]diploid.TraitSpec, 0, len(cfg.Traits.Names))
	for _, name := range cfg.Traits.Names {
		specs = append(specs, diploid.TraitSpec{Name: name})
	}
	schema, err := diploid.NewSchema(specs...)
	if err != nil {
		return Config{}, fmt.Errorf("trait schema: %w", err)
	}

	var selector Selector = TruncationSelector{}
	if cfg.Population.Selection == "tournament" {
		selector = TournamentSelector{}
	}
	post, ok := postprocessorByName(cfg.Population.Postprocessor)
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown postprocessor %q", config.ErrInvalidConfig, cfg.Population.Postprocessor)
	}

	for _, name := range []string{cfg.Neural.OutputActivation, cfg.Neural.HiddenActivation} {
		if name == "" {
			continue
		}
		if _, err := nn.GetActivation(name); err != nil {
			return Config{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
	}

	basis := reproduction.BasisTrait
	if cfg.Reproduction.Basis == string(reproduction.BasisNeural) {
		basis = reproduction.BasisNeural
	}

	n := cfg.Neural
	return Config{
		PopulationSize:      cfg.Population.Size,
		EliteCount:          cfg.Population.EliteCount,
		SurvivalThreshold:   cfg.Population.SurvivalThreshold,
		HybridAttemptRate:   cfg.Population.HybridAttemptRate,
		Workers:             cfg.Population.Workers,
		Seed:                cfg.Population.Seed,
		Schema:              schema,
		PreferenceTolerance: cfg.Traits.PreferenceTolerance,
		Inputs:              n.Inputs,
		Outputs:             n.Outputs,
		Minimal: genotype.MinimalOptions{
			Activation:  n.OutputActivation,
			WeightRange: n.WeightRange,
			Recurrent:   n.Recurrent,
		},
		Speciation: speciation.Config{
			TraitThreshold:  cfg.Speciation.TraitThreshold,
			NeuralThreshold: cfg.Speciation.NeuralThreshold,
			Coefficients: genotype.Coefficients{
				Excess:               cfg.Compatibility.Excess,
				Disjoint:             cfg.Compatibility.Disjoint,
				Weight:               cfg.Compatibility.Weight,
				SmallGenomeThreshold: cfg.Compatibility.SmallGenomeThreshold,
			},
			ExtinctAfter:     cfg.Speciation.ExtinctAfter,
			MaxStagnation:    cfg.Speciation.MaxStagnation,
			ProtectedSpecies: cfg.Speciation.ProtectedSpecies,
		},
		Reproduction: reproduction.Config{
			Basis:                basis,
			ParentChildRate:      cfg.Reproduction.ParentChildRate,
			SiblingRate:          cfg.Reproduction.SiblingRate,
			VigorMultiplier:      cfg.Hybrid.VigorMultiplier,
			DepressionMultiplier: cfg.Hybrid.DepressionMultiplier,
			TraitMutation: diploid.MutationParams{
				Rate:           cfg.Traits.MutationRate,
				Sigma:          cfg.Traits.MutationSigma,
				DominanceScale: cfg.Traits.DominanceScale,
				DominanceSigma: cfg.Traits.DominanceSigma,
			},
			NeuralMutation: genotype.MutationConfig{
				Weights: genotype.PerturbPolicy{
					Perturb: n.WeightPerturbRate,
					Replace: n.WeightReplaceRate,
					Sigma:   n.WeightSigma,
					Range:   n.WeightRange,
					Limit:   n.WeightLimit,
				},
				Biases: genotype.PerturbPolicy{
					Perturb: n.BiasPerturbRate,
					Replace: n.BiasReplaceRate,
					Sigma:   n.BiasSigma,
					Range:   n.WeightRange,
					Limit:   n.WeightLimit,
				},
				AddNodeRate:      n.AddNodeRate,
				AddConnRate:      n.AddConnectionRate,
				EnableRate:       n.EnableRate,
				HiddenActivation: n.HiddenActivation,
			},
			Workers: cfg.Population.Workers,
		},
		Ledger:        ledger.Config{MaxStagnation: cfg.Speciation.MaxStagnation},
		Selector:      selector,
		Postprocessor: post,
	}, nil
}
