package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full run configuration. Files only need to name the values
// they change; everything else keeps its default.
type Config struct {
	Population    PopulationConfig    `json:"population" yaml:"population"`
	Traits        TraitsConfig        `json:"traits" yaml:"traits"`
	Neural        NeuralConfig        `json:"neural" yaml:"neural"`
	Compatibility CompatibilityConfig `json:"compatibility" yaml:"compatibility"`
	Speciation    SpeciationConfig    `json:"speciation" yaml:"speciation"`
	Reproduction  ReproductionConfig  `json:"reproduction" yaml:"reproduction"`
	Hybrid        HybridConfig        `json:"hybrid" yaml:"hybrid"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
}

type PopulationConfig struct {
	Size        int   `json:"size" yaml:"size" ini:"size"`
	Generations int   `json:"generations" yaml:"generations" ini:"generations"`
	Seed        int64 `json:"seed" yaml:"seed" ini:"seed"`
	// EliteCount organisms per species survive unchanged into the next
	// generation.
	EliteCount        int     `json:"elite_count" yaml:"elite_count" ini:"elite_count"`
	SurvivalThreshold float64 `json:"survival_threshold" yaml:"survival_threshold" ini:"survival_threshold"`
	// HybridAttemptRate is the chance a pairing looks outside the species.
	HybridAttemptRate float64 `json:"hybrid_attempt_rate" yaml:"hybrid_attempt_rate" ini:"hybrid_attempt_rate"`
	Workers           int     `json:"workers" yaml:"workers" ini:"workers"`
	// Selection is "truncation" or "tournament".
	Selection string `json:"selection" yaml:"selection" ini:"selection"`
	// Postprocessor is "none" or "size_proportional".
	Postprocessor string `json:"postprocessor" yaml:"postprocessor" ini:"postprocessor"`
}

type TraitsConfig struct {
	Names               []string `json:"names" yaml:"names" ini:"names" delim:","`
	MutationRate        float64  `json:"mutation_rate" yaml:"mutation_rate" ini:"mutation_rate"`
	MutationSigma       float64  `json:"mutation_sigma" yaml:"mutation_sigma" ini:"mutation_sigma"`
	DominanceScale      float64  `json:"dominance_scale" yaml:"dominance_scale" ini:"dominance_scale"`
	DominanceSigma      float64  `json:"dominance_sigma" yaml:"dominance_sigma" ini:"dominance_sigma"`
	PreferenceTolerance float64  `json:"preference_tolerance" yaml:"preference_tolerance" ini:"preference_tolerance"`
}

type NeuralConfig struct {
	Inputs            int     `json:"inputs" yaml:"inputs" ini:"inputs"`
	Outputs           int     `json:"outputs" yaml:"outputs" ini:"outputs"`
	Recurrent         bool    `json:"recurrent" yaml:"recurrent" ini:"recurrent"`
	OutputActivation  string  `json:"output_activation" yaml:"output_activation" ini:"output_activation"`
	HiddenActivation  string  `json:"hidden_activation" yaml:"hidden_activation" ini:"hidden_activation"`
	WeightRange       float64 `json:"weight_range" yaml:"weight_range" ini:"weight_range"`
	WeightLimit       float64 `json:"weight_limit" yaml:"weight_limit" ini:"weight_limit"`
	WeightPerturbRate float64 `json:"weight_perturb_rate" yaml:"weight_perturb_rate" ini:"weight_perturb_rate"`
	WeightReplaceRate float64 `json:"weight_replace_rate" yaml:"weight_replace_rate" ini:"weight_replace_rate"`
	WeightSigma       float64 `json:"weight_sigma" yaml:"weight_sigma" ini:"weight_sigma"`
	BiasPerturbRate   float64 `json:"bias_perturb_rate" yaml:"bias_perturb_rate" ini:"bias_perturb_rate"`
	BiasReplaceRate   float64 `json:"bias_replace_rate" yaml:"bias_replace_rate" ini:"bias_replace_rate"`
	BiasSigma         float64 `json:"bias_sigma" yaml:"bias_sigma" ini:"bias_sigma"`
	AddNodeRate       float64 `json:"add_node_rate" yaml:"add_node_rate" ini:"add_node_rate"`
	AddConnectionRate float64 `json:"add_connection_rate" yaml:"add_connection_rate" ini:"add_connection_rate"`
	EnableRate        float64 `json:"enable_rate" yaml:"enable_rate" ini:"enable_rate"`
}

// CompatibilityConfig holds c1, c2 and c3 of the compatibility distance.
type CompatibilityConfig struct {
	Excess               float64 `json:"excess" yaml:"excess" ini:"excess"`
	Disjoint             float64 `json:"disjoint" yaml:"disjoint" ini:"disjoint"`
	Weight               float64 `json:"weight" yaml:"weight" ini:"weight"`
	SmallGenomeThreshold int     `json:"small_genome_threshold" yaml:"small_genome_threshold" ini:"small_genome_threshold"`
}

type SpeciationConfig struct {
	TraitThreshold   float64 `json:"trait_threshold" yaml:"trait_threshold" ini:"trait_threshold"`
	NeuralThreshold  float64 `json:"neural_threshold" yaml:"neural_threshold" ini:"neural_threshold"`
	ExtinctAfter     int     `json:"extinct_after" yaml:"extinct_after" ini:"extinct_after"`
	MaxStagnation    int     `json:"max_stagnation" yaml:"max_stagnation" ini:"max_stagnation"`
	ProtectedSpecies int     `json:"protected_species" yaml:"protected_species" ini:"protected_species"`
}

type ReproductionConfig struct {
	// Basis is "trait" or "neural": which species assignment gates mating.
	Basis           string  `json:"basis" yaml:"basis" ini:"basis"`
	ParentChildRate float64 `json:"parent_child_rate" yaml:"parent_child_rate" ini:"parent_child_rate"`
	SiblingRate     float64 `json:"sibling_rate" yaml:"sibling_rate" ini:"sibling_rate"`
}

type HybridConfig struct {
	VigorMultiplier      float64 `json:"vigor_multiplier" yaml:"vigor_multiplier" ini:"vigor_multiplier"`
	DepressionMultiplier float64 `json:"depression_multiplier" yaml:"depression_multiplier" ini:"depression_multiplier"`
}

type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend" ini:"backend"`
	Path    string `json:"path" yaml:"path" ini:"path"`
}

func Default() Config {
	return Config{
		Population: PopulationConfig{
			Size:              50,
			Generations:       20,
			Seed:              1,
			EliteCount:        1,
			SurvivalThreshold: 0.5,
			HybridAttemptRate: 0.1,
			Workers:           4,
			Selection:         "truncation",
			Postprocessor:     "none",
		},
		Traits: TraitsConfig{
			Names:               []string{"size", "speed", "hue"},
			MutationRate:        0.05,
			MutationSigma:       0.1,
			DominanceScale:      0.25,
			DominanceSigma:      0.05,
			PreferenceTolerance: 0,
		},
		Neural: NeuralConfig{
			Inputs:            2,
			Outputs:           1,
			OutputActivation:  "sigmoid",
			HiddenActivation:  "sigmoid",
			WeightRange:       1,
			WeightLimit:       8,
			WeightPerturbRate: 0.8,
			WeightReplaceRate: 0.1,
			WeightSigma:       0.5,
			BiasPerturbRate:   0.7,
			BiasReplaceRate:   0.1,
			BiasSigma:         0.5,
			AddNodeRate:       0.03,
			AddConnectionRate: 0.05,
			EnableRate:        0.01,
		},
		Compatibility: CompatibilityConfig{
			Excess:               1.0,
			Disjoint:             1.0,
			Weight:               0.4,
			SmallGenomeThreshold: 20,
		},
		Speciation: SpeciationConfig{
			TraitThreshold:   0.15,
			NeuralThreshold:  3.0,
			ExtinctAfter:     2,
			MaxStagnation:    15,
			ProtectedSpecies: 2,
		},
		Reproduction: ReproductionConfig{
			Basis:           "trait",
			ParentChildRate: 0.3,
			SiblingRate:     0.1,
		},
		Hybrid: HybridConfig{
			VigorMultiplier:      1.15,
			DepressionMultiplier: 0.8,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml/.yml, .json or .ini.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".ini":
		err = loadINI(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadINI maps one section per config block; section names match the yaml
// keys.
func loadINI(data []byte, cfg *Config) error {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, data)
	if err != nil {
		return err
	}
	sections := []struct {
		name   string
		target any
	}{
		{"population", &cfg.Population},
		{"traits", &cfg.Traits},
		{"neural", &cfg.Neural},
		{"compatibility", &cfg.Compatibility},
		{"speciation", &cfg.Speciation},
		{"reproduction", &cfg.Reproduction},
		{"hybrid", &cfg.Hybrid},
		{"storage", &cfg.Storage},
	}
	for _, s := range sections {
		if !file.HasSection(s.name) {
			continue
		}
		if err := file.Section(s.name).MapTo(s.target); err != nil {
			return fmt.Errorf("map [%s] section: %w", s.name, err)
		}
	}
	for i, name := range cfg.Traits.Names {
		cfg.Traits.Names[i] = strings.TrimSpace(name)
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Population.Size >= 2, "population.size must be at least 2, got %d", c.Population.Size)
	check(c.Population.Generations >= 0, "population.generations must not be negative")
	check(c.Population.EliteCount >= 0, "population.elite_count must not be negative")
	check(inUnit(c.Population.SurvivalThreshold) && c.Population.SurvivalThreshold > 0, "population.survival_threshold must be in (0,1]")
	check(inUnit(c.Population.HybridAttemptRate), "population.hybrid_attempt_rate must be in [0,1]")
	check(c.Population.Workers >= 1, "population.workers must be at least 1")
	check(c.Population.Selection == "truncation" || c.Population.Selection == "tournament",
		"population.selection must be truncation or tournament, got %q", c.Population.Selection)
	check(c.Population.Postprocessor == "none" || c.Population.Postprocessor == "size_proportional",
		"population.postprocessor must be none or size_proportional, got %q", c.Population.Postprocessor)

	check(len(c.Traits.Names) > 0, "traits.names must not be empty")
	check(inUnit(c.Traits.MutationRate), "traits.mutation_rate must be in [0,1]")
	check(c.Traits.MutationSigma >= 0, "traits.mutation_sigma must not be negative")
	check(inUnit(c.Traits.DominanceScale), "traits.dominance_scale must be in [0,1]")
	check(c.Traits.PreferenceTolerance >= 0, "traits.preference_tolerance must not be negative")

	check(c.Neural.Inputs >= 1, "neural.inputs must be at least 1")
	check(c.Neural.Outputs >= 1, "neural.outputs must be at least 1")
	check(c.Neural.WeightRange > 0, "neural.weight_range must be positive")
	check(c.Neural.WeightPerturbRate+c.Neural.WeightReplaceRate <= 1, "neural weight rates must sum to at most 1")
	check(c.Neural.BiasPerturbRate+c.Neural.BiasReplaceRate <= 1, "neural bias rates must sum to at most 1")
	check(inUnit(c.Neural.AddNodeRate), "neural.add_node_rate must be in [0,1]")
	check(inUnit(c.Neural.AddConnectionRate), "neural.add_connection_rate must be in [0,1]")
	check(inUnit(c.Neural.EnableRate), "neural.enable_rate must be in [0,1]")

	check(c.Compatibility.Excess >= 0 && c.Compatibility.Disjoint >= 0 && c.Compatibility.Weight >= 0,
		"compatibility coefficients must not be negative")
	check(c.Speciation.TraitThreshold > 0, "speciation.trait_threshold must be positive")
	check(c.Speciation.NeuralThreshold > 0, "speciation.neural_threshold must be positive")
	check(c.Speciation.ExtinctAfter >= 0, "speciation.extinct_after must not be negative")

	check(c.Reproduction.Basis == "trait" || c.Reproduction.Basis == "neural",
		"reproduction.basis must be trait or neural, got %q", c.Reproduction.Basis)
	check(inUnit(c.Reproduction.ParentChildRate), "reproduction.parent_child_rate must be in [0,1]")
	check(inUnit(c.Reproduction.SiblingRate), "reproduction.sibling_rate must be in [0,1]")

	check(c.Hybrid.VigorMultiplier >= 0 && c.Hybrid.DepressionMultiplier >= 0, "hybrid multipliers must not be negative")
	check(c.Storage.Backend == "memory" || c.Storage.Backend == "sqlite",
		"storage.backend must be memory or sqlite, got %q", c.Storage.Backend)
	check(c.Storage.Backend != "sqlite" || c.Storage.Path != "", "storage.path is required for sqlite")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
