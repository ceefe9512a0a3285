package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type TraitRecord struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

type AlleleRecord struct {
	Value     float64 `json:"value"`
	Dominance float64 `json:"dominance"`
	Mutated   bool    `json:"mutated"`
}

type EpigeneticMarkRecord struct {
	Trait                string  `json:"trait"`
	Multiplier           float64 `json:"multiplier"`
	RemainingGenerations int     `json:"remaining_generations"`
}

type MatePreferenceRecord struct {
	Targets   map[string]float64 `json:"targets,omitempty"`
	Tolerance float64            `json:"tolerance"`
}

type DiploidGenomeRecord struct {
	VersionedRecord
	Traits     []TraitRecord          `json:"traits"`
	Maternal   []AlleleRecord         `json:"maternal"`
	Paternal   []AlleleRecord         `json:"paternal"`
	Marks      []EpigeneticMarkRecord `json:"marks"`
	SpeciesID  int64                  `json:"species_id"`
	Preference MatePreferenceRecord   `json:"preference"`
}

type NodeGeneRecord struct {
	ID         int64   `json:"id"`
	Kind       string  `json:"kind"`
	Bias       float64 `json:"bias"`
	Activation string  `json:"activation"`
}

type ConnectionGeneRecord struct {
	Innovation int64   `json:"innovation"`
	Source     int64   `json:"source"`
	Target     int64   `json:"target"`
	Weight     float64 `json:"weight"`
	Enabled    bool    `json:"enabled"`
}

type NeuralGenomeRecord struct {
	VersionedRecord
	Nodes       []NodeGeneRecord       `json:"nodes"`
	Connections []ConnectionGeneRecord `json:"connections"`
	Fitness     float64                `json:"fitness"`
	SpeciesID   int64                  `json:"species_id"`
	Recurrent   bool                   `json:"recurrent"`
}

// OrganismRecord is the persisted unit: one heritable trait genome and one
// decision-network genome plus the lineage pointers that produced them.
type OrganismRecord struct {
	VersionedRecord
	ID              int64               `json:"id"`
	Generation      int                 `json:"generation"`
	ParentIDs       []int64             `json:"parent_ids"`
	Traits          DiploidGenomeRecord `json:"traits"`
	Brain           NeuralGenomeRecord  `json:"brain"`
	FitnessCapacity float64             `json:"fitness_capacity"`
	Hybrid          string              `json:"hybrid,omitempty"`
}

type LineageRecord struct {
	VersionedRecord
	OrganismID        int64   `json:"organism_id"`
	ParentIDs         []int64 `json:"parent_ids"`
	Generation        int     `json:"generation"`
	TraitSpeciesID    int64   `json:"trait_species_id"`
	NeuralSpeciesID   int64   `json:"neural_species_id"`
	Operation         string  `json:"operation"`
	Hybrid            string  `json:"hybrid,omitempty"`
	Fingerprint       string  `json:"fingerprint"`
	Fitness           float64 `json:"fitness"`
	Retired           bool    `json:"retired"`
	RetiredGeneration int     `json:"retired_generation"`
}

const (
	SpeciesKindTrait  = "trait"
	SpeciesKindNeural = "neural"
)

// SpeciesSnapshot is the read-only view of one species handed to reporting.
type SpeciesSnapshot struct {
	ID                int64   `json:"id"`
	Kind              string  `json:"kind"`
	MemberCount       int     `json:"member_count"`
	FoundedGeneration int     `json:"founded_generation"`
	ParentSpeciesID   int64   `json:"parent_species_id"`
	Staleness         int     `json:"staleness"`
	BestFitness       float64 `json:"best_fitness"`
	SharedFitnessSum  float64 `json:"shared_fitness_sum"`
	Extinct           bool    `json:"extinct"`
}

type SpeciesGeneration struct {
	Generation     int               `json:"generation"`
	Species        []SpeciesSnapshot `json:"species"`
	NewSpecies     []int64           `json:"new_species"`
	ExtinctSpecies []int64           `json:"extinct_species"`
}

type GenerationStats struct {
	Generation         int     `json:"generation"`
	BestFitness        float64 `json:"best_fitness"`
	MeanFitness        float64 `json:"mean_fitness"`
	MinFitness         float64 `json:"min_fitness"`
	TraitSpeciesCount  int     `json:"trait_species_count"`
	NeuralSpeciesCount int     `json:"neural_species_count"`
	MeanHiddenNodes    float64 `json:"mean_hidden_nodes"`
	MaxHiddenNodes     int     `json:"max_hidden_nodes"`
	Offspring          int     `json:"offspring"`
	HybridOffspring    int     `json:"hybrid_offspring"`
	IncompatiblePairs  int     `json:"incompatible_pairs"`
}

type RegistryState struct {
	VersionedRecord
	Generation     int   `json:"generation"`
	NextNodeID     int64 `json:"next_node_id"`
	NextInnovation int64 `json:"next_innovation"`
}

type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Scape        string  `json:"scape"`
	Seed         int64   `json:"seed"`
	Population   int     `json:"population"`
	Generation   int     `json:"generation"`
	OrganismIDs  []int64 `json:"organism_ids"`
	BestFitness  float64 `json:"best_fitness"`
}
