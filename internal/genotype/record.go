package genotype

import (
	"fmt"

	"heredity/internal/model"
)

func (g Genome) ToRecord() model.NeuralGenomeRecord {
	rec := model.NeuralGenomeRecord{
		Nodes:       make([]model.NodeGeneRecord, 0, len(g.Nodes)),
		Connections: make([]model.ConnectionGeneRecord, 0, len(g.Connections)),
		Fitness:     g.Fitness,
		SpeciesID:   g.SpeciesID,
		Recurrent:   g.Recurrent,
	}
	for _, n := range g.Nodes {
		rec.Nodes = append(rec.Nodes, model.NodeGeneRecord{
			ID:         n.ID,
			Kind:       string(n.Kind),
			Bias:       n.Bias,
			Activation: n.Activation,
		})
	}
	for _, c := range g.Connections {
		rec.Connections = append(rec.Connections, model.ConnectionGeneRecord{
			Innovation: c.Innovation,
			Source:     c.Source,
			Target:     c.Target,
			Weight:     c.Weight,
			Enabled:    c.Enabled,
		})
	}
	return rec
}

// FromRecord rebuilds a genome, disabled genes included, and validates its
// references.
func FromRecord(rec model.NeuralGenomeRecord) (Genome, error) {
	g := Genome{
		Nodes:       make([]NodeGene, 0, len(rec.Nodes)),
		Connections: make([]ConnectionGene, 0, len(rec.Connections)),
		Fitness:     rec.Fitness,
		SpeciesID:   rec.SpeciesID,
		Recurrent:   rec.Recurrent,
	}
	for _, n := range rec.Nodes {
		g.Nodes = append(g.Nodes, NodeGene{
			ID:         n.ID,
			Kind:       NodeKind(n.Kind),
			Bias:       n.Bias,
			Activation: n.Activation,
		})
	}
	for _, c := range rec.Connections {
		g.Connections = append(g.Connections, ConnectionGene{
			Innovation: c.Innovation,
			Source:     c.Source,
			Target:     c.Target,
			Weight:     c.Weight,
			Enabled:    c.Enabled,
		})
	}
	g.sortGenes()
	if err := g.Validate(); err != nil {
		return Genome{}, fmt.Errorf("neural genome record: %w", err)
	}
	return g, nil
}
