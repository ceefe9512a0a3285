package genotype

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type TopologySummary struct {
	TotalNodes             int            `json:"total_nodes"`
	HiddenNodes            int            `json:"hidden_nodes"`
	TotalConnections       int            `json:"total_connections"`
	EnabledConnections     int            `json:"enabled_connections"`
	ActivationDistribution map[string]int `json:"activation_distribution"`
}

type Signature struct {
	Fingerprint string          `json:"fingerprint"`
	Summary     TopologySummary `json:"summary"`
}

// ComputeSignature fingerprints the structure of a genome: node kinds,
// activations and the innovation ids of enabled genes. Weights are ignored
// so the fingerprint tracks topology only.
func ComputeSignature(g Genome) Signature {
	actDist := make(map[string]int)
	for _, n := range g.Nodes {
		actDist[n.Activation]++
	}
	summary := TopologySummary{
		TotalNodes:             len(g.Nodes),
		HiddenNodes:            g.HiddenCount(),
		TotalConnections:       len(g.Connections),
		EnabledConnections:     g.EnabledCount(),
		ActivationDistribution: actDist,
	}

	parts := []string{
		fmt.Sprintf("n=%d", summary.TotalNodes),
		fmt.Sprintf("h=%d", summary.HiddenNodes),
		fmt.Sprintf("c=%d", summary.TotalConnections),
		fmt.Sprintf("e=%d", summary.EnabledConnections),
		fmt.Sprintf("r=%t", g.Recurrent),
	}
	keys := make([]string, 0, len(actDist))
	for k := range actDist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("af:%s=%d", k, actDist[k]))
	}
	for _, c := range g.Connections {
		if c.Enabled {
			parts = append(parts, fmt.Sprintf("i%d", c.Innovation))
		}
	}

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return Signature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}
