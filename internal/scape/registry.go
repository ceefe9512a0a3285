package scape

import (
	"fmt"
	"sort"
)

// DefaultTraitTarget is the goal every trait is pulled towards by the
// built-in trait_target scape.
const DefaultTraitTarget = 0.75

// New builds a built-in scape by name for the given trait names.
func New(name string, traits []string) (Scape, error) {
	targets := make(map[string]float64, len(traits))
	for _, t := range traits {
		targets[t] = DefaultTraitTarget
	}
	switch name {
	case "xor":
		return XORScape{}, nil
	case "trait_target":
		return TraitTargetScape{Targets: targets}, nil
	case "", "composite":
		return CompositeScape{Parts: []Weighted{
			{Scape: XORScape{}, Weight: 1},
			{Scape: TraitTargetScape{Targets: targets}, Weight: 1},
		}}, nil
	default:
		return nil, fmt.Errorf("unknown scape %q (known: %v)", name, Names())
	}
}

func Names() []string {
	names := []string{"composite", "trait_target", "xor"}
	sort.Strings(names)
	return names
}
