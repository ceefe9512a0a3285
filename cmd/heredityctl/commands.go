package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"heredity/internal/scape"
	"heredity/pkg/heredity"
)

// runSelector holds the --run-id/--latest pair used by the query commands.
type runSelector struct {
	runID  string
	latest bool
}

func (s *runSelector) bind(cmd *cobra.Command, what string) {
	cmd.Flags().StringVar(&s.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&s.latest, "latest", false, "show "+what+" for the most recent run")
}

func (s *runSelector) check(command string) error {
	if s.runID != "" && s.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if s.runID == "" && !s.latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

func (a *app) runCmd() *cobra.Command {
	var (
		req     heredity.RunRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed a population, evolve it and store the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Generations < 0 || req.Population < 0 {
				return errors.New("population and generations must be >= 0")
			}
			return a.withClient(func(client *heredity.Client) error {
				summary, err := client.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, summary)
				}
				for _, g := range summary.History {
					fmt.Fprintf(out, "gen=%d best=%.6f mean=%.6f min=%.6f trait_species=%d neural_species=%d hidden_mean=%.2f offspring=%d hybrids=%d incompatible=%d\n",
						g.Generation,
						g.BestFitness,
						g.MeanFitness,
						g.MinFitness,
						g.TraitSpeciesCount,
						g.NeuralSpeciesCount,
						g.MeanHiddenNodes,
						g.Offspring,
						g.HybridOffspring,
						g.IncompatiblePairs,
					)
				}
				fmt.Fprintf(out, "run_id=%s scape=%s best_organism=%d best_fitness=%.6f trait_species=%d neural_species=%d\n",
					summary.RunID,
					summary.Scape,
					summary.BestOrganism,
					summary.BestFitness,
					summary.TraitSpecies,
					summary.NeuralSpecies,
				)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ConfigPath, "config", "", "config file (.yaml, .json or .ini)")
	f.StringVar(&req.Scape, "scape", "composite", "evaluation task: "+strings.Join(scape.Names(), "|"))
	f.IntVar(&req.Population, "population", 0, "population size (0 keeps the config value)")
	f.IntVar(&req.Generations, "generations", 0, "generations to evolve (0 keeps the config value)")
	f.Int64Var(&req.Seed, "seed", 0, "rng seed (0 keeps the config value)")
	f.IntVar(&req.Workers, "workers", 0, "evaluation workers (0 keeps the config value)")
	f.BoolVar(&jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return a.withClient(func(client *heredity.Client) error {
				runs, err := client.Runs(cmd.Context(), heredity.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "no runs found")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(out, "run_id=%s created_at=%s scape=%s seed=%d pop=%d gens=%d best_fitness=%.6f\n",
						r.ID,
						r.CreatedAtUTC,
						r.Scape,
						r.Seed,
						r.Population,
						r.Generation,
						r.BestFitness,
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func (a *app) speciesCmd() *cobra.Command {
	var (
		sel        runSelector
		generation int
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "species",
		Short: "Show the species of one generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.check("species"); err != nil {
				return err
			}
			return a.withClient(func(client *heredity.Client) error {
				gen, err := client.Species(cmd.Context(), heredity.SpeciesRequest{
					RunID:      sel.runID,
					Latest:     sel.latest,
					Generation: generation,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, gen)
				}
				fmt.Fprintf(out, "generation=%d species=%d new=%v extinct=%v\n",
					gen.Generation, len(gen.Species), gen.NewSpecies, gen.ExtinctSpecies)
				species := append(gen.Species[:0:0], gen.Species...)
				sort.SliceStable(species, func(i, j int) bool {
					if species[i].Kind != species[j].Kind {
						return species[i].Kind < species[j].Kind
					}
					return species[i].ID < species[j].ID
				})
				for _, sp := range species {
					fmt.Fprintf(out, "kind=%s id=%d members=%d founded=%d parent=%d staleness=%d best_fitness=%.6f\n",
						sp.Kind,
						sp.ID,
						sp.MemberCount,
						sp.FoundedGeneration,
						sp.ParentSpeciesID,
						sp.Staleness,
						sp.BestFitness,
					)
				}
				return nil
			})
		},
	}
	sel.bind(cmd, "species")
	cmd.Flags().IntVar(&generation, "generation", -1, "generation to show (-1 for the last)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit species as JSON")
	return cmd
}

func (a *app) lineageCmd() *cobra.Command {
	var (
		sel      runSelector
		limit    int
		organism int64
		depth    int
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show lineage records of a run or the ancestry of one organism",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.check("lineage"); err != nil {
				return err
			}
			if limit < 0 {
				limit = 0
			}
			return a.withClient(func(client *heredity.Client) error {
				records, err := client.Lineage(cmd.Context(), heredity.LineageRequest{
					RunID:      sel.runID,
					Latest:     sel.latest,
					Limit:      limit,
					OrganismID: organism,
					Depth:      depth,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(out, "no lineage records")
					return nil
				}
				for _, rec := range records {
					fmt.Fprintf(out, "gen=%d organism=%d parents=%v op=%s hybrid=%s trait_species=%d neural_species=%d fitness=%.6f fingerprint=%s retired=%t\n",
						rec.Generation,
						rec.OrganismID,
						rec.ParentIDs,
						rec.Operation,
						orNone(rec.Hybrid),
						rec.TraitSpeciesID,
						rec.NeuralSpeciesID,
						rec.Fitness,
						rec.Fingerprint,
						rec.Retired,
					)
				}
				return nil
			})
		},
	}
	sel.bind(cmd, "lineage")
	cmd.Flags().IntVar(&limit, "limit", 50, "max lineage rows to print (<=0 for all)")
	cmd.Flags().Int64Var(&organism, "organism", 0, "show this organism and its ancestors")
	cmd.Flags().IntVar(&depth, "depth", 3, "ancestor generations to follow with --organism")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit lineage rows as JSON")
	return cmd
}

func (a *app) organismCmd() *cobra.Command {
	var (
		sel     runSelector
		id      int64
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "organism",
		Short: "Show a stored organism with its expressed traits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.check("organism"); err != nil {
				return err
			}
			if id <= 0 {
				return errors.New("organism requires --id")
			}
			return a.withClient(func(client *heredity.Client) error {
				view, err := client.Organism(cmd.Context(), heredity.OrganismRequest{
					RunID:  sel.runID,
					Latest: sel.latest,
					ID:     id,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, view)
				}
				rec := view.Record
				fmt.Fprintf(out, "organism=%d gen=%d parents=%v hybrid=%s capacity=%.4f trait_species=%d\n",
					rec.ID,
					rec.Generation,
					rec.ParentIDs,
					orNone(rec.Hybrid),
					rec.FitnessCapacity,
					rec.Traits.SpeciesID,
				)
				for _, name := range view.Phenotype.Traits() {
					fmt.Fprintf(out, "trait %s=%.6f\n", name, view.Phenotype[name])
				}
				fmt.Fprintf(out, "brain hidden=%d connections=%d recurrent=%t fingerprint=%s\n",
					view.HiddenNodes,
					view.Connections,
					rec.Brain.Recurrent,
					view.Fingerprint,
				)
				if view.DecodeError != "" {
					fmt.Fprintf(out, "decode_error=%s\n", view.DecodeError)
				}
				return nil
			})
		},
	}
	sel.bind(cmd, "an organism")
	cmd.Flags().Int64Var(&id, "id", 0, "organism id")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the organism as JSON")
	return cmd
}

func (a *app) fitnessCmd() *cobra.Command {
	var (
		sel     runSelector
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "fitness",
		Short: "Show per-generation fitness history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.check("fitness"); err != nil {
				return err
			}
			if limit < 0 {
				limit = 0
			}
			return a.withClient(func(client *heredity.Client) error {
				history, err := client.FitnessHistory(cmd.Context(), heredity.FitnessHistoryRequest{
					RunID:  sel.runID,
					Latest: sel.latest,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return writeJSON(out, history)
				}
				if len(history) == 0 {
					fmt.Fprintln(out, "no fitness history")
					return nil
				}
				for _, g := range history {
					fmt.Fprintf(out, "gen=%d best=%.6f mean=%.6f min=%.6f hidden_max=%d\n",
						g.Generation,
						g.BestFitness,
						g.MeanFitness,
						g.MinFitness,
						g.MaxHiddenNodes,
					)
				}
				return nil
			})
		},
	}
	sel.bind(cmd, "fitness history")
	cmd.Flags().IntVar(&limit, "limit", 50, "max generations to print (<=0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit fitness history as JSON")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
