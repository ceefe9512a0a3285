package heredity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientRunAndQueries(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	summary, err := client.Run(ctx, RunRequest{
		Scape:       "xor",
		Population:  10,
		Generations: 3,
		Seed:        5,
		Workers:     2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if summary.Scape != "xor" {
		t.Fatalf("unexpected scape: %s", summary.Scape)
	}
	if len(summary.History) != 3 {
		t.Fatalf("expected 3 generations of history, got %d", len(summary.History))
	}
	if summary.TraitSpecies == 0 || summary.NeuralSpecies == 0 {
		t.Fatalf("expected live species of both kinds: %+v", summary)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Generation != 3 || len(runs[0].OrganismIDs) != 10 {
		t.Fatalf("unexpected run record: %+v", runs[0])
	}

	view, err := client.Organism(ctx, OrganismRequest{Latest: true, ID: summary.BestOrganism})
	if err != nil {
		t.Fatalf("organism: %v", err)
	}
	if view.Record.ID != summary.BestOrganism {
		t.Fatalf("unexpected organism: %d", view.Record.ID)
	}
	if len(view.Phenotype) != 3 {
		t.Fatalf("expected three expressed traits, got %v", view.Phenotype)
	}
	if view.Fingerprint == "" || view.DecodeError != "" {
		t.Fatalf("unexpected organism view: %+v", view)
	}

	lineage, err := client.Lineage(ctx, LineageRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) < 10 {
		t.Fatalf("expected at least the seed population in lineage, got %d", len(lineage))
	}
	limited, err := client.Lineage(ctx, LineageRequest{Latest: true, Limit: 4})
	if err != nil {
		t.Fatalf("limited lineage: %v", err)
	}
	if len(limited) != 4 {
		t.Fatalf("expected 4 lineage records, got %d", len(limited))
	}
	ancestry, err := client.Lineage(ctx, LineageRequest{Latest: true, OrganismID: summary.BestOrganism, Depth: 3})
	if err != nil {
		t.Fatalf("ancestry: %v", err)
	}
	if len(ancestry) == 0 || ancestry[0].OrganismID != summary.BestOrganism {
		t.Fatalf("ancestry must start at the organism: %+v", ancestry)
	}

	last, err := client.Species(ctx, SpeciesRequest{Latest: true, Generation: -1})
	if err != nil {
		t.Fatalf("species: %v", err)
	}
	if last.Generation != 3 {
		t.Fatalf("expected last species generation 3, got %d", last.Generation)
	}
	founders, err := client.Species(ctx, SpeciesRequest{RunID: summary.RunID, Generation: 0})
	if err != nil {
		t.Fatalf("species generation 0: %v", err)
	}
	if len(founders.NewSpecies) == 0 {
		t.Fatal("expected founding species")
	}
	if _, err := client.Species(ctx, SpeciesRequest{RunID: summary.RunID, Generation: 99}); err == nil {
		t.Fatal("expected missing generation error")
	}

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true, Limit: 2})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if len(history) != 2 || history[0].Generation != 1 {
		t.Fatalf("unexpected fitness history: %+v", history)
	}
}

func TestClientRunReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := []byte("population:\n  size: 6\n  generations: 2\n  seed: 9\ntraits:\n  names: [size, hue]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	client := newTestClient(t)
	summary, err := client.Run(context.Background(), RunRequest{ConfigPath: path, Scape: "trait_target"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.History) != 2 {
		t.Fatalf("expected 2 generations, got %d", len(summary.History))
	}
	view, err := client.Organism(context.Background(), OrganismRequest{RunID: summary.RunID, ID: summary.BestOrganism})
	if err != nil {
		t.Fatalf("organism: %v", err)
	}
	if len(view.Phenotype) != 2 {
		t.Fatalf("expected traits from config, got %v", view.Phenotype)
	}
	if summary.BestFitness < 0 || summary.BestFitness > 1 {
		t.Fatalf("trait target fitness out of range: %f", summary.BestFitness)
	}
}

func TestClientRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	for seed := int64(1); seed <= 2; seed++ {
		if _, err := client.Run(ctx, RunRequest{Scape: "xor", Population: 4, Generations: 1, Seed: seed}); err != nil {
			t.Fatalf("run %d: %v", seed, err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].CreatedAtUTC < runs[1].CreatedAtUTC {
		t.Fatalf("runs not newest first: %s before %s", runs[0].CreatedAtUTC, runs[1].CreatedAtUTC)
	}
	one, err := client.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs limit: %v", err)
	}
	if len(one) != 1 || one[0].ID != runs[0].ID {
		t.Fatalf("unexpected limited runs: %+v", one)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found without runs, got %v", err)
	}
	if _, err := client.Run(ctx, RunRequest{Scape: "maze", Population: 4, Generations: 1}); err == nil {
		t.Fatal("expected unknown scape error")
	}

	summary, err := client.Run(ctx, RunRequest{Scape: "xor", Population: 4, Generations: 1, Seed: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := client.Lineage(ctx, LineageRequest{RunID: summary.RunID, Latest: true}); !errors.Is(err, ErrRunSelector) {
		t.Fatalf("expected selector error, got %v", err)
	}
	if _, err := client.Lineage(ctx, LineageRequest{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, err := client.Species(ctx, SpeciesRequest{RunID: "missing"}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected run not found, got %v", err)
	}
	if _, err := client.Organism(ctx, OrganismRequest{RunID: summary.RunID, ID: 9999}); !errors.Is(err, ErrOrganismNotFound) {
		t.Fatalf("expected organism not found, got %v", err)
	}
	if _, err := client.Lineage(ctx, LineageRequest{Latest: true, OrganismID: 9999}); !errors.Is(err, ErrOrganismNotFound) {
		t.Fatalf("expected organism not found in lineage, got %v", err)
	}
	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true, Limit: -1}); err == nil {
		t.Fatal("expected negative limit error")
	}
}
