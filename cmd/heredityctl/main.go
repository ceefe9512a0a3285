package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"heredity/internal/storage"
	"heredity/pkg/heredity"
)

const defaultDBPath = "heredity.db"

func main() {
	if err := newRootCmd(nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the persistent flags shared by every command.
type app struct {
	storeKind string
	dbPath    string
	logLevel  string
	logger    *slog.Logger

	// newClient opens the facade; tests replace it to share one store
	// across commands.
	newClient func() (*heredity.Client, error)
}

func newRootCmd(newClient func() (*heredity.Client, error)) *cobra.Command {
	a := &app{newClient: newClient}

	root := &cobra.Command{
		Use:           "heredityctl",
		Short:         "Evolve diploid organisms with NEAT brains and inspect stored runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogging(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDBPath, "sqlite database path")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(
		a.runCmd(),
		a.runsCmd(),
		a.speciesCmd(),
		a.lineageCmd(),
		a.organismCmd(),
		a.fitnessCmd(),
	)
	return root
}

func (a *app) setupLogging(w io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(a.logLevel))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
	}
	a.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

// withClient opens the facade for one command and closes it afterwards.
func (a *app) withClient(fn func(*heredity.Client) error) error {
	var (
		client *heredity.Client
		err    error
	)
	if a.newClient != nil {
		client, err = a.newClient()
	} else {
		client, err = heredity.New(heredity.Options{
			StoreKind: a.storeKind,
			DBPath:    a.dbPath,
			Logger:    a.logger,
		})
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return fn(client)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
