package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage the student roster",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import <students.csv>",
	Short: "Replace the PostgreSQL roster with a students.csv file",
	Long: `Replace the roster stored in PostgreSQL with the students in a CSV file.
The file needs Name and RollNo columns; Department, Year and Division are optional.
Students missing from the file are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRosterImport,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterImportCmd)
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	r, err := roster.LoadCSV(args[0])
	if err != nil {
		return err
	}
	if r.Len() == 0 {
		return fmt.Errorf("%s contains no students", args[0])
	}

	ctx := context.Background()
	cfg := config.Load()

	b := newBackends(cfg, logging.New(cfg.Log))
	defer b.Close()

	pool, err := b.postgres(ctx)
	if err != nil {
		return err
	}
	if err := postgres.NewRosterRepository(pool).ReplaceRoster(ctx, r.Identities()); err != nil {
		return err
	}

	fmt.Printf("Imported %d students from %s\n", r.Len(), args[0])
	return nil
}
