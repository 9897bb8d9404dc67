package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/database"
	"github.com/nao1215/trafficcloak/internal/model"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List or show recorded sessions",
		Long: `History lists the most recent sessions stored in the history database,
or shows one session in detail when its ID is given.

Examples:
  # The last 50 sessions
  trafficcloak history

  # The last 10 crawl sessions as Markdown
  trafficcloak history --kind crawl --limit 10 --markdown

  # One session as JSON
  trafficcloak history --json 3f0c6a4e-8f5e-4f7e-9a55-0c1f5f1d2b6e

  # Delete sessions older than 30 days
  trafficcloak history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("kind", "", `Only list sessions of this kind ("search", "crawl" or "lookup")`)
	cmd.Flags().IntP("limit", "n", database.DefaultListLimit, "Maximum number of sessions to list")
	cmd.Flags().Duration("prune", 0, "Delete sessions that started longer ago than this")
	addReportFlags(cmd)

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	kind, err := cmd.Flags().GetString("kind")
	if err != nil {
		return err
	}
	switch model.Kind(kind) {
	case "", model.KindSearch, model.KindCrawl, model.KindLookup:
	default:
		return fmt.Errorf("unknown session kind %q", kind)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	prune, err := cmd.Flags().GetDuration("prune")
	if err != nil {
		return err
	}

	opts := database.ReadOnlyOptions()
	if prune > 0 {
		opts = database.DefaultOptions()
	}
	db, err := database.Open(a.cfg.DBDir, opts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if prune > 0 {
		n, err := db.DeleteBefore(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d sessions older than %s\n", n, prune)
		return nil
	}

	out, closeOut, err := openOutput(a.cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report output

	writer := reportWriter(a.cfg, out)
	if len(args) == 1 {
		r, err := db.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = writer.Write(r)
		return err
	}

	reports, err := db.ListReports(ctx, model.Kind(kind), limit)
	if err != nil {
		return err
	}
	_, err = writer.WriteList(reports)
	return err
}
