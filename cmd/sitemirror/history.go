package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/report"
)

// defaultHistoryLimit is the number of runs listed unless --limit is set.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command shows past mirror runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "Show past mirror runs",
		Long: `History lists mirror runs recorded by 'sitemirror mirror' and 'sitemirror serve'.

Every run is stored with its summary, the pages it mirrored and every
error it recorded, so a run can be inspected long after its output
directory was moved or deleted.

Examples:
  # Latest runs of all sites
  sitemirror history

  # Runs of one site
  sitemirror history example.com

  # Full report of one run
  sitemirror history --id 5
  sitemirror history --id 5 --markdown

  # Only the failed downloads of a run
  sitemirror history --id 5 --errors --type download_error

  # All mirrored domains
  sitemirror history --domains`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64P("id", "i", 0,
		"Show the run with this ID (use the listing to see IDs)")
	cmd.Flags().BoolP("domains", "L", false,
		"List all mirrored domains")
	cmd.Flags().BoolP("errors", "e", false,
		"With --id, list the errors of the run")
	cmd.Flags().String("type", "",
		"With --errors, only show this error type (e.g. download_error)")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolP("json", "j", false,
		"With --id, output the run as JSON")
	cmd.Flags().BoolP("markdown", "m", false,
		"With --id, output the run as Markdown")
	addDBDirFlag(cmd)

	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	id, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	listDomains, err := flags.GetBool("domains")
	if err != nil {
		return err
	}
	showErrors, err := flags.GetBool("errors")
	if err != nil {
		return err
	}
	errType, err := flags.GetString("type")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database.
	if showErrors && id == 0 {
		return errors.New("--errors requires --id")
	}
	if errType != "" && !showErrors {
		return errors.New("--type requires --errors")
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case listDomains:
		return printDomains(ctx, out, db)
	case showErrors:
		return printRunErrors(ctx, out, db, id, model.ErrorType(errType))
	case id != 0:
		return printRun(ctx, out, db, id, jsonOutput, markdownOutput)
	default:
		var domain string
		if len(args) == 1 {
			domain = strings.ToLower(strings.TrimSpace(args[0]))
		}
		return printHistory(ctx, out, db, domain, limit)
	}
}

// printHistory lists runs, newest first.
func printHistory(ctx context.Context, out io.Writer, db *database.MirrorDB, domain string, limit int) error {
	runs, err := db.ListRuns(ctx, domain, limit)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		if domain != "" {
			fmt.Fprintf(out, "No mirror history found for %s\n", domain)
		} else {
			fmt.Fprintln(out, "No mirror history found")
		}
		fmt.Fprintln(out, "\nUse 'sitemirror mirror <url>' to mirror a site.")
		return nil
	}

	fmt.Fprintf(out, "Mirror history (%d runs):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-28s  %-9s  %6s  %6s  %6s\n",
		"ID", "Date", "Site", "Status", "Pages", "Assets", "Errors")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 94))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-6d  %-19s  %-28s  %-9s  %6d  %6d  %6d\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(run.BaseURL, 28),
			runStatus(run),
			run.Pages,
			run.Assets,
			run.Errors,
		)
	}

	fmt.Fprintln(out, "\nUse 'sitemirror history --id <id>' to see the full report of a run.")
	return nil
}

// runStatus is the short status shown in the listing.
func runStatus(run database.RunSummary) string {
	switch {
	case run.Phase == model.PhaseFailed:
		return "failed"
	case run.Stopped:
		return "stopped"
	case run.Phase == model.PhaseDone:
		return "complete"
	default:
		return run.Phase.String()
	}
}

// printRun writes the full report of one stored run.
func printRun(ctx context.Context, out io.Writer, db *database.MirrorDB, id int64, jsonOutput, markdownOutput bool) error {
	res, err := db.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", id, err)
	}

	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(res)
	return err
}

// printRunErrors lists the errors of one run.
func printRunErrors(ctx context.Context, out io.Writer, db *database.MirrorDB, id int64, errType model.ErrorType) error {
	// GetRun distinguishes an unknown run from a run without errors.
	if _, err := db.GetRun(ctx, id); err != nil {
		return fmt.Errorf("failed to get run %d: %w", id, err)
	}
	records, err := db.RunErrors(ctx, id, errType)
	if err != nil {
		return fmt.Errorf("failed to get errors of run %d: %w", id, err)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "Run %d has no matching errors\n", id)
		return nil
	}

	fmt.Fprintf(out, "Errors of run %d (%d):\n\n", id, len(records))
	for _, rec := range records {
		fmt.Fprintf(out, "  [%s] %s\n", rec.Type, rec.URL)
		fmt.Fprintf(out, "      %s\n", rec.Error)
	}
	return nil
}

// printDomains lists every domain with stored runs.
func printDomains(ctx context.Context, out io.Writer, db *database.MirrorDB) error {
	domains, err := db.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	if len(domains) == 0 {
		fmt.Fprintln(out, "No mirrored domains found")
		fmt.Fprintln(out, "\nUse 'sitemirror mirror <url>' to mirror a site.")
		return nil
	}

	fmt.Fprintf(out, "Mirrored domains (%d):\n\n", len(domains))
	for _, d := range domains {
		fmt.Fprintf(out, "  %s\n", d)
	}
	fmt.Fprintln(out, "\nUse 'sitemirror history <domain>' to see the runs of a domain.")
	return nil
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
