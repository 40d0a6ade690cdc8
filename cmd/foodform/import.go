package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/record"
)

// ImportOptions holds the flags of the import command.
type ImportOptions struct {
	Commit    bool
	Delimiter string
	JSON      bool
	MaxErrors int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Check a CSV or Excel file against a table and optionally import it",
		Long: `Analyze a CSV (.csv, .tsv, .txt) or Excel (.xlsx) file against a table.

Every row is validated and problems are listed by row and line. Nothing
is written unless --commit is given; then only the valid rows are
inserted, each as its own record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "insert the valid rows")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV delimiter (default: detect)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVar(&opts.MaxErrors, "max-errors", 50, "invalid rows to list (0 for all)")
	return cmd
}

func runImport(cmd *cobra.Command, rootOpts *RootOptions, opts *ImportOptions, path string) error {
	var delim rune
	if opts.Delimiter != "" {
		if utf8.RuneCountInString(opts.Delimiter) != 1 {
			return fmt.Errorf("--delimiter must be a single character")
		}
		delim, _ = utf8.DecodeRuneInString(opts.Delimiter)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx := cmd.Context()
	svc, closeFn, err := rootOpts.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	table := svc.DefaultTable()
	p, err := svc.PreviewImport(ctx, table, filepath.Base(path), f, importer.Options{Delimiter: delim})
	if err != nil {
		return userError(err)
	}

	var res *importer.CommitResult
	if opts.Commit && p.Report.Valid > 0 {
		if res, err = svc.CommitImport(ctx, p.ID); err != nil {
			return userError(err)
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*core.PendingImport
			Result *importer.CommitResult `json:"result,omitempty"`
		}{p, res})
	}

	printReport(cmd, p.Report, opts.MaxErrors)
	if res != nil {
		printf(cmd, "Inserted %d records into %s.\n", len(res.Inserted), table)
		for _, fail := range res.Failed {
			printf(cmd, "  row %d (line %d): %s\n", fail.Row, fail.Line, fail.Message)
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d valid rows failed to insert", len(res.Failed))
		}
	} else if !opts.Commit {
		printf(cmd, "Dry run: nothing was written. Use --commit to insert the valid rows.\n")
	}
	return nil
}

func printReport(cmd *cobra.Command, rep *importer.Report, maxErrors int) {
	printf(cmd, "Table %s: %d rows, %d valid, %d invalid\n", rep.Table, rep.Total, rep.Valid, rep.Invalid)
	if len(rep.MissingColumns) > 0 {
		printf(cmd, "Missing required columns: %s\n", strings.Join(rep.MissingColumns, ", "))
	}
	if len(rep.IgnoredColumns) > 0 {
		printf(cmd, "Ignored columns: %s\n", strings.Join(rep.IgnoredColumns, ", "))
	}

	invalid := rep.InvalidRows()
	for i, row := range invalid {
		if maxErrors > 0 && i == maxErrors {
			printf(cmd, "  ... %d more invalid rows\n", len(invalid)-maxErrors)
			break
		}
		printf(cmd, "  row %d (line %d): %s\n", row.Row, row.Line, record.Summary(row.Errors))
	}
}
