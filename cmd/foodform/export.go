package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foodform/foodform/internal/export"
	"github.com/foodform/foodform/internal/store"
)

// ExportOptions holds the flags of the export command.
type ExportOptions struct {
	Format  string
	Out     string
	Where   []string
	Deleted string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the records of a table as CSV or Excel",
		Long: `Write the records of a table as CSV or Excel.

Conditions are given as "field op value" and combined with AND, e.g.

  foodform export --where "commodity contains rice" --where "mean_consumption_chronic gte 10"

Operators: contains, eq, starts, ends, gte, lte, gt, lt, in (comma-separated values).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "csv", "output format (csv|xlsx)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default: stdout for csv, <table>_<date>.xlsx for xlsx)")
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, `filter condition "field op value" (repeatable)`)
	cmd.Flags().StringVar(&opts.Deleted, "deleted", "exclude", "deleted records (exclude|include|only)")
	return cmd
}

// parseWhere reads a "field op value" condition. A bare "field value" means eq.
func parseWhere(s string) (store.Condition, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	switch len(parts) {
	case 2:
		return store.Condition{Field: parts[0], Op: store.OpEquals, Value: parts[1]}, nil
	case 3:
		op, ok := store.ParseOperator(parts[1])
		if !ok {
			return store.Condition{}, fmt.Errorf("--where %q: unknown operator %q", s, parts[1])
		}
		return store.Condition{Field: parts[0], Op: op, Value: parts[2]}, nil
	default:
		return store.Condition{}, fmt.Errorf(`--where %q: expected "field op value"`, s)
	}
}

func runExport(cmd *cobra.Command, rootOpts *RootOptions, opts *ExportOptions) error {
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	mode, ok := store.ParseDeletedMode(opts.Deleted)
	if !ok {
		return fmt.Errorf("--deleted must be exclude, include or only")
	}
	f := store.Filter{Deleted: mode}
	for _, w := range opts.Where {
		c, err := parseWhere(w)
		if err != nil {
			return err
		}
		f.Conditions = append(f.Conditions, c)
	}

	ctx := cmd.Context()
	svc, closeFn, err := rootOpts.openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	table := svc.DefaultTable()
	out := opts.Out
	if out == "" && format == export.FormatXLSX {
		out = export.Filename(table, format, time.Now())
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer file.Close()
		w = file
	}

	if err := svc.Export(ctx, table, f, format, w); err != nil {
		return userError(err)
	}
	if out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
	}
	return nil
}
