package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/foodform/foodform/internal/config"
	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/logging"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
)

// RootOptions holds global flags for all commands. Flags override the
// environment.
type RootOptions struct {
	SchemaPath string
	DBPath     string
	DBDriver   string
	Table      string
	LogLevel   string

	cfg *config.Config
}

// NewRootCommand creates the root command of the CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "foodform",
		Short: "Food consumption data entry",
		Long: `Schema-driven data entry for food consumption statistics.

Records are validated against a YAML or TOML schema and stored with
version counters and soft delete. Tables can be filled through the web
form, bulk imported from CSV or Excel, and exported again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.SchemaPath, "schema", "", "schema file (.yaml, .yml or .toml; default: bundled schema)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "driver", "", "database driver (sqlite|pgx)")
	cmd.PersistentFlags().StringVarP(&opts.Table, "table", "t", "", "table to work on (default: first table in the schema)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// load reads the configuration and applies the flags the user set.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.Schema.Path = o.SchemaPath
	}
	if flags.Changed("db") {
		cfg.Database.Path = o.DBPath
	}
	if flags.Changed("driver") {
		cfg.Database.Driver = o.DBDriver
	}
	if flags.Changed("table") {
		cfg.Schema.DefaultTable = o.Table
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	o.cfg = cfg
	return nil
}

// loadSchema returns the configured schema, or the bundled one.
func (o *RootOptions) loadSchema() (*schema.Schema, error) {
	if o.cfg.Schema.Path == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(o.cfg.Schema.Path)
}

// openService opens the database and builds the service around it. The
// returned function releases both.
func (o *RootOptions) openService(ctx context.Context) (*core.Service, func(), error) {
	sch, err := o.loadSchema()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(ctx, store.Options{
		Driver: o.cfg.Database.Driver,
		DSN:    o.cfg.Database.DSN(),
	}, sch)
	if err != nil {
		return nil, nil, err
	}

	svc, err := core.NewService(db, core.Options{
		DefaultTable:         o.cfg.Schema.DefaultTable,
		ImportTTL:            o.cfg.Upload.ImportTTL,
		MaxImportRows:        o.cfg.Upload.MaxRows,
		MaxConcurrentImports: o.cfg.Upload.MaxConcurrent,
		ImportWait:           o.cfg.Upload.MaxWaitTime,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	closeFn := func() {
		svc.Close()
		if err := db.Close(); err != nil {
			slog.Warn("close database", "error", err)
		}
	}
	return svc, closeFn, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// userError pairs err with its user message; printError shows both.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return core.NewUserError(err)
}

// printError writes err for the terminal. Errors with a known user message
// are shown with their support code and the technical detail underneath.
func printError(w io.Writer, err error) {
	var uerr *core.UserError
	if !errors.As(err, &uerr) {
		fmt.Fprintln(w, "Error:", err)
		return
	}
	if !core.IsUserFacing(uerr.Technical) {
		fmt.Fprintln(w, "Error:", uerr.Technical)
		return
	}
	fmt.Fprintf(w, "Error: %s\n  detail: %v\n", core.FormatUserError(uerr.Technical), uerr.Technical)
}
