package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/schema"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the table schema",
	}
	cmd.AddCommand(newSchemaCheckCommand(rootOpts))
	cmd.AddCommand(newSchemaTemplateCommand(rootOpts))
	return cmd
}

func newSchemaCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a schema file and list its tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sch *schema.Schema
				err error
			)
			if len(args) == 1 {
				sch, err = schema.LoadFile(args[0])
			} else {
				sch, err = rootOpts.loadSchema()
			}
			if err != nil {
				return err
			}
			printSchema(cmd, sch)
			return nil
		},
	}
}

func printSchema(cmd *cobra.Command, sch *schema.Schema) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, t := range sch.Tables {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s (%d fields)\n", t.Name, len(t.Fields))
		for _, f := range t.Fields {
			var flags []string
			if f.Required {
				flags = append(flags, "required")
			}
			if f.Min != nil {
				flags = append(flags, "min="+strconv.FormatFloat(*f.Min, 'f', -1, 64))
			}
			if f.Max != nil {
				flags = append(flags, "max="+strconv.FormatFloat(*f.Max, 'f', -1, 64))
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Name, f.Type, strings.Join(flags, " "), f.Description)
		}
	}
	tw.Flush()
}

func newSchemaTemplateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print a header-only CSV for the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := rootOpts.loadSchema()
			if err != nil {
				return err
			}
			name := rootOpts.cfg.Schema.DefaultTable
			if name == "" {
				name = sch.TableNames()[0]
			}
			t, ok := sch.Table(name)
			if !ok {
				return fmt.Errorf("unknown table %q (have %s)", name, strings.Join(sch.TableNames(), ", "))
			}
			printf(cmd, "%s", importer.Template(t))
			return nil
		},
	}
}
