package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/surveydb/internal/command"
	"github.com/roach88/surveydb/internal/schema"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <database>",
		Short: "Show the tables, columns and joins a database serves",
		Long: `Show the schema of a configured database after it has been reconciled
with the live database: tables and columns the database does not have are
left out, as are joins between tables that are missing.

Example:
  surveydb schema latiss
  surveydb schema latiss --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, db string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	env, err := openEnvironment(cmd.Context(), opts)
	if err != nil {
		return formatter.FailEnvironment(err)
	}
	defer env.Close()

	resp, err := env.dispatcher.Run(cmd.Context(), command.CommandLoadSchema, command.LoadSchemaParams{Database: db})
	if err != nil {
		return formatter.Fail("schema failed", err)
	}

	return formatter.Response(resp, func(w io.Writer) error {
		desc, ok := resp.Content.(schema.Description)
		if !ok {
			return fmt.Errorf("unexpected content %T", resp.Content)
		}
		writeDescription(w, desc)
		return nil
	})
}

func writeDescription(w io.Writer, desc schema.Description) {
	fmt.Fprintf(w, "Schema %s: %d table(s), %d join(s)\n", desc.Name, len(desc.Tables), len(desc.Joins))
	for _, t := range desc.Tables {
		fmt.Fprintf(w, "\n%s (index: %s)\n", t.Name, strings.Join(t.IndexColumns, ", "))
		for _, c := range t.Columns {
			line := fmt.Sprintf("  %s %s", c.Name, c.DataType)
			if c.Unit != "" {
				line += " [" + c.Unit + "]"
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(desc.Joins) > 0 {
		fmt.Fprintln(w, "\nJoins:")
	}
	for _, j := range desc.Joins {
		tables := make([]string, 0, len(j.Matches))
		for t := range j.Matches {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		sides := make([]string, 0, len(tables))
		for _, t := range tables {
			sides = append(sides, fmt.Sprintf("%s(%s)", t, strings.Join(j.Matches[t], ", ")))
		}
		fmt.Fprintf(w, "  %s: %s\n", j.Type, strings.Join(sides, " = "))
	}
}
