package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/surveydb/internal/command"
)

// NewBoundsCommand creates the bounds command.
func NewBoundsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounds <database> <column>",
		Short: "Show the minimum and maximum of a column",
		Long: `Show the minimum and maximum of a column, as the worker does for a
"get bounds" command.

Example:
  surveydb bounds latiss exposure.dec`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBounds(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runBounds(opts *RootOptions, db, column string, cmd *cobra.Command) error {
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

	resp, err := env.dispatcher.Run(cmd.Context(), command.CommandGetBounds, command.GetBoundsParams{
		Database: db,
		Column:   column,
	})
	if err != nil {
		return formatter.Fail("bounds failed", err)
	}

	return formatter.Response(resp, func(w io.Writer) error {
		content, ok := resp.Content.(command.ColumnBounds)
		if !ok {
			return fmt.Errorf("unexpected content %T", resp.Content)
		}
		_, err := fmt.Fprintf(w, "%s: [%s, %s]\n", content.Column,
			formatValue(content.Bounds.Min), formatValue(content.Bounds.Max))
		return err
	})
}
