package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/surveydb/internal/command"
	"github.com/roach88/surveydb/internal/database"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Query       string
	GlobalQuery string
	DayObs      string
	DataIDs     []string
	Aggregator  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <database> <columns...>",
		Short: "Load columns from a database",
		Long: `Load columns from a configured database, exactly as the worker does for
a "load columns" command.

Columns are table.column references, or a single table name to load every
column of that table. Queries are JSON query trees given inline or as
@file.

Example:
  surveydb query latiss exposure.ra exposure.dec
  surveydb query latiss visit1_quicklook.psf_sigma --day-obs 2023-05-19
  surveydb query latiss exposure.ra --query '{"type":"EqualityQuery","field":{"schema":"exposure","name":"exp_time"},"rightOperator":"eq","rightValue":30}'
  surveydb query latiss exposure.ra --aggregator avg --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query tree as JSON, or @file")
	cmd.Flags().StringVar(&opts.GlobalQuery, "global-query", "", "query tree ANDed with --query, as JSON or @file")
	cmd.Flags().StringVar(&opts.DayObs, "day-obs", "", "observing night (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.DataIDs, "data-id", nil, "restrict rows to day_obs:seq_num pairs (repeatable)")
	cmd.Flags().StringVar(&opts.Aggregator, "aggregator", "", "aggregate every column (count|sum|avg|min|max)")

	return cmd
}

func runQuery(opts *QueryOptions, db string, columns []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	params := command.LoadColumnsParams{
		Database:   db,
		Columns:    columns,
		DayObs:     opts.DayObs,
		Aggregator: opts.Aggregator,
	}

	var err error
	if params.Query, err = readQuery(opts.Fs, opts.Query); err != nil {
		_ = formatter.Error(ErrCodeQuery, fmt.Sprintf("invalid --query: %v", err), nil)
		return WrapExitError(ExitFailure, "invalid --query", err)
	}
	if params.GlobalQuery, err = readQuery(opts.Fs, opts.GlobalQuery); err != nil {
		_ = formatter.Error(ErrCodeQuery, fmt.Sprintf("invalid --global-query: %v", err), nil)
		return WrapExitError(ExitFailure, "invalid --global-query", err)
	}
	if params.DataIDs, err = parseDataIDs(opts.DataIDs); err != nil {
		_ = formatter.Error(ErrCodeQuery, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid --data-id", err)
	}

	env, err := openEnvironment(cmd.Context(), opts.RootOptions)
	if err != nil {
		return formatter.FailEnvironment(err)
	}
	defer env.Close()

	resp, err := env.dispatcher.Run(cmd.Context(), command.CommandLoadColumns, params)
	if err != nil {
		return formatter.Fail("query failed", err)
	}
	formatter.VerboseLog("Loaded %d column(s) from %s", len(columns), db)

	return formatter.Response(resp, func(w io.Writer) error {
		content, ok := resp.Content.(command.TableColumns)
		if !ok {
			return fmt.Errorf("unexpected content %T", resp.Content)
		}
		switch data := content.Data.(type) {
		case map[string][]any:
			return writeTable(w, content.Columns, data)
		case map[string]any:
			return writeAggregates(w, opts.Aggregator, data)
		default:
			return fmt.Errorf("unexpected data %T", content.Data)
		}
	})
}

// readQuery returns the query argument as raw JSON. An argument starting
// with "@" names a file.
func readQuery(fs afero.Fs, arg string) (any, error) {
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = afero.ReadFile(fs, path); err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("not valid JSON")
	}
	return json.RawMessage(data), nil
}

// parseDataIDs parses "day_obs:seq_num" pairs, e.g. "20230519:12".
func parseDataIDs(args []string) ([]database.DataID, error) {
	if len(args) == 0 {
		return nil, nil
	}
	ids := make([]database.DataID, 0, len(args))
	for _, arg := range args {
		day, seq, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid data id %q: expected day_obs:seq_num", arg)
		}
		dayObs, err := strconv.ParseInt(strings.TrimSpace(day), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid data id %q: %w", arg, err)
		}
		seqNum, err := strconv.ParseInt(strings.TrimSpace(seq), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid data id %q: %w", arg, err)
		}
		id := database.DataID{DayObs: dayObs, SeqNum: seqNum}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeAggregates(w io.Writer, aggregator string, data map[string]any) error {
	columns := make([]string, 0, len(data))
	for c := range data {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "column\t%s\n", aggregator)
	for _, c := range columns {
		fmt.Fprintf(tw, "%s\t%s\n", c, formatValue(data[c]))
	}
	return tw.Flush()
}
