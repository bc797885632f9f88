package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/surveydb/internal/joingraph"
	"github.com/roach88/surveydb/internal/queryir"
	"github.com/roach88/surveydb/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Joins []string
	Query string
}

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Code     string `json:"code"`
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Schema string            `json:"schema,omitempty"`
	Tables int               `json:"tables"`
	Joins  int               `json:"joins"`
	Groups [][]string        `json:"groups,omitempty"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

func (r *ValidationResult) addError(code, format string, args ...any) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Code: code, Severity: "error", Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(code, format string, args ...any) {
	r.Issues = append(r.Issues, ValidationIssue{Code: code, Severity: "warning", Message: fmt.Sprintf(format, args...)})
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a schema document without a database",
		Long: `Validate a schema document, and optionally joins files and a query tree,
without connecting to a database.

Reports document errors, tables that cannot be joined with the rest of the
schema, query references to unknown columns, and query trees whose tables
have no join path.

Example:
  surveydb validate ./schemas/latiss.yaml
  surveydb validate ./schemas/latiss.yaml --joins ./schemas/joins.yaml
  surveydb validate ./schemas/latiss.yaml --query @widget.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Joins, "joins", nil, "additional joins file (repeatable)")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query tree to check against the schema, as JSON or @file")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true}

	var joins []schema.JoinTemplate
	for _, file := range opts.Joins {
		formatter.VerboseLog("Loading joins: %s", file)
		extra, err := schema.LoadJoins(opts.Fs, file)
		if err != nil {
			result.addError(ErrCodeDocument, "%v", err)
			continue
		}
		joins = append(joins, extra...)
	}

	formatter.VerboseLog("Loading schema: %s", path)
	s, err := schema.Load(opts.Fs, path, joins, nil)
	if err != nil {
		result.addError(ErrCodeDocument, "%v", err)
		return outputValidation(formatter, result)
	}
	result.Schema = s.Name
	result.Tables = len(s.Tables)
	result.Joins = len(s.Joins)

	graph := joingraph.New(s.Joins, nil)
	result.Groups = graph.Components(s.TableNames())
	for _, g := range result.Groups[min(1, len(result.Groups)):] {
		result.addWarning(ErrCodeJoinPath, "tables %s cannot be joined with %s",
			strings.Join(g, ", "), strings.Join(result.Groups[0], ", "))
	}

	if opts.Query != "" {
		validateQuery(opts, s, graph, &result, formatter)
	}

	return outputValidation(formatter, result)
}

// validateQuery checks a query tree's shape, its column references and the
// join path between its tables.
func validateQuery(opts *ValidateOptions, s *schema.Schema, graph *joingraph.Graph, result *ValidationResult, formatter *OutputFormatter) {
	raw, err := readQuery(opts.Fs, opts.Query)
	if err != nil {
		result.addError(ErrCodeQuery, "invalid --query: %v", err)
		return
	}
	node, err := queryir.Decode(raw.(json.RawMessage))
	if err != nil {
		result.addError(ErrCodeQuery, "%v", err)
		return
	}

	shape := queryir.Validate(node)
	formatter.VerboseLog("Query references %d column(s): %s", len(shape.Columns), strings.Join(shape.Columns, ", "))
	for _, w := range shape.Warnings {
		result.addWarning(ErrCodeQuery, "%s", w)
	}

	_, tables, err := queryir.Evaluate(node, s)
	if err != nil {
		code, _ := classify(err)
		result.addError(code, "%v", err)
		return
	}

	names := make([]string, 0, len(tables))
	for t := range tables {
		names = append(names, t)
	}
	sort.Strings(names)
	plan, err := graph.Resolve(names)
	if err == nil {
		err = plan.Check(s)
	}
	if err != nil {
		result.addError(ErrCodeJoinPath, "%v", err)
	}
}

// outputValidation outputs the validation result.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}

		first := firstError(result.Issues)
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", countErrors(result.Issues)))
	}

	// Text format
	if result.Valid {
		fmt.Fprintf(formatter.Writer, "✓ Schema %s valid: %d table(s), %d join(s)\n", result.Schema, result.Tables, result.Joins)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	}
	for _, issue := range result.Issues {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", issue.Severity, issue.Code, issue.Message)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", countErrors(result.Issues)))
	}
	return nil
}

func firstError(issues []ValidationIssue) ValidationIssue {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return issue
		}
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: "validation failed"}
}

func countErrors(issues []ValidationIssue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == "error" {
			n++
		}
	}
	return n
}
