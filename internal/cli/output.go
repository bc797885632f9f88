package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/roach88/surveydb/internal/command"
	"github.com/roach88/surveydb/internal/database"
	"github.com/roach88/surveydb/internal/joingraph"
	"github.com/roach88/surveydb/internal/queryir"
	"github.com/roach88/surveydb/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or validation failure (bad reference, no join path, invalid document)
	ExitCommandError = 2 // Command error (missing config, database unreachable, etc.)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Configuration could not be loaded
	ErrCodeConnect      = "E003" // Database could not be opened or reconciled
	ErrCodeReference    = "E004" // Unknown table or column
	ErrCodeQuery        = "E005" // Invalid query tree or parameters
	ErrCodeJoinPath     = "E006" // Tables cannot be joined
	ErrCodeStorage      = "E007" // Database rejected a statement
	ErrCodeDocument     = "E008" // Invalid schema or joins document
	ErrCodeUnknownDB    = "E009" // Database not configured
	ErrCodeEmptyColumn  = "E010" // Aggregate had no value
	ErrCodeBrokerFailed = "E011" // Worker lost its broker connection

	ErrCodeScenarioFailed = "E_TEST_FAILED" // One or more scenarios failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a query-path error to its error code and exit code.
func classify(err error) (string, int) {
	var unknownDB *command.UnknownDatabaseError
	switch {
	case errors.As(err, &unknownDB):
		return ErrCodeUnknownDB, ExitCommandError
	case schema.IsInvalidReference(err), schema.IsUnrecognizedTable(err):
		return ErrCodeReference, ExitFailure
	case joingraph.IsJoinPath(err):
		return ErrCodeJoinPath, ExitFailure
	case queryir.IsQueryError(err), command.IsParseError(err):
		return ErrCodeQuery, ExitFailure
	case database.IsEmptyAggregate(err):
		return ErrCodeEmptyColumn, ExitFailure
	case database.IsStorageError(err):
		return ErrCodeStorage, ExitCommandError
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// environmentErrorCode picks the error code for a failure to set up the
// databases.
func environmentErrorCode(err error) string {
	var de *schema.DocumentError
	var ce *connectError
	switch {
	case errors.As(err, &de):
		return ErrCodeDocument
	case errors.As(err, &ce):
		return ErrCodeConnect
	default:
		return ErrCodeConfig
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Type   string    `json:"type,omitempty"`  // command response type
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Response outputs a command response. Text output is rendered by text.
func (f *OutputFormatter) Response(resp command.Response, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Type:   resp.Type,
			Data:   resp.Content,
		})
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exit, message, err)
}

// FailEnvironment reports a setup failure returned by openEnvironment.
func (f *OutputFormatter) FailEnvironment(err error) error {
	_ = f.Error(environmentErrorCode(err), err.Error(), nil)
	return err
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// writeTable renders column-oriented data as aligned text rows.
func writeTable(w io.Writer, columns []string, data map[string][]any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, c := range columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)

	rows := 0
	if len(columns) > 0 {
		rows = len(data[columns[0]])
	}
	for r := 0; r < rows; r++ {
		for i, c := range columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, formatValue(data[c][r]))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", rows)
	return err
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
