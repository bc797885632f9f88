package command

import (
	"errors"
	"fmt"
)

// ParseError reports a request that could not be turned into a command
// invocation.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return e.Reason
}

// Description is the text sent to the client.
func (e *ParseError) Description() string {
	return fmt.Sprintf("'%s' error while parsing command", e.Reason)
}

// ExecutionError reports a command that failed while running.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Description is the text sent to the client.
func (e *ExecutionError) Description() string {
	return fmt.Sprintf("'%v' error while executing command '%s'", e.Err, e.Command)
}

// UnknownDatabaseError reports a database name that is not configured.
type UnknownDatabaseError struct {
	Database string
}

func (e *UnknownDatabaseError) Error() string {
	return fmt.Sprintf("unknown database %q", e.Database)
}

// IsParseError reports whether err is, or wraps, a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsExecutionError reports whether err is, or wraps, an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
