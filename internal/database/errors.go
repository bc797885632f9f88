package database

import (
	"errors"
	"fmt"
)

// ExecutionError reports a failure while running a statement against the
// database. Errors raised while building the statement (bad references,
// invalid query trees, missing join paths) are returned unwrapped instead.
type ExecutionError struct {
	// Code identifies the error category.
	Code ExecutionErrorCode

	// Message is a human-readable description.
	Message string

	// Statement is the SQL that failed, when there is one.
	Statement string

	Err error
}

// ExecutionErrorCode categorizes execution errors.
type ExecutionErrorCode string

const (
	// ErrCodeStorage indicates the database rejected or failed a statement.
	ErrCodeStorage ExecutionErrorCode = "STORAGE_FAILURE"

	// ErrCodeEmptyAggregate indicates an aggregate returned no value.
	ErrCodeEmptyAggregate ExecutionErrorCode = "EMPTY_AGGREGATE"

	// ErrCodeIntrospection indicates the live tables could not be listed.
	ErrCodeIntrospection ExecutionErrorCode = "INTROSPECTION_FAILED"
)

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if the error is a database failure.
// Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeStorage
	}
	return false
}

// IsEmptyAggregate returns true if an aggregate had no value to return.
func IsEmptyAggregate(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeEmptyAggregate
	}
	return false
}

func newStorageError(statement string, err error) *ExecutionError {
	return &ExecutionError{
		Code:      ErrCodeStorage,
		Message:   "query failed",
		Statement: statement,
		Err:       err,
	}
}
