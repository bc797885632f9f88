package schema

import (
	"errors"
	"fmt"
)

// InvalidReferenceError reports a malformed "table.column" string, or one
// that names a table or column the schema does not contain.
type InvalidReferenceError struct {
	Reference string
	Reason    string

	// Err is set when the reference failed because of a deeper error,
	// usually an *UnrecognizedTableError.
	Err error
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid column reference %q: %s", e.Reference, e.Reason)
}

func (e *InvalidReferenceError) Unwrap() error {
	return e.Err
}

// UnrecognizedTableError reports a table name that is not in the schema.
type UnrecognizedTableError struct {
	Table  string
	Schema string
}

func (e *UnrecognizedTableError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("could not find the table %q in database %q", e.Table, e.Schema)
	}
	return fmt.Sprintf("could not find the table %q in database", e.Table)
}

// DocumentError reports a schema or joins document that failed to decode or
// did not satisfy the document definition.
type DocumentError struct {
	Path    string
	Message string
}

func (e *DocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// IsInvalidReference reports whether err is, or wraps, an *InvalidReferenceError.
func IsInvalidReference(err error) bool {
	var re *InvalidReferenceError
	return errors.As(err, &re)
}

// IsUnrecognizedTable reports whether err is, or wraps, an *UnrecognizedTableError.
func IsUnrecognizedTable(err error) bool {
	var te *UnrecognizedTableError
	return errors.As(err, &te)
}
