package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseQualified splits a "table.column" reference into its two parts.
//
// The reference is NFC-normalised first so that visually identical names
// coming from the browser and from the schema file compare equal. Anything
// other than exactly two non-empty parts is an *InvalidReferenceError.
func ParseQualified(reference string) (table, column string, err error) {
	normalized := norm.NFC.String(reference)

	parts := strings.Split(normalized, ".")
	switch {
	case len(parts) < 2:
		return "", "", &InvalidReferenceError{Reference: reference, Reason: "expected the form table.column"}
	case len(parts) > 2:
		return "", "", &InvalidReferenceError{Reference: reference, Reason: "too many '.' separators"}
	case parts[0] == "":
		return "", "", &InvalidReferenceError{Reference: reference, Reason: "empty table name"}
	case parts[1] == "":
		return "", "", &InvalidReferenceError{Reference: reference, Reason: "empty column name"}
	}

	return parts[0], parts[1], nil
}

// Qualify joins a table and column name into a "table.column" reference.
func Qualify(table, column string) string {
	return table + "." + column
}
