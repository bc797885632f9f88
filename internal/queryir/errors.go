package queryir

import (
	"encoding/json"
	"errors"
	"fmt"
)

// QueryError reports a malformed or semantically invalid query tree.
// Fragment is the offending part of the wire payload or tree, when known.
type QueryError struct {
	Reason   string
	Fragment any
}

func (e *QueryError) Error() string {
	if e.Fragment == nil {
		return "invalid query: " + e.Reason
	}
	frag, err := json.Marshal(e.Fragment)
	if err != nil {
		return fmt.Sprintf("invalid query: %s in %v", e.Reason, e.Fragment)
	}
	return fmt.Sprintf("invalid query: %s in %s", e.Reason, frag)
}

func queryErrorf(fragment any, format string, args ...any) *QueryError {
	return &QueryError{Reason: fmt.Sprintf(format, args...), Fragment: fragment}
}

// IsQueryError reports whether err is, or wraps, a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
