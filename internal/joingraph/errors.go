package joingraph

import (
	"errors"
	"fmt"
	"strings"
)

// JoinPathError reports tables that cannot be joined: there is no path
// between them, a table is not in the graph, or a join condition names a
// column the table does not have.
type JoinPathError struct {
	From    string
	To      string
	Columns []string
	Reason  string
}

func (e *JoinPathError) Error() string {
	var b strings.Builder
	b.WriteString("join path error")
	if e.From != "" || e.To != "" {
		fmt.Fprintf(&b, " from %q to %q", e.From, e.To)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Columns) > 0 {
		fmt.Fprintf(&b, " (columns: %s)", strings.Join(e.Columns, ", "))
	}
	return b.String()
}

// IsJoinPath reports whether err is, or wraps, a *JoinPathError.
func IsJoinPath(err error) bool {
	var je *JoinPathError
	return errors.As(err, &je)
}
