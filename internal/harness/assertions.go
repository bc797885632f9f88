package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AssertionError is returned when a reply does not match its expect clause.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Step     int
	Command  string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %d (%s): ", e.Step, e.Command)
	fmt.Fprintf(&buf, "expected %s, got %s", e.Expected, e.Actual)
	return buf.String()
}

// checkExpect compares a reply with the step's expect clause.
func checkExpect(n int, step Step, r reply) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Step: n, Command: step.Command, Expected: expected, Actual: actual}
	}

	expect := step.Expect
	if r.Type != expect.Type {
		actual := fmt.Sprintf("reply type %q", r.Type)
		if content, err := json.Marshal(r.Content); err == nil {
			actual += " with content " + string(content)
		}
		return fail(fmt.Sprintf("reply type %q", expect.Type), actual)
	}

	if len(expect.Content) > 0 {
		if m := matchValue("content", expect.Content, r.Content); m != nil {
			return fail(m.expected, m.actual)
		}
	}

	if expect.Rows != nil {
		rows, err := countRows(r.Content)
		if err != nil {
			return fail(fmt.Sprintf("%d row(s)", *expect.Rows), err.Error())
		}
		if rows != *expect.Rows {
			return fail(fmt.Sprintf("%d row(s)", *expect.Rows), fmt.Sprintf("%d row(s)", rows))
		}
	}

	return nil
}

// mismatch locates the first difference found by matchValue.
type mismatch struct {
	expected string
	actual   string
}

// matchValue checks that actual contains expected. Maps match as subsets,
// lists element by element, and numbers by value.
func matchValue(path string, expected, actual any) *mismatch {
	if e, ok := number(expected); ok {
		if a, ok := number(actual); ok && a == e {
			return nil
		}
		return &mismatch{
			expected: fmt.Sprintf("%s = %v", path, expected),
			actual:   fmt.Sprintf("%s = %v", path, actual),
		}
	}

	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return &mismatch{
				expected: fmt.Sprintf("%s to be an object", path),
				actual:   fmt.Sprintf("%T", actual),
			}
		}
		keys := make([]string, 0, len(e))
		for k := range e {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			av, exists := a[k]
			if !exists {
				return &mismatch{
					expected: fmt.Sprintf("%s.%s to exist", path, k),
					actual:   fmt.Sprintf("keys %v", sortedKeys(a)),
				}
			}
			if m := matchValue(path+"."+k, e[k], av); m != nil {
				return m
			}
		}
		return nil

	case []any:
		a, ok := actual.([]any)
		if !ok || len(a) != len(e) {
			return &mismatch{
				expected: fmt.Sprintf("%s = %v", path, expected),
				actual:   fmt.Sprintf("%s = %v", path, actual),
			}
		}
		for i := range e {
			if m := matchValue(fmt.Sprintf("%s[%d]", path, i), e[i], a[i]); m != nil {
				return m
			}
		}
		return nil
	}

	if !reflect.DeepEqual(expected, actual) {
		return &mismatch{
			expected: fmt.Sprintf("%s = %v", path, expected),
			actual:   fmt.Sprintf("%s = %v", path, actual),
		}
	}
	return nil
}

// number converts the numeric types produced by YAML and JSON decoding.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// countRows returns the number of rows of a "table columns" content.
func countRows(content any) (int, error) {
	m, ok := content.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("content is not an object")
	}
	columns, ok := m["columns"].([]any)
	if !ok || len(columns) == 0 {
		return 0, fmt.Errorf("content has no columns")
	}
	first, ok := columns[0].(string)
	if !ok {
		return 0, fmt.Errorf("column name is not a string")
	}
	data, ok := m["data"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("content has no column data")
	}
	values, ok := data[first].([]any)
	if !ok {
		return 0, fmt.Errorf("column %s has no values", first)
	}
	return len(values), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
