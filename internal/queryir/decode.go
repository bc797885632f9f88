package queryir

import (
	"bytes"
	"encoding/json"
	"math"
)

// Wire type tags.
const (
	TypeEquality = "EqualityQuery"
	TypeParent   = "ParentQuery"
)

// Decode parses a query tree from its JSON wire form.
func Decode(raw []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &QueryError{Reason: "malformed JSON: " + err.Error()}
	}
	return FromValue(v)
}

// FromValue builds a query tree from an already-decoded JSON value, such as
// the "query" parameter of a command.
func FromValue(v any) (Node, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, queryErrorf(v, "query node must be an object")
	}
	return FromMap(m)
}

// FromMap builds a query tree from a decoded JSON object. The whole tree is
// validated structurally before it is returned.
func FromMap(m map[string]any) (Node, error) {
	if tag, ok := m["type"]; ok {
		switch tag {
		case TypeEquality:
			return decodeEquality(m)
		case TypeParent:
			return decodeParent(m, "operator", "children")
		default:
			return nil, queryErrorf(m, "unknown query type %v", tag)
		}
	}

	if name, ok := m["name"]; ok {
		content, ok := m["content"].(map[string]any)
		if !ok {
			return nil, queryErrorf(m, "missing or malformed content")
		}
		switch name {
		case TypeEquality:
			return decodeLegacyEquality(content)
		case TypeParent:
			return decodeParent(content, "operator", "children")
		default:
			return nil, queryErrorf(m, "unknown query type %v", name)
		}
	}

	return nil, queryErrorf(m, "query node has no type")
}

func decodeEquality(m map[string]any) (Node, error) {
	field, ok := m["field"].(map[string]any)
	if !ok {
		return nil, queryErrorf(m, "missing or malformed field")
	}
	table, ok := field["schema"].(string)
	if !ok {
		return nil, queryErrorf(m, "field.schema must be a string")
	}
	name, ok := field["name"].(string)
	if !ok {
		return nil, queryErrorf(m, "field.name must be a string")
	}
	column := table + "." + name

	left, err := decodeSide(m, column, "leftOperator", "leftValue", true)
	if err != nil {
		return nil, err
	}
	right, err := decodeSide(m, column, "rightOperator", "rightValue", false)
	if err != nil {
		return nil, err
	}

	switch {
	case left != nil && right != nil:
		return &Combinator{Operator: And, Children: []Node{left, right}}, nil
	case left != nil:
		return left, nil
	case right != nil:
		return right, nil
	default:
		return nil, queryErrorf(m, "equality query has neither a left nor a right comparison")
	}
}

// decodeSide reads one operator/value pair. It returns nil when the operator
// key is absent.
func decodeSide(m map[string]any, column, opKey, valueKey string, left bool) (*Comparison, error) {
	rawOp, hasOp := m[opKey]
	rawValue, hasValue := m[valueKey]
	if !hasOp && !hasValue {
		return nil, nil
	}
	if !hasOp || !hasValue {
		return nil, queryErrorf(m, "%s and %s must be given together", opKey, valueKey)
	}

	name, ok := rawOp.(string)
	if !ok {
		return nil, queryErrorf(m, "%s must be a string", opKey)
	}
	op, ok := ParseOperator(name)
	if !ok {
		return nil, queryErrorf(m, "unrecognized operator %q", name)
	}
	if left {
		op = op.flip()
	}

	value, err := literal(m, rawValue)
	if err != nil {
		return nil, err
	}
	return &Comparison{Column: column, Operator: op, Value: value}, nil
}

func decodeLegacyEquality(content map[string]any) (Node, error) {
	column, ok := content["column"].(string)
	if !ok {
		return nil, queryErrorf(content, "column must be a string")
	}
	name, ok := content["operator"].(string)
	if !ok {
		return nil, queryErrorf(content, "operator must be a string")
	}
	op, ok := ParseOperator(name)
	if !ok {
		return nil, queryErrorf(content, "unrecognized operator %q", name)
	}
	rawValue, ok := content["value"]
	if !ok {
		return nil, queryErrorf(content, "missing value")
	}
	value, err := literal(content, rawValue)
	if err != nil {
		return nil, err
	}
	return &Comparison{Column: column, Operator: op, Value: value}, nil
}

func decodeParent(m map[string]any, opKey, childrenKey string) (Node, error) {
	name, ok := m[opKey].(string)
	if !ok {
		return nil, queryErrorf(m, "%s must be a string", opKey)
	}
	op, ok := ParseBoolOp(name)
	if !ok {
		return nil, queryErrorf(m, "unrecognized combinator %q", name)
	}

	rawChildren, ok := m[childrenKey].([]any)
	if !ok {
		return nil, queryErrorf(m, "%s must be a list", childrenKey)
	}
	if len(rawChildren) == 0 {
		return nil, queryErrorf(m, "%s combinator has no children", op)
	}

	children := make([]Node, len(rawChildren))
	for i, rc := range rawChildren {
		child, err := FromValue(rc)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &Combinator{Operator: op, Children: children}, nil
}

// literal normalises a decoded JSON scalar. Integral numbers become int64,
// other numbers float64.
func literal(fragment map[string]any, v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, queryErrorf(fragment, "invalid number %s", x)
		}
		return f, nil
	default:
		return nil, queryErrorf(fragment, "value must be a string, number, boolean or null")
	}
}
