package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator compares a field value against an expected value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// EdgeCondition gates traversal of an edge: the edge is taken only when
// the named field of the source node's output satisfies the comparison.
type EdgeCondition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Evaluate applies the condition to a node output. A missing field
// evaluates against nil.
func (c *EdgeCondition) Evaluate(output map[string]any) bool {
	var actual any
	if output != nil {
		actual = output[c.Field]
	}
	return Compare(c.Operator, actual, c.Value)
}

// Compare applies an operator to two values. Equality and containment
// compare the string forms; ordering coerces both sides to float64 and
// yields false when either coercion fails. Unknown operators yield false.
func Compare(op Operator, actual, expected any) bool {
	switch op {
	case OpEquals:
		return coerceString(actual) == coerceString(expected)
	case OpNotEquals:
		return coerceString(actual) != coerceString(expected)
	case OpContains:
		return strings.Contains(coerceString(actual), coerceString(expected))
	case OpGreaterThan:
		a, aok := coerceFloat(actual)
		b, bok := coerceFloat(expected)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := coerceFloat(actual)
		b, bok := coerceFloat(expected)
		return aok && bok && a < b
	}
	return false
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
