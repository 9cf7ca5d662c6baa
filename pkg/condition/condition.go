package condition

import "encoding/json"

// Operator identifies a comparison applied to a resolved context value.
type Operator string

const (
	// String operators
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpMatches     Operator = "matches"

	// Number operators
	OpGreaterThan    Operator = "greaterThan"
	OpLessThan       Operator = "lessThan"
	OpGreaterOrEqual Operator = "greaterOrEqual"
	OpLessOrEqual    Operator = "lessOrEqual"

	// Membership operators
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"

	// Existence operators
	OpExists    Operator = "exists"
	OpNotExists Operator = "notExists"

	// Boolean operators
	OpIsTrue  Operator = "isTrue"
	OpIsFalse Operator = "isFalse"
)

// Logic joins the expressions of a group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// MaxDepth bounds group nesting. Deeper trees evaluate to false at runtime
// and are rejected by the flow compiler.
const MaxDepth = 32

// Expr is a node of a condition tree. A node with Logic set is a group and
// its Conditions are evaluated recursively; otherwise it is a single
// condition comparing the value at Key against Value using Operator.
type Expr struct {
	// Single condition fields
	Key      string   `json:"key,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	// Group fields
	Logic      Logic  `json:"logic,omitempty"`
	Conditions []Expr `json:"conditions,omitempty"`
}

// IsGroup reports whether the expression is a condition group.
func (e *Expr) IsGroup() bool {
	return e.Logic != ""
}

// Depth returns the maximum nesting depth of the expression tree. A single
// condition has depth 1.
func (e *Expr) Depth() int {
	if !e.IsGroup() {
		return 1
	}
	max := 0
	for i := range e.Conditions {
		if d := e.Conditions[i].Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// FromAny converts a decoded JSON value (as produced by unmarshalling a
// node config blob) into an expression tree.
func FromAny(raw any) (*Expr, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	expr := &Expr{}
	if err := json.Unmarshal(data, expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// Group builds an expression group.
func Group(logic Logic, conditions ...Expr) Expr {
	return Expr{Logic: logic, Conditions: conditions}
}

// Cond builds a single condition.
func Cond(key string, op Operator, value any) Expr {
	return Expr{Key: key, Operator: op, Value: value}
}
