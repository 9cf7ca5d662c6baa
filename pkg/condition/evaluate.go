package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Evaluate evaluates an expression tree against the runtime context. It
// never panics or returns an error; every failure mode resolves to false.
func Evaluate(e *Expr, ctx *RuntimeContext) bool {
	if e == nil {
		return false
	}
	if e.IsGroup() {
		return evaluateGroup(e, ctx, 1)
	}
	return evaluateSingle(e, ctx)
}

// evaluateGroup applies AND/OR logic with short-circuiting. An empty
// condition list is vacuously true for both logics.
func evaluateGroup(e *Expr, ctx *RuntimeContext, depth int) bool {
	if depth > MaxDepth {
		return false
	}
	if len(e.Conditions) == 0 {
		return true
	}

	switch e.Logic {
	case LogicAnd:
		for i := range e.Conditions {
			if !evaluateNode(&e.Conditions[i], ctx, depth) {
				return false
			}
		}
		return true
	case LogicOr:
		for i := range e.Conditions {
			if evaluateNode(&e.Conditions[i], ctx, depth) {
				return true
			}
		}
		return false
	}
	return false
}

func evaluateNode(e *Expr, ctx *RuntimeContext, depth int) bool {
	if e.IsGroup() {
		return evaluateGroup(e, ctx, depth+1)
	}
	return evaluateSingle(e, ctx)
}

// evaluateSingle resolves the condition key and applies its operator.
func evaluateSingle(e *Expr, ctx *RuntimeContext) bool {
	resolved := GetValueByKey(e.Key, ctx)

	switch e.Operator {
	case OpExists:
		return !IsUndefined(resolved)
	case OpNotExists:
		return IsUndefined(resolved)
	}

	// All remaining operators need a resolved value.
	if IsUndefined(resolved) {
		return false
	}

	switch e.Operator {
	case OpEquals:
		return equalValues(resolved, e.Value)
	case OpNotEquals:
		return !equalValues(resolved, e.Value)
	case OpContains:
		return containsValue(resolved, e.Value)
	case OpNotContains:
		return !containsValue(resolved, e.Value)
	case OpStartsWith:
		s, ok1 := asString(resolved)
		prefix, ok2 := asString(e.Value)
		return ok1 && ok2 && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, ok1 := asString(resolved)
		suffix, ok2 := asString(e.Value)
		return ok1 && ok2 && strings.HasSuffix(s, suffix)
	case OpMatches:
		s, ok1 := asString(resolved)
		pattern, ok2 := asString(e.Value)
		if !ok1 || !ok2 {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case OpGreaterThan:
		a, b, ok := bothNumbers(resolved, e.Value)
		return ok && a > b
	case OpLessThan:
		a, b, ok := bothNumbers(resolved, e.Value)
		return ok && a < b
	case OpGreaterOrEqual:
		a, b, ok := bothNumbers(resolved, e.Value)
		return ok && a >= b
	case OpLessOrEqual:
		a, b, ok := bothNumbers(resolved, e.Value)
		return ok && a <= b
	case OpIn:
		return inSet(resolved, e.Value)
	case OpNotIn:
		return !inSet(resolved, e.Value)
	case OpIsTrue:
		b, ok := resolved.(bool)
		return ok && b
	case OpIsFalse:
		b, ok := resolved.(bool)
		return ok && !b
	}
	return false
}

// equalValues compares two values. Numbers compare numerically regardless of
// concrete type, booleans strictly, everything else by string form.
func equalValues(a, b any) bool {
	if IsUndefined(a) || IsUndefined(b) {
		return false
	}
	if fa, ok1 := asNumber(a); ok1 {
		if fb, ok2 := asNumber(b); ok2 {
			return fa == fb
		}
	}
	if ba, ok1 := a.(bool); ok1 {
		bb, ok2 := b.(bool)
		return ok2 && ba == bb
	}
	sa, ok1 := asString(a)
	sb, ok2 := asString(b)
	return ok1 && ok2 && sa == sb
}

// containsValue implements substring matching for strings and element
// membership when the resolved value is an array.
func containsValue(resolved, operand any) bool {
	if arr, ok := resolved.([]any); ok {
		for _, item := range arr {
			if equalValues(item, operand) {
				return true
			}
		}
		return false
	}
	s, ok1 := asString(resolved)
	sub, ok2 := asString(operand)
	return ok1 && ok2 && strings.Contains(s, sub)
}

// inSet reports whether resolved is a member of the operand set.
func inSet(resolved, operand any) bool {
	arr, ok := operand.([]any)
	if !ok {
		return false
	}
	for _, item := range arr {
		if equalValues(resolved, item) {
			return true
		}
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func bothNumbers(a, b any) (float64, float64, bool) {
	fa, ok1 := asNumber(a)
	fb, ok2 := asNumber(b)
	return fa, fb, ok1 && ok2
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}
