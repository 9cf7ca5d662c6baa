// Package condition evaluates boolean expression trees against a flow
// runtime context.
//
// An expression is either a single condition (a key, an operator and an
// optional comparison value) or a group of expressions joined with AND/OR
// logic. Groups nest arbitrarily up to MaxDepth.
//
// The evaluator is pure and never returns an error: malformed regular
// expressions, type mismatches and missing keys all evaluate to false so a
// single bad condition degrades one branch instead of aborting the whole
// flow evaluation.
//
// Keys are dot paths into the runtime context, e.g. "user.email",
// "risk.score" or "prevNode.success". A missing key resolves to the
// Undefined sentinel, which is distinct from false, 0 and "".
package condition
