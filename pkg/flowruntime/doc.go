// Package flowruntime executes compiled authentication flow plans.
//
// The executor is a state machine over a single flow session: states are
// node IDs of the compiled plan, the initial state is the plan's entry node
// and any end or error node is terminal. Execution advances until a
// terminal node is reached or an interactive node pauses the flow to wait
// for user input; the session is persisted between HTTP round-trips and
// resumed when the client submits input.
//
// Side effects (credential checks, token issuance, webhooks) are delegated
// to collaborator interfaces injected through ServiceDependencies; the
// executor itself only walks the plan's transition tables.
//
// Each session is pinned to the plan version it started on. Editing a flow
// invalidates its plan, and a session that outlives the plan it was bound
// to is rejected with ErrPlanInvalidated instead of continuing on stale
// logic.
package flowruntime
