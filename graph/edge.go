// Package graph provides the resumable workflow engine used by queryflow.
package graph

// End is the terminal routing marker. Routing to End finishes the run.
const End = "__end__"

// Edge represents a connection between two nodes in the workflow graph.
//
// Edges define the control flow between nodes. They can be:
//   - Unconditional: Always traverse (When = nil).
//   - Conditional: Only traverse if predicate returns true (When != nil).
//
// A node may instead carry a Router (see Engine.Branch), which names the next
// node directly. Routers take precedence over edges.
type Edge[S any] struct {
	// From is the source node ID.
	From string

	// To is the destination node ID, or End.
	To string

	// When is an optional predicate that determines if this edge should be traversed.
	// If nil, the edge is unconditional.
	When Predicate[S]
}

// Predicate is a function that evaluates state to determine if an edge should be traversed.
//
// Predicates must be pure: they are evaluated on the post-merge state and may be
// re-evaluated after a restart.
type Predicate[S any] func(state S) bool

// Router picks the next node from the post-merge state.
//
// It returns a registered node ID or End. Returning an empty string means
// "no route" and fails the run with NO_ROUTE.
type Router[S any] func(state S) string
