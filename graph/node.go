package graph

import "context"

// Node represents a processing unit in the workflow graph.
//
// A node reads the current state S and returns a partial update U. Nodes never
// mutate S directly: the Engine merges the update through its Reducer and
// persists the result before any routing decision is made.
//
// Type parameters:
//   - S is the state type threaded through the workflow
//   - U is the partial update type produced by nodes
type Node[S, U any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[U]
}

// NodeResult represents the output of a node execution.
type NodeResult[U any] struct {
	// Update is the partial state update produced by this node.
	// It is merged into the current state using the configured reducer.
	Update U

	// Err reports a node-level fault. The Engine hands it to the fault
	// handler, which turns it into an update; it never aborts the run
	// when a fault handler is configured.
	Err error
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	validate := NodeFunc[State, Update](func(ctx context.Context, s State) NodeResult[Update] {
//	    return NodeResult[Update]{Update: Update{Checked: true}}
//	})
type NodeFunc[S, U any] func(ctx context.Context, state S) NodeResult[U]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S, U]) Run(ctx context.Context, state S) NodeResult[U] {
	return f(ctx, state)
}

// NodeError represents a fault raised while executing a node.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
