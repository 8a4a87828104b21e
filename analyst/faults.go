package analyst

import (
	"context"
	"errors"
)

// FaultKind classifies the error a turn is carrying.
type FaultKind string

// Fault kinds. All but VisualizationFault feed the retry loop.
const (
	PolicyViolation    FaultKind = "policy_violation"
	ExecutionFault     FaultKind = "execution_fault"
	GenerationFault    FaultKind = "generation_fault"
	UserRejection      FaultKind = "user_rejection"
	VisualizationFault FaultKind = "visualization_fault"
	// NodeFault marks a node that failed unexpectedly (a panic or timeout).
	NodeFault FaultKind = "node_fault"
)

// Retryable reports whether the retry loop may regenerate after this fault.
func (k FaultKind) Retryable() bool {
	return k != VisualizationFault
}

// handleFault converts an unexpected node failure into the turn's error.
// A timed out call keeps the kind of the node it happened in; anything else
// is a NodeFault. A failed generation still counts as an attempt and drops
// the previous candidate.
func handleFault(nodeID string, err error) Update {
	kind := NodeFault
	if errors.Is(err, context.DeadlineExceeded) || nodeID == NodeVisualize {
		kind = kindForNode(nodeID)
	}

	if nodeID == NodeVisualize {
		return chartFailed(err.Error())
	}
	u := withError(kind, err.Error())
	if nodeID == NodeGenerateQuery {
		u.IncrementAttempts = true
		u.CandidateQuery = ref("")
	}
	return u
}

func kindForNode(nodeID string) FaultKind {
	switch nodeID {
	case NodeGenerateQuery, NodeSummarize:
		return GenerationFault
	case NodeExecute:
		return ExecutionFault
	case NodeVisualize:
		return VisualizationFault
	default:
		return NodeFault
	}
}
