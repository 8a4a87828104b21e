package analyst

import (
	"errors"
	"fmt"
	"strings"
)

// DecisionKind is the reviewer's verdict on a pending query.
type DecisionKind string

// Decision kinds accepted at the approval gate.
const (
	DecisionAccept DecisionKind = "accept"
	DecisionReject DecisionKind = "reject"
	DecisionEdit   DecisionKind = "edit"
)

// Decision resumes a thread parked at the approval gate.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	// Query replaces the candidate when Kind is DecisionEdit.
	Query string `json:"query,omitempty"`
	// Reason is the reviewer's feedback when Kind is DecisionReject.
	Reason string `json:"reason,omitempty"`
	// Visualize asks for a chart after the analysis.
	Visualize bool `json:"visualize,omitempty"`
}

// Accept runs the candidate as is.
func Accept(visualize bool) Decision {
	return Decision{Kind: DecisionAccept, Visualize: visualize}
}

// Reject sends the candidate back for regeneration with feedback.
func Reject(reason string) Decision {
	return Decision{Kind: DecisionReject, Reason: reason}
}

// Edit runs query instead of the candidate.
func Edit(query string, visualize bool) Decision {
	return Decision{Kind: DecisionEdit, Query: query, Visualize: visualize}
}

// Validate reports whether the decision is well formed.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionAccept, DecisionReject:
		return nil
	case DecisionEdit:
		if strings.TrimSpace(d.Query) == "" {
			return errors.New("edit decision needs a query")
		}
		return nil
	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
}
