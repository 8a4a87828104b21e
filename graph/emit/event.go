package emit

// Event names emitted by the workflow engine.
const (
	RunStart  = "run_start"
	NodeEnd   = "node_end"
	NodeFault = "node_fault"
	Suspended = "suspended"
	Resumed   = "resumed"
	RunEnd    = "run_end"
	RunError  = "run_error"
)

// Event represents an observability event emitted during workflow execution.
type Event struct {
	// ThreadID identifies the conversation thread that emitted this event.
	ThreadID string `json:"thread_id"`

	// Step is the thread-lifetime step number of the node, or the step the
	// run started/stopped at for run-level events.
	Step int `json:"step"`

	// NodeID identifies which node emitted this event.
	// Empty for run-level events.
	NodeID string `json:"node_id,omitempty"`

	// Msg is the event name, one of the constants above.
	Msg string `json:"msg"`

	// Meta contains additional structured data. Common keys:
	//   - "duration_ms": node execution time
	//   - "error": fault or failure text
	//   - "next": the node routed to
	//   - "status": checkpoint status at run end
	Meta map[string]any `json:"meta,omitempty"`
}
