// Package emit carries workflow observability events to logs, traces and
// in-memory buffers.
package emit

// Emitter receives observability events from workflow execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down workflow execution
//   - Thread-safe: distinct threads run concurrently
//   - Resilient: never panic, never fail the workflow
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// Func adapts a plain function to the Emitter interface.
type Func func(event Event)

// Emit implements Emitter.
func (f Func) Emit(event Event) {
	f(event)
}

// Multi fans each event out to every non-nil emitter, in order.
func Multi(emitters ...Emitter) Emitter {
	targets := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			targets = append(targets, e)
		}
	}
	return multi(targets)
}

type multi []Emitter

func (m multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
