package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/store"
)

// Reducer merges a partial update U into the current state S.
//
// Reducers must be pure: the same inputs always produce the same output.
// The engine calls the reducer for the caller's input, for every node
// update and for converted faults.
type Reducer[S, U any] func(current S, update U) S

// FaultHandler converts a node error (or recovered panic) into an update,
// so faults become state the graph can route on instead of aborting the run.
type FaultHandler[U any] func(nodeID string, err error) U

// Result describes where a thread stands after Run, Resume or State.
type Result[S any] struct {
	ThreadID string
	State    S
	Status   store.Status
	// Node is the last node applied, or the gate node when suspended.
	Node    string
	Step    int
	Version int64
}

// Suspended reports whether the thread is waiting for a human decision.
func (r Result[S]) Suspended() bool {
	return r.Status == store.StatusSuspended
}

// Engine orchestrates resumable workflow execution over a persistent thread.
//
// The engine:
//   - Runs nodes one at a time, merging each update through the reducer
//   - Persists a checkpoint after every node, before routing onward
//   - Routes through routers, predicate edges and unconditional edges
//   - Suspends at interrupt nodes and continues there on Resume
//   - Converts node faults into state through the fault handler
//   - Serializes callers on the same thread; distinct threads run in parallel
//
// Type parameters:
//   - S is the session state, persisted per thread
//   - U is the partial update produced by nodes and callers
type Engine[S, U any] struct {
	mu sync.RWMutex

	reducer    Reducer[S, U]
	nodes      map[string]Node[S, U]
	edges      []Edge[S]
	routers    map[string]Router[S]
	interrupts map[string]Predicate[S]
	onFault    FaultHandler[U]
	startNode  string

	store   store.Store[S]
	emitter emit.Emitter
	cfg     engineConfig

	locks threadLocks
}

// New creates an Engine.
//
// Parameters:
//   - reducer: merges updates into state (required)
//   - st: checkpoint persistence (required)
//   - emitter: observability receiver (nil discards events)
//   - opts: functional options (WithMaxSteps, WithNodeTimeout, WithMetrics)
//
// Example:
//
//	engine, err := graph.New(analyst.Merge, store.NewMemStore[analyst.SessionState](), emit.NewNullEmitter())
func New[S, U any](reducer Reducer[S, U], st store.Store[S], emitter emit.Emitter, opts ...Option) (*Engine[S, U], error) {
	if reducer == nil {
		return nil, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if st == nil {
		return nil, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &EngineError{Message: err.Error(), Code: "INVALID_OPTION", Cause: err}
		}
	}

	return &Engine[S, U]{
		reducer:    reducer,
		nodes:      make(map[string]Node[S, U]),
		routers:    make(map[string]Router[S]),
		interrupts: make(map[string]Predicate[S]),
		store:      st,
		emitter:    emitter,
		cfg:        cfg,
		locks:      threadLocks{held: make(map[string]*threadLock)},
	}, nil
}

// Add registers a node. Node IDs must be unique and must not be End.
func (e *Engine[S, U]) Add(nodeID string, node Node[S, U]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if nodeID == End {
		return &EngineError{Message: "node ID " + End + " is reserved", Code: "RESERVED_NODE"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// StartAt sets the entry node for Run. The node must already be registered.
func (e *Engine[S, U]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; !exists {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// Connect adds an edge. A nil predicate makes it unconditional. Edges leaving
// the same node are tried in the order they were added; the first whose
// predicate holds wins.
//
// Node existence is checked by Validate and lazily at run time, so the graph
// may be wired in any order.
func (e *Engine[S, U]) Connect(from, to string, predicate Predicate[S]) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to, When: predicate})
	return nil
}

// Branch attaches a router to a node. The router is evaluated on the
// post-merge state and takes precedence over the node's edges.
func (e *Engine[S, U]) Branch(from string, router Router[S]) error {
	if from == "" || router == nil {
		return &EngineError{Message: "branch needs a node ID and a router"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.routers[from] = router
	return nil
}

// Interrupt marks nodeID as a suspension point. After the node runs and its
// update is merged, the run suspends if pending holds on the new state. The
// checkpoint records the node, and Resume re-enters it with the caller's
// decision merged in.
func (e *Engine[S, U]) Interrupt(nodeID string, pending Predicate[S]) error {
	if nodeID == "" || pending == nil {
		return &EngineError{Message: "interrupt needs a node ID and a pending predicate"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.interrupts[nodeID] = pending
	return nil
}

// OnFault installs the handler that converts node faults into updates.
// Without one, a node fault aborts the run and is returned to the caller.
func (e *Engine[S, U]) OnFault(handler FaultHandler[U]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFault = handler
}

// Validate checks that the graph is fully wired: a start node is set and
// every edge, router and interrupt refers to registered nodes.
func (e *Engine[S, U]) Validate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startNode == "" {
		return &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	known := func(id string) bool {
		_, ok := e.nodes[id]
		return ok
	}
	for _, edge := range e.edges {
		if !known(edge.From) {
			return &EngineError{Message: "edge from unknown node: " + edge.From, Code: "NODE_NOT_FOUND"}
		}
		if edge.To != End && !known(edge.To) {
			return &EngineError{Message: "edge to unknown node: " + edge.To, Code: "NODE_NOT_FOUND"}
		}
	}
	for id := range e.routers {
		if !known(id) {
			return &EngineError{Message: "router on unknown node: " + id, Code: "NODE_NOT_FOUND"}
		}
	}
	for id := range e.interrupts {
		if !known(id) {
			return &EngineError{Message: "interrupt on unknown node: " + id, Code: "NODE_NOT_FOUND"}
		}
	}
	return nil
}

// Nodes returns the registered node IDs in sorted order.
func (e *Engine[S, U]) Nodes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run starts a new pass through the graph for threadID.
//
// The thread's checkpoint is loaded (a missing one starts from the zero
// state), input is merged, and nodes execute from the start node until the
// graph routes to End or an interrupt suspends it.
//
// Run fails with ErrThreadSuspended while the thread awaits a decision.
// Node faults never surface here when a fault handler is installed; errors
// returned are store failures, cancellation and graph misconfiguration. On
// error the thread keeps its last persisted checkpoint.
func (e *Engine[S, U]) Run(ctx context.Context, threadID string, input U) (Result[S], error) {
	if err := e.Validate(); err != nil {
		return Result[S]{}, err
	}
	unlock := e.locks.lock(threadID)
	defer unlock()

	cp, err := e.load(ctx, threadID)
	if err != nil {
		return Result[S]{}, err
	}
	if cp.Status == store.StatusSuspended {
		return Result[S]{}, ErrThreadSuspended
	}

	e.emit(threadID, cp.Step, "", emit.RunStart, nil)
	e.cfg.metrics.runStarted()
	defer e.cfg.metrics.runFinished()

	cp.State = e.reducer(cp.State, input)
	cp.Status = store.StatusRunning
	cp.Node = ""
	if cp, err = e.save(ctx, cp); err != nil {
		return e.fail(threadID, cp.Step, err)
	}

	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()
	return e.walk(ctx, cp, start)
}

// Resume continues a suspended thread with the caller's decision.
//
// The decision is merged into the stored state and the interrupt node runs
// again, now able to consume it. Resume fails with ErrNotSuspended unless
// the thread is parked at an interrupt.
func (e *Engine[S, U]) Resume(ctx context.Context, threadID string, decision U) (Result[S], error) {
	if err := e.Validate(); err != nil {
		return Result[S]{}, err
	}
	unlock := e.locks.lock(threadID)
	defer unlock()

	cp, err := e.load(ctx, threadID)
	if err != nil {
		return Result[S]{}, err
	}
	if cp.Status != store.StatusSuspended {
		return Result[S]{}, ErrNotSuspended
	}

	gate := cp.Node
	e.emit(threadID, cp.Step, gate, emit.Resumed, nil)
	e.cfg.metrics.runStarted()
	defer e.cfg.metrics.runFinished()

	cp.State = e.reducer(cp.State, decision)
	cp.Status = store.StatusRunning
	if cp, err = e.save(ctx, cp); err != nil {
		return e.fail(threadID, cp.Step, err)
	}
	return e.walk(ctx, cp, gate)
}

// State returns the latest checkpoint of threadID, or an error wrapping
// store.ErrNotFound.
func (e *Engine[S, U]) State(ctx context.Context, threadID string) (Result[S], error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return Result[S]{}, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	return resultOf(cp), nil
}

// Delete forgets a thread. It waits for any in-flight run on the thread.
func (e *Engine[S, U]) Delete(ctx context.Context, threadID string) error {
	unlock := e.locks.lock(threadID)
	defer unlock()
	if err := e.store.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Threads lists the stored threads, most recently updated first.
func (e *Engine[S, U]) Threads(ctx context.Context) ([]store.Info, error) {
	return e.store.List(ctx)
}

// walk executes nodes from current until End, a suspension, or a failure.
// cp is always the last successfully persisted checkpoint.
func (e *Engine[S, U]) walk(ctx context.Context, cp store.Checkpoint[S], current string) (Result[S], error) {
	threadID := cp.ThreadID
	for steps := 0; ; steps++ {
		if current == End {
			cp.Status = store.StatusTerminated
			var err error
			if cp, err = e.save(ctx, cp); err != nil {
				return e.fail(threadID, cp.Step, err)
			}
			e.emit(threadID, cp.Step, "", emit.RunEnd, map[string]any{"status": string(cp.Status)})
			e.cfg.metrics.RecordRun(string(store.StatusTerminated))
			return resultOf(cp), nil
		}

		if err := ctx.Err(); err != nil {
			return e.fail(threadID, cp.Step, err)
		}
		if steps >= e.cfg.maxSteps {
			return e.fail(threadID, cp.Step, &EngineError{
				Message: fmt.Sprintf("workflow exceeded %d steps", e.cfg.maxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			})
		}

		e.mu.RLock()
		node, ok := e.nodes[current]
		pending, isGate := e.interrupts[current]
		onFault := e.onFault
		e.mu.RUnlock()
		if !ok {
			return e.fail(threadID, cp.Step, &EngineError{Message: "node not found: " + current, Code: "NODE_NOT_FOUND"})
		}

		stepNo := cp.Step + 1
		started := time.Now()
		result := e.execute(ctx, current, node, cp.State)
		elapsed := time.Since(started)

		update := result.Update
		if result.Err != nil {
			e.cfg.metrics.RecordNodeLatency(current, elapsed, "fault")
			e.emit(threadID, stepNo, current, emit.NodeFault, map[string]any{
				"error":       result.Err.Error(),
				"duration_ms": elapsed.Milliseconds(),
			})
			if onFault == nil {
				return e.fail(threadID, cp.Step, result.Err)
			}
			e.cfg.metrics.IncrementNodeFaults(current)
			update = onFault(current, result.Err)
		} else {
			e.cfg.metrics.RecordNodeLatency(current, elapsed, "success")
		}

		next := cp
		next.State = e.reducer(cp.State, update)
		next.Step = stepNo
		next.Node = current

		if isGate && pending(next.State) {
			next.Status = store.StatusSuspended
			saved, err := e.save(ctx, next)
			if err != nil {
				return e.fail(threadID, cp.Step, err)
			}
			e.emit(threadID, saved.Step, current, emit.Suspended, nil)
			e.cfg.metrics.RecordRun(string(store.StatusSuspended))
			return resultOf(saved), nil
		}

		route, err := e.route(current, next.State)
		if err != nil {
			return e.fail(threadID, cp.Step, err)
		}

		next.Status = store.StatusRunning
		saved, err := e.save(ctx, next)
		if err != nil {
			return e.fail(threadID, cp.Step, err)
		}
		cp = saved

		e.emit(threadID, cp.Step, current, emit.NodeEnd, map[string]any{
			"next":        route,
			"duration_ms": elapsed.Milliseconds(),
		})
		current = route
	}
}

// execute runs a node with the configured timeout, turning panics into
// NodeErrors.
func (e *Engine[S, U]) execute(ctx context.Context, nodeID string, node Node[S, U], state S) (result NodeResult[U]) {
	if e.cfg.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.nodeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = NodeResult[U]{Err: &NodeError{
				Message: fmt.Sprintf("panic: %v", r),
				Code:    "NODE_PANIC",
				NodeID:  nodeID,
			}}
		}
	}()

	result = node.Run(ctx, state)
	if result.Err != nil {
		var nodeErr *NodeError
		if !errors.As(result.Err, &nodeErr) {
			result.Err = &NodeError{Message: result.Err.Error(), NodeID: nodeID, Cause: result.Err}
		}
	}
	return result
}

// route picks the next node from the post-merge state.
func (e *Engine[S, U]) route(from string, state S) (string, error) {
	e.mu.RLock()
	router, hasRouter := e.routers[from]
	edges := e.edges
	e.mu.RUnlock()

	next := ""
	if hasRouter {
		next = router(state)
	} else {
		for _, edge := range edges {
			if edge.From == from && (edge.When == nil || edge.When(state)) {
				next = edge.To
				break
			}
		}
	}

	if next == "" {
		return "", &EngineError{Message: "no route from node: " + from, Code: "NO_ROUTE"}
	}
	if next != End {
		e.mu.RLock()
		_, ok := e.nodes[next]
		e.mu.RUnlock()
		if !ok {
			return "", &EngineError{Message: "route to unknown node: " + next, Code: "NODE_NOT_FOUND"}
		}
	}
	return next, nil
}

func (e *Engine[S, U]) load(ctx context.Context, threadID string) (store.Checkpoint[S], error) {
	if threadID == "" {
		return store.Checkpoint[S]{}, &EngineError{Message: "thread ID cannot be empty", Code: "INVALID_THREAD"}
	}
	cp, err := e.store.Load(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Checkpoint[S]{ThreadID: threadID, Status: store.StatusTerminated}, nil
	}
	if err != nil {
		return store.Checkpoint[S]{}, &EngineError{Message: "load checkpoint: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	return cp, nil
}

// save persists cp. On failure the returned checkpoint is cp unchanged.
func (e *Engine[S, U]) save(ctx context.Context, cp store.Checkpoint[S]) (store.Checkpoint[S], error) {
	saved, err := e.store.Save(ctx, cp)
	if err == nil {
		return saved, nil
	}
	code := "STORE_ERROR"
	if errors.Is(err, store.ErrConflict) {
		code = "CHECKPOINT_CONFLICT"
	}
	return cp, &EngineError{Message: "save checkpoint: " + err.Error(), Code: code, Cause: err}
}

func (e *Engine[S, U]) fail(threadID string, step int, err error) (Result[S], error) {
	e.emit(threadID, step, "", emit.RunError, map[string]any{"error": err.Error()})
	e.cfg.metrics.RecordRun("error")
	return Result[S]{}, err
}

func (e *Engine[S, U]) emit(threadID string, step int, nodeID, msg string, meta map[string]any) {
	e.emitter.Emit(emit.Event{ThreadID: threadID, Step: step, NodeID: nodeID, Msg: msg, Meta: meta})
}

func resultOf[S any](cp store.Checkpoint[S]) Result[S] {
	return Result[S]{
		ThreadID: cp.ThreadID,
		State:    cp.State,
		Status:   cp.Status,
		Node:     cp.Node,
		Step:     cp.Step,
		Version:  cp.Version,
	}
}

// threadLocks hands out one mutex per thread ID and forgets it once no
// caller holds or waits for it.
type threadLocks struct {
	mu   sync.Mutex
	held map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func (l *threadLocks) lock(threadID string) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.held[threadID]
	if !ok {
		tl = &threadLock{}
		l.held[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.held, threadID)
		}
		l.mu.Unlock()
	}
}
