package engine

import (
	"context"
	"sync"
	"time"

	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// Snapshot is a point-in-time view of a debugged execution.
type Snapshot struct {
	ExecutionID   string                    `json:"execution_id"`
	CurrentNode   string                    `json:"current_node"`
	Paused        bool                      `json:"paused"`
	ExecutedNodes []string                  `json:"executed_nodes"`
	Variables     map[string]any            `json:"variables"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs"`
	Errors        []model.NodeError         `json:"errors"`
	StartedAt     time.Time                 `json:"started_at"`
}

// Debugger suspends an execution at breakpoints or before every node in
// step mode. It implements Hook; install it on the executor before
// starting the run. Suspension blocks the executor goroutine inside
// BeforeNode until Continue or Step releases it, or the run context is
// cancelled.
type Debugger struct {
	executor *Executor

	mu          sync.Mutex
	breakpoints map[string]bool
	stepMode    bool
	paused      bool
	currentNode string
	resume      chan struct{}
}

// NewDebugger wraps an executor. The debugger registers itself as the
// executor's hook.
func NewDebugger(ex *Executor) *Debugger {
	d := &Debugger{
		executor:    ex,
		breakpoints: make(map[string]bool),
		resume:      make(chan struct{}),
	}
	ex.WithHook(d)
	return d
}

// AddBreakpoint suspends the execution just before the node runs.
func (d *Debugger) AddBreakpoint(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[nodeID] = true
}

// RemoveBreakpoint clears a breakpoint.
func (d *Debugger) RemoveBreakpoint(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.breakpoints, nodeID)
}

// EnableStepMode pauses before every node.
func (d *Debugger) EnableStepMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepMode = true
}

// DisableStepMode restores free running (breakpoints still apply).
func (d *Debugger) DisableStepMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepMode = false
}

// Step releases a paused execution for exactly one node; step mode stays
// on so the run pauses again at the next node.
func (d *Debugger) Step() {
	d.release()
}

// Continue releases a paused execution and turns step mode off, so the
// run only stops at the next breakpoint.
func (d *Debugger) Continue() {
	d.mu.Lock()
	d.stepMode = false
	d.mu.Unlock()
	d.release()
}

func (d *Debugger) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return
	}
	d.paused = false
	close(d.resume)
	d.resume = make(chan struct{})
}

// Paused reports whether the execution is currently suspended.
func (d *Debugger) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Snapshot captures the current execution state. Safe to call while the
// run is suspended; while the run is live the maps may be mid-mutation,
// so callers should pause first for a consistent view.
func (d *Debugger) Snapshot() Snapshot {
	d.mu.Lock()
	current := d.currentNode
	paused := d.paused
	d.mu.Unlock()

	ec := d.executor.Context()
	snap := Snapshot{
		ExecutionID: d.executor.ExecutionID(),
		CurrentNode: current,
		Paused:      paused,
	}
	if ec == nil {
		return snap
	}
	snap.ExecutedNodes = append([]string(nil), ec.ExecutedNodes...)
	snap.Variables = ec.VariableValues()
	snap.NodeOutputs = ec.NodeOutputs
	snap.Errors = append([]model.NodeError(nil), ec.Errors...)
	snap.StartedAt = ec.StartedAt
	return snap
}

// BeforeNode implements Hook: it blocks when the node has a breakpoint
// or step mode is on, until released or the context is cancelled.
func (d *Debugger) BeforeNode(ctx context.Context, nodeID string, ec *model.ExecutionContext) error {
	d.mu.Lock()
	d.currentNode = nodeID
	shouldPause := d.stepMode || d.breakpoints[nodeID]
	var resume chan struct{}
	if shouldPause {
		d.paused = true
		resume = d.resume
	}
	d.mu.Unlock()

	if !shouldPause {
		return nil
	}

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		d.paused = false
		d.mu.Unlock()
		return ctx.Err()
	}
}

// AfterNode implements Hook.
func (d *Debugger) AfterNode(ctx context.Context, nodeID string, status model.NodeStatus, output map[string]any) {
}
