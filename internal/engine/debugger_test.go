package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow-io/botflow/internal/node/runtime"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

func debugWorkflow() *model.Workflow {
	return activeWorkflow(
		[]model.Node{
			eventStartNode("start"),
			{ID: "mid", Type: model.NodeTypeSetVariable,
				Config: map[string]any{"variable_name": "step", "value": "reached"}},
			{ID: "done", Type: model.NodeTypeEnd, Config: map[string]any{}},
		},
		[]model.Edge{
			{Source: "start", Target: "mid"},
			{Source: "mid", Target: "done"},
		},
	)
}

func waitPaused(t *testing.T, d *Debugger) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if d.Paused() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("debugger never paused")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDebuggerBreakpoint(t *testing.T) {
	ex := NewExecutor(debugWorkflow(), runtime.Default(), runtime.Deps{}, logger.NewNop())
	d := NewDebugger(ex)
	d.AddBreakpoint("mid")

	resCh := make(chan *model.ExecutionResult, 1)
	go func() {
		res, err := ex.Execute(context.Background(), model.TriggerPersonMessage, nil)
		assert.NoError(t, err)
		resCh <- res
	}()

	waitPaused(t, d)
	snap := d.Snapshot()
	assert.True(t, snap.Paused)
	assert.Equal(t, "mid", snap.CurrentNode)
	assert.Equal(t, []string{"start"}, snap.ExecutedNodes)
	assert.NotContains(t, snap.Variables, "step")

	d.Continue()
	res := <-resCh
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.Equal(t, []string{"start", "mid", "done"}, res.ExecutedNodes)
	assert.Equal(t, "reached", res.Variables["step"])
}

func TestDebuggerStepMode(t *testing.T) {
	ex := NewExecutor(debugWorkflow(), runtime.Default(), runtime.Deps{}, logger.NewNop())
	d := NewDebugger(ex)
	d.EnableStepMode()

	resCh := make(chan *model.ExecutionResult, 1)
	go func() {
		res, err := ex.Execute(context.Background(), model.TriggerPersonMessage, nil)
		assert.NoError(t, err)
		resCh <- res
	}()

	waitPaused(t, d)
	assert.Equal(t, "start", d.Snapshot().CurrentNode)

	d.Step()
	waitPaused(t, d)
	assert.Equal(t, "mid", d.Snapshot().CurrentNode)
	assert.Equal(t, []string{"start"}, d.Snapshot().ExecutedNodes)

	// Continue turns step mode off, the rest runs freely.
	d.Continue()
	res := <-resCh
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.Equal(t, []string{"start", "mid", "done"}, res.ExecutedNodes)
}

func TestDebuggerRemoveBreakpoint(t *testing.T) {
	ex := NewExecutor(debugWorkflow(), runtime.Default(), runtime.Deps{}, logger.NewNop())
	d := NewDebugger(ex)
	d.AddBreakpoint("mid")
	d.RemoveBreakpoint("mid")

	res, err := ex.Execute(context.Background(), model.TriggerPersonMessage, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionSuccess, res.Status)
	assert.False(t, d.Paused())
}

func TestDebuggerCancelWhilePaused(t *testing.T) {
	ex := NewExecutor(debugWorkflow(), runtime.Default(), runtime.Deps{}, logger.NewNop())
	d := NewDebugger(ex)
	d.AddBreakpoint("mid")

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan *model.ExecutionResult, 1)
	go func() {
		res, err := ex.Execute(ctx, model.TriggerPersonMessage, nil)
		assert.NoError(t, err)
		resCh <- res
	}()

	waitPaused(t, d)
	cancel()

	res := <-resCh
	assert.Equal(t, model.ExecutionCancelled, res.Status)
	assert.False(t, d.Paused())
}

func TestSnapshotBeforeStart(t *testing.T) {
	ex := NewExecutor(debugWorkflow(), runtime.Default(), runtime.Deps{}, logger.NewNop())
	d := NewDebugger(ex)
	snap := d.Snapshot()
	assert.Equal(t, ex.ExecutionID(), snap.ExecutionID)
	assert.False(t, snap.Paused)
	assert.Empty(t, snap.ExecutedNodes)
}
