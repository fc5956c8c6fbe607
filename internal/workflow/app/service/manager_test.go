package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow-io/botflow/internal/engine"
	"github.com/botflow-io/botflow/internal/node/runtime"
	_ "github.com/botflow-io/botflow/internal/node/runtime/nodes"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/adapters/repository/memory"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
	"github.com/botflow-io/botflow/internal/workflow/domain/repository"
)

func newTestManager(t *testing.T, sched *engine.Scheduler) *Manager {
	t.Helper()
	return NewManager(
		memory.NewStore(),
		runtime.Default(),
		runtime.Deps{},
		sched,
		nil,
		nil,
		logger.NewNop(),
	)
}

func chatWorkflow() *model.Workflow {
	return &model.Workflow{
		Name:         "greeter",
		TriggerTypes: []model.TriggerType{model.TriggerPersonMessage},
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeTypeEventStart,
				Config: map[string]any{"trigger_type": "person_message"}},
			{ID: "reply", Type: model.NodeTypeReplyMessage,
				Config: map[string]any{"content": "hello"}},
		},
		Edges: []model.Edge{{Source: "start", Target: "reply"}},
	}
}

func TestManagerCreate(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	t.Run("assigns defaults", func(t *testing.T) {
		w, err := m.Create(ctx, chatWorkflow())
		require.NoError(t, err)
		assert.NotEmpty(t, w.ID)
		assert.Equal(t, 1, w.Version)
		assert.Equal(t, model.WorkflowStatusDraft, w.Status)
		assert.False(t, w.CreatedAt.IsZero())

		got, err := m.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.Name, got.Name)
	})

	t.Run("rejects invalid definitions", func(t *testing.T) {
		bad := chatWorkflow()
		bad.Edges = []model.Edge{{Source: "start", Target: "nowhere"}}
		_, err := m.Create(ctx, bad)
		require.Error(t, err)
		var vErr *model.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		w := chatWorkflow()
		w.ID = "fixed-id"
		_, err := m.Create(ctx, w)
		require.NoError(t, err)
		dup := chatWorkflow()
		dup.ID = "fixed-id"
		_, err = m.Create(ctx, dup)
		assert.ErrorIs(t, err, repository.ErrDuplicate)
	})
}

func TestManagerUpdate(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	w, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)

	t.Run("version is monotonic", func(t *testing.T) {
		name := "greeter v2"
		updated, err := m.Update(ctx, w.ID, UpdateRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.Equal(t, "greeter v2", updated.Name)
		// Untouched fields survive a partial update.
		assert.Len(t, updated.Nodes, 2)

		desc := "says hello"
		updated, err = m.Update(ctx, w.ID, UpdateRequest{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, 3, updated.Version)
		assert.Equal(t, "greeter v2", updated.Name)
	})

	t.Run("invalid update leaves the stored version alone", func(t *testing.T) {
		nodes := []model.Node{{ID: "sched", Type: model.NodeTypeScheduleStart, Config: map[string]any{}}}
		_, err := m.Update(ctx, w.ID, UpdateRequest{Nodes: &nodes})
		require.Error(t, err)

		got, err := m.Get(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, "greeter v2", got.Name)
	})

	t.Run("unknown id", func(t *testing.T) {
		name := "x"
		_, err := m.Update(ctx, "missing", UpdateRequest{Name: &name})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestManagerActivation(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	t.Run("draft workflows do not execute", func(t *testing.T) {
		w, err := m.Create(ctx, chatWorkflow())
		require.NoError(t, err)
		_, err = m.ExecuteWorkflow(ctx, w.ID, model.TriggerPersonMessage, nil)
		assert.ErrorIs(t, err, engine.ErrWorkflowNotActive)

		activated, err := m.Activate(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowStatusActive, activated.Status)

		res, err := m.ExecuteWorkflow(ctx, w.ID, model.TriggerPersonMessage, nil)
		require.NoError(t, err)
		assert.Equal(t, model.ExecutionSuccess, res.Status)

		deactivated, err := m.Deactivate(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowStatusInactive, deactivated.Status)
		_, err = m.ExecuteWorkflow(ctx, w.ID, model.TriggerPersonMessage, nil)
		assert.ErrorIs(t, err, engine.ErrWorkflowNotActive)
	})

	t.Run("invalid cron blocks activation", func(t *testing.T) {
		w := chatWorkflow()
		w.TriggerTypes = []model.TriggerType{model.TriggerScheduled}
		w.Nodes = []model.Node{
			{ID: "sched", Type: model.NodeTypeScheduleStart,
				Config: map[string]any{"cron_expression": "whenever"}},
			{ID: "done", Type: model.NodeTypeEnd, Config: map[string]any{}},
		}
		w.Edges = []model.Edge{{Source: "sched", Target: "done"}}
		created, err := m.Create(ctx, w)
		require.NoError(t, err)

		_, err = m.Activate(ctx, created.ID)
		require.Error(t, err)
		var vErr *model.ValidationError
		assert.ErrorAs(t, err, &vErr)

		got, err := m.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WorkflowStatusDraft, got.Status)
	})
}

func TestManagerScheduling(t *testing.T) {
	sched, err := engine.NewScheduler(logger.NewNop(), "UTC")
	require.NoError(t, err)
	m := newTestManager(t, sched)
	ctx := context.Background()

	w := chatWorkflow()
	w.TriggerTypes = []model.TriggerType{model.TriggerScheduled}
	w.Nodes = []model.Node{
		{ID: "cron", Type: model.NodeTypeScheduleStart,
			Config: map[string]any{"cron_expression": "0 4 * * *"}},
		{ID: "done", Type: model.NodeTypeEnd, Config: map[string]any{}},
	}
	w.Edges = []model.Edge{{Source: "cron", Target: "done"}}
	created, err := m.Create(ctx, w)
	require.NoError(t, err)

	_, err = m.Activate(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, sched.Scheduled(created.ID))

	_, err = m.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, sched.Scheduled(created.ID))
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	w, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, w.ID))
	_, err = m.Get(ctx, w.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, m.Delete(ctx, w.ID), repository.ErrNotFound)
}

func TestManagerBotBinding(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	first, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)
	second, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)
	_, err = m.Activate(ctx, first.ID)
	require.NoError(t, err)
	_, err = m.Activate(ctx, second.ID)
	require.NoError(t, err)

	_, err = m.BindBot(ctx, first.ID, "bot-7")
	require.NoError(t, err)
	_, err = m.BindBot(ctx, second.ID, "bot-7")
	require.NoError(t, err)

	t.Run("events fan out to bound workflows", func(t *testing.T) {
		results, err := m.HandleMessageEvent(ctx, "bot-7", model.TriggerPersonMessage,
			map[string]any{"content": "hi"})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("inactive workflows are skipped", func(t *testing.T) {
		_, err := m.Deactivate(ctx, second.ID)
		require.NoError(t, err)
		results, err := m.HandleMessageEvent(ctx, "bot-7", model.TriggerPersonMessage, nil)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("non-matching trigger is skipped", func(t *testing.T) {
		results, err := m.HandleMessageEvent(ctx, "bot-7", model.TriggerGroupMessage, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unbind removes the workflow from the bot", func(t *testing.T) {
		_, err := m.UnbindBot(ctx, first.ID)
		require.NoError(t, err)
		results, err := m.HandleMessageEvent(ctx, "bot-7", model.TriggerPersonMessage, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown bot yields nothing", func(t *testing.T) {
		results, err := m.HandleMessageEvent(ctx, "bot-404", model.TriggerPersonMessage, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestManagerExecutionHistory(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	w, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)
	_, err = m.Activate(ctx, w.ID)
	require.NoError(t, err)

	res, err := m.ExecuteWorkflow(ctx, w.ID, model.TriggerPersonMessage, map[string]any{"content": "hey"})
	require.NoError(t, err)

	recs, err := m.ListExecutions(ctx, w.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.ExecutionID, recs[0].ID)
	assert.Equal(t, model.ExecutionSuccess, recs[0].Status)
	assert.Equal(t, model.TriggerPersonMessage, recs[0].TriggerType)
	assert.Equal(t, []string{"start", "reply"}, recs[0].ExecutedNodes)

	_, err = m.ListExecutions(ctx, "missing", 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestManagerImportExport(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	doc := `
workflow:
  id: original-id
  name: imported
  status: active
  trigger_types:
    - person_message
  nodes:
    - id: start
      type: event_start
      config:
        trigger_type: person_message
    - id: done
      type: end
  edges:
    - source: start
      target: done
`
	w, err := m.Import(ctx, []byte(doc))
	require.NoError(t, err)
	// Imports always land as a fresh draft.
	assert.NotEqual(t, "original-id", w.ID)
	assert.Equal(t, model.WorkflowStatusDraft, w.Status)
	assert.Equal(t, 1, w.Version)

	out, err := m.Export(ctx, w.ID)
	require.NoError(t, err)
	assert.Contains(t, string(out), "name: imported")

	_, err = m.Import(ctx, []byte("nodes: [}"))
	assert.Error(t, err)
}

func TestManagerCancelExecution(t *testing.T) {
	m := newTestManager(t, nil)
	assert.False(t, m.CancelExecution("no-such-execution"))
}

func TestManagerInitializeRestoresSchedules(t *testing.T) {
	store := memory.NewStore()
	sched, err := engine.NewScheduler(logger.NewNop(), "UTC")
	require.NoError(t, err)
	ctx := context.Background()

	stored := &model.Workflow{
		ID:           "wf-restored",
		Name:         "nightly",
		Status:       model.WorkflowStatusActive,
		Version:      1,
		TriggerTypes: []model.TriggerType{model.TriggerScheduled},
		Nodes: []model.Node{
			{ID: "cron", Type: model.NodeTypeScheduleStart,
				Config: map[string]any{"cron_expression": "@daily"}},
			{ID: "done", Type: model.NodeTypeEnd, Config: map[string]any{}},
		},
		Edges: []model.Edge{{Source: "cron", Target: "done"}},
	}
	require.NoError(t, store.Insert(ctx, stored))

	m := NewManager(store, runtime.Default(), runtime.Deps{}, sched, nil, nil, logger.NewNop())
	require.NoError(t, m.Initialize(ctx))
	assert.True(t, sched.Scheduled("wf-restored"))

	got, err := m.Get(ctx, "wf-restored")
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)
}

func TestDebugSessionLifecycle(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	w, err := m.Create(ctx, chatWorkflow())
	require.NoError(t, err)
	_, err = m.Activate(ctx, w.ID)
	require.NoError(t, err)

	t.Run("breakpoint then continue", func(t *testing.T) {
		session, err := m.DebugWorkflow(ctx, w.ID, model.TriggerPersonMessage,
			map[string]any{"content": "hi"}, []string{"reply"}, false)
		require.NoError(t, err)
		assert.Equal(t, DebugSessionRunning, session.Status())

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		for !session.Snapshot().Paused {
			select {
			case <-waitCtx.Done():
				t.Fatal("session never paused at the breakpoint")
			case <-time.After(5 * time.Millisecond):
			}
		}
		snap, err := m.SnapshotSession(session.ID)
		require.NoError(t, err)
		assert.Equal(t, "reply", snap.CurrentNode)
		assert.Equal(t, []string{"start"}, snap.ExecutedNodes)

		require.NoError(t, m.ContinueSession(session.ID))
		require.NoError(t, session.Wait(waitCtx))
		assert.Equal(t, DebugSessionCompleted, session.Status())
		result, runErr := session.Result()
		require.NoError(t, runErr)
		assert.Equal(t, model.ExecutionSuccess, result.Status)

		// The debugged run still lands in the execution history.
		recs, err := m.ListExecutions(ctx, w.ID, 10)
		require.NoError(t, err)
		assert.NotEmpty(t, recs)
	})

	t.Run("stop cancels a paused session", func(t *testing.T) {
		session, err := m.DebugWorkflow(ctx, w.ID, model.TriggerPersonMessage,
			nil, nil, true)
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		for !session.Snapshot().Paused {
			select {
			case <-waitCtx.Done():
				t.Fatal("session never paused in step mode")
			case <-time.After(5 * time.Millisecond):
			}
		}

		require.NoError(t, m.StopSession(session.ID))
		require.NoError(t, session.Wait(waitCtx))
		assert.Equal(t, DebugSessionStopped, session.Status())

		_, err = m.Session(session.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		assert.ErrorIs(t, m.StepSession("ghost"), repository.ErrNotFound)
		assert.ErrorIs(t, m.ContinueSession("ghost"), repository.ErrNotFound)
		_, err := m.SnapshotSession("ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
